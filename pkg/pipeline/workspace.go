package pipeline

import (
	"path/filepath"
	"strings"
)

// Workspace is the set of paths one run writes, all derived from the source name
type Workspace struct {
	Stem     string
	WorkDir  string // decompiled tree
	Manifest string
	Rebuilt  string // unaligned, unsigned
	Aligned  string
	Final    string // signed
}

// NewWorkspace derives the artifact paths for sourceAPK.
// The work directory lives under workRoot; the APKs sit next to the source.
func NewWorkspace(sourceAPK, workRoot string) Workspace {
	stem := fileStem(sourceAPK)
	dir := filepath.Dir(sourceAPK)
	workDir := filepath.Join(workRoot, "apk_disguise_"+stem)

	return Workspace{
		Stem:     stem,
		WorkDir:  workDir,
		Manifest: filepath.Join(workDir, "AndroidManifest.xml"),
		Rebuilt:  filepath.Join(dir, stem+"_rebuilt.apk"),
		Aligned:  filepath.Join(dir, stem+"_aligned.apk"),
		Final:    filepath.Join(dir, stem+"_fixed.apk"),
	}
}

func fileStem(path string) string {
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) {
		return "apk"
	}
	// A leading dot is part of the name, not an extension
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	if base == "" {
		return "apk"
	}
	return base
}
