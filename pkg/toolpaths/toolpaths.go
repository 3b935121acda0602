// Package toolpaths locates the bundled and system tools a run needs.
package toolpaths

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tidwall/gjson"

	"ApkDisguise/pkg/pipeline"
)

// Tool keys
const (
	Java      = "java"
	Adb       = "adb"
	Apktool   = "apktool"
	Zipalign  = "zipalign"
	Apksigner = "apksigner"
	Keystore  = "keystore"
)

// Keys lists every key Resolve may return
var Keys = []string{Java, Adb, Apktool, Zipalign, Apksigner, Keystore}

// ManifestFile is the optional override file inside the tools directory
const ManifestFile = "manifest.json"

// Resolver finds tools in Dir and on PATH
type Resolver struct {
	Dir      string
	LookPath func(string) (string, error)
	GOOS     string
}

// NewResolver creates a Resolver for dir using the host PATH
func NewResolver(dir string) *Resolver {
	return &Resolver{Dir: dir, LookPath: exec.LookPath, GOOS: runtime.GOOS}
}

// DefaultDir returns the tools directory beside the executable, or ./tools
func DefaultDir() string {
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Join(filepath.Dir(exe), "tools")
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, "tools")
	}
	return "tools"
}

// Resolve returns absolute paths keyed by tool name.
// A missing key means the tool was not found.
func Resolve(dir string) map[string]string {
	return NewResolver(dir).Resolve()
}

// Resolve implements the lookup
func (r *Resolver) Resolve() map[string]string {
	paths := make(map[string]string)

	bundled := map[string]string{
		Apktool:   "apktool.jar",
		Zipalign:  "zipalign",
		Apksigner: "apksigner.jar",
		Keystore:  "release-key.jks",
	}
	if r.GOOS == "windows" {
		bundled[Zipalign] = "zipalign.exe"
	}
	for key, name := range bundled {
		if p, ok := r.existing(filepath.Join(r.Dir, name)); ok {
			paths[key] = p
		}
	}

	// system java and adb
	if r.LookPath != nil {
		for _, key := range []string{Java, Adb} {
			if p, err := r.LookPath(key); err == nil {
				if abs, err := filepath.Abs(p); err == nil {
					p = abs
				}
				paths[key] = p
			}
		}
	}

	for key, p := range r.overrides() {
		paths[key] = p
	}
	return paths
}

// overrides reads manifest.json. Entries whose file does not exist are dropped.
func (r *Resolver) overrides() map[string]string {
	out := make(map[string]string)
	if r.Dir == "" {
		return out
	}
	data, err := os.ReadFile(filepath.Join(r.Dir, ManifestFile))
	if err != nil || !gjson.ValidBytes(data) {
		return out
	}
	for _, key := range Keys {
		v := gjson.GetBytes(data, key)
		if !v.Exists() || v.Type != gjson.String {
			continue
		}
		p := strings.TrimSpace(v.String())
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(r.Dir, p)
		}
		if abs, ok := r.existing(p); ok {
			out[key] = abs
		}
	}
	return out
}

func (r *Resolver) existing(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, true
	}
	return abs, true
}

// PipelineTools fills the empty fields of base from paths
func PipelineTools(base pipeline.Tools, paths map[string]string) pipeline.Tools {
	fill := func(cur *string, key string) {
		if strings.TrimSpace(*cur) == "" {
			*cur = paths[key]
		}
	}
	fill(&base.Java, Java)
	fill(&base.Apktool, Apktool)
	fill(&base.Zipalign, Zipalign)
	fill(&base.Apksigner, Apksigner)
	fill(&base.Keystore, Keystore)
	return base
}
