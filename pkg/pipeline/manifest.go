package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ErrPackageAttributeMissing is returned when the manifest has no package attribute
var ErrPackageAttributeMissing = errors.New("manifest has no package attribute")

const maxSuffixLen = 12

var packageAttrRe = regexp.MustCompile(`package="[^"]+"`)

// ManifestDefaults are the SDK levels declared when the manifest has none
type ManifestDefaults struct {
	MinSdkVersion    int
	TargetSdkVersion int
}

// DefaultManifest returns min 19 / target 27
func DefaultManifest() ManifestDefaults {
	return ManifestDefaults{MinSdkVersion: 19, TargetSdkVersion: 27}
}

// DeriveSuffix lowercases the stem, keeps letters and digits, and truncates
// to twelve characters. An empty result falls back to "app".
func DeriveSuffix(stem string) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.ToLower(stem) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		if n == maxSuffixLen {
			break
		}
		b.WriteRune(r)
		n++
	}
	if b.Len() == 0 {
		return "app"
	}
	return b.String()
}

// NewPackageName joins prefix and suffix, deriving the suffix from stem when empty
func NewPackageName(prefix, suffix, stem string) string {
	suffix = strings.TrimSpace(suffix)
	if suffix == "" {
		suffix = DeriveSuffix(stem)
	}
	return strings.TrimSuffix(strings.TrimSpace(prefix), ".") + "." + suffix
}

// PatchManifest rewrites the first package attribute and, when no uses-sdk
// element exists, declares one right before <application
func PatchManifest(manifest, newPackage string, defaults ManifestDefaults) (string, error) {
	loc := packageAttrRe.FindStringIndex(manifest)
	if loc == nil {
		return "", ErrPackageAttributeMissing
	}
	patched := manifest[:loc[0]] + fmt.Sprintf(`package="%s"`, newPackage) + manifest[loc[1]:]

	if !strings.Contains(patched, "<uses-sdk") {
		if pos := strings.Index(patched, "<application"); pos >= 0 {
			decl := fmt.Sprintf("<uses-sdk android:minSdkVersion=\"%d\" android:targetSdkVersion=\"%d\"/>\n    ",
				defaults.MinSdkVersion, defaults.TargetSdkVersion)
			patched = patched[:pos] + decl + patched[pos:]
		}
	}
	return patched, nil
}
