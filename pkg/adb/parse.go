package adb

import (
	"strings"
	"unicode"
)

const packagePrefix = "package:"

// ParseDevices extracts device identifiers from `adb devices -l` output.
// The header line is dropped and only entries in the "device" state are kept.
func ParseDevices(output string) []string {
	lines := strings.Split(output, "\n")
	if len(lines) > 0 {
		lines = lines[1:]
	}

	devices := make([]string, 0, len(lines))
	for _, line := range lines {
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		if parts[1] != "device" {
			continue
		}
		devices = append(devices, parts[0])
	}
	return devices
}

// ParsePackageNames extracts names from `pm list packages` output
func ParsePackageNames(output string) []string {
	var names []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, packagePrefix) {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(line, packagePrefix))
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ParsePackageSet is ParsePackageNames as a set
func ParsePackageSet(output string) map[string]bool {
	set := make(map[string]bool)
	for _, name := range ParsePackageNames(output) {
		set[name] = true
	}
	return set
}

// PackagePath pairs an installed package with its APK path
type PackagePath struct {
	Path string
	Name string
}

// ParsePackagePaths parses `pm list packages -f` output.
// Lines look like package:<path>=<name>; the path may itself contain '='.
func ParsePackagePaths(output string) []PackagePath {
	var entries []PackagePath
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, packagePrefix) {
			continue
		}
		content := strings.TrimPrefix(line, packagePrefix)
		eq := strings.LastIndex(content, "=")
		if eq < 0 {
			continue
		}
		name := strings.TrimSpace(content[eq+1:])
		if name == "" {
			continue
		}
		entries = append(entries, PackagePath{Path: content[:eq], Name: name})
	}
	return entries
}

// DisplayName derives a readable label from the last namespace segment:
// "com.foo.myCoolApp" -> "my Cool App", "com.foo.legacy_tool" -> "legacy tool".
func DisplayName(packageName string) string {
	segment := packageName
	if i := strings.LastIndex(packageName, "."); i >= 0 {
		segment = packageName[i+1:]
	}

	var b strings.Builder
	for i, r := range []rune(segment) {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return strings.ReplaceAll(b.String(), "_", " ")
}
