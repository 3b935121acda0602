// Package prefix ranks namespace prefixes that blend in among a device's
// installed packages.
package prefix

import (
	"context"
	"sort"
	"strings"

	"ApkDisguise/pkg/types"
)

// DefaultDenylist holds platform and vendor prefixes that are never suggested
var DefaultDenylist = []string{"com.android", "com.google", "android.hardware", "vendor.mediatek"}

// DefaultRecommended are curated prefixes that always rank first
var DefaultRecommended = []types.TrustedPrefix{
	{Prefix: "cn.chinapost", Count: 999, Source: types.SourceRecommended},
	{Prefix: "com.nlscan", Count: 100, Source: types.SourceRecommended},
}

// DefaultMinCount is the fewest occurrences a scanned prefix needs
const DefaultMinCount = 2

// Heuristic turns a package listing into ranked prefixes
type Heuristic struct {
	Denylist    []string
	Recommended []types.TrustedPrefix
	MinCount    int
}

// Default returns the heuristic with the built-in lists
func Default() Heuristic {
	return Heuristic{
		Denylist:    append([]string(nil), DefaultDenylist...),
		Recommended: append([]types.TrustedPrefix(nil), DefaultRecommended...),
		MinCount:    DefaultMinCount,
	}
}

// TwoSegment returns segments 0 and 1 of a package name joined by a dot
func TwoSegment(packageName string) (string, bool) {
	parts := strings.Split(packageName, ".")
	if len(parts) < 2 {
		return "", false
	}
	return parts[0] + "." + parts[1], true
}

// Rank tallies two-segment prefixes, drops denied and rare ones, sorts by
// count and puts the recommended entries in front
func (h Heuristic) Rank(packages []string) []types.TrustedPrefix {
	counts := make(map[string]int)
	for _, pkg := range packages {
		if p, ok := TwoSegment(strings.TrimSpace(pkg)); ok {
			counts[p]++
		}
	}

	minCount := max(h.MinCount, DefaultMinCount)

	scanned := make([]types.TrustedPrefix, 0, len(counts))
	for p, n := range counts {
		if n < minCount || h.denied(p) {
			continue
		}
		scanned = append(scanned, types.TrustedPrefix{Prefix: p, Count: n, Source: types.SourceDeviceScan})
	}

	sort.Slice(scanned, func(i, j int) bool {
		if scanned[i].Count != scanned[j].Count {
			return scanned[i].Count > scanned[j].Count
		}
		return scanned[i].Prefix < scanned[j].Prefix
	})

	result := make([]types.TrustedPrefix, 0, len(h.Recommended)+len(scanned))
	for _, r := range h.Recommended {
		r.Source = types.SourceRecommended
		result = append(result, r)
	}
	return append(result, scanned...)
}

func (h Heuristic) denied(p string) bool {
	for _, d := range h.Denylist {
		if strings.HasPrefix(p, d) {
			return true
		}
	}
	return false
}

// Lister supplies the raw package listing for a device
type Lister interface {
	ListPackages(ctx context.Context, deviceID string) ([]string, error)
}

// Scanner runs the heuristic against a live device
type Scanner struct {
	Lister    Lister
	Heuristic Heuristic
}

// Scan lists packages on the device and ranks their prefixes
func (s Scanner) Scan(ctx context.Context, deviceID string) ([]types.TrustedPrefix, error) {
	packages, err := s.Lister.ListPackages(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return s.Heuristic.Rank(packages), nil
}
