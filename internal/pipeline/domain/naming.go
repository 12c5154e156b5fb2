package domain

import (
	"fmt"
	"regexp"
)

var copySuffix = regexp.MustCompile(`\s\(Copy \d+\)$`)

// BaseStageName strips one trailing " (Copy N)" suffix from name.
func BaseStageName(name string) string {
	return copySuffix.ReplaceAllString(name, "")
}

// NextCopyName returns "{base} (Copy N)" for the smallest N >= 1 whose name is
// not in existing, where base is name without its copy suffix.
func NextCopyName(name string, existing []string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, n := range existing {
		taken[n] = struct{}{}
	}

	base := BaseStageName(name)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (Copy %d)", base, n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}
