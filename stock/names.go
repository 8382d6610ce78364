package stock

import (
	"strings"

	"golang.org/x/text/cases"
)

// NameKey folds a catalog name for case-insensitive comparison, matching
// how the business treats "Rosa Freedom" and "ROSA FREEDOM" as one name.
// A Caser is stateful, so each call builds its own.
func NameKey(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

// SameName reports whether two catalog names are equal after folding.
func SameName(a, b string) bool { return NameKey(a) == NameKey(b) }

// ContainsName reports whether needle occurs in haystack after folding.
func ContainsName(haystack, needle string) bool {
	return strings.Contains(NameKey(haystack), NameKey(needle))
}
