package catalog

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// newCollator returns a pt-BR, case-insensitive collator. Collators keep
// internal buffers, so each sort gets its own.
func newCollator() *collate.Collator {
	return collate.New(language.BrazilianPortuguese, collate.IgnoreCase)
}

// SortByName orders items by name using Brazilian Portuguese collation, so
// "Água Sanitária" sorts next to "Álcool" rather than after "Z".
func SortByName[T any](items []T, name func(T) string) {
	c := newCollator()
	sort.SliceStable(items, func(i, j int) bool {
		return c.CompareString(name(items[i]), name(items[j])) < 0
	})
}

// SortStrings orders plain labels with the same collation.
func SortStrings(values []string) {
	SortByName(values, func(s string) string { return s })
}
