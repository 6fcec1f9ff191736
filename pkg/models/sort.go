package models

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortByName orders eggs by name using root-locale collation. Eggs with
// equal names keep their relative order.
func SortByName(eggs []Egg) {
	c := collate.New(language.Und)
	sort.SliceStable(eggs, func(i, j int) bool {
		return c.CompareString(eggs[i].Name, eggs[j].Name) < 0
	})
}
