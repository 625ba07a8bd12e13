package availability

import (
	"sort"

	"cloud.google.com/go/civil"
)

// BookableSet is the complete result of probing one month.
type BookableSet struct {
	Month Month `json:"month"`
	Days  []int `json:"days"`
}

// NewBookableSet builds a set for month, dropping days outside the month and duplicates.
func NewBookableSet(month Month, days ...int) BookableSet {
	seen := make(map[int]struct{}, len(days))
	out := make([]int, 0, len(days))
	last := month.Days()
	for _, d := range days {
		if d < 1 || d > last {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Ints(out)
	return BookableSet{Month: month, Days: out}
}

// Has reports whether d is bookable.
func (s BookableSet) Has(d civil.Date) bool {
	if !s.Month.Contains(d) {
		return false
	}
	i := sort.SearchInts(s.Days, d.Day)
	return i < len(s.Days) && s.Days[i] == d.Day
}

func (s BookableSet) Len() int { return len(s.Days) }
