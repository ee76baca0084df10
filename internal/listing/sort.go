// Package listing filters, orders and pages festival collections.
package listing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/pkg/models"
)

// Mode selects the ordering of a festival list.
type Mode string

const (
	ModeChronological Mode = "chronological"
	ModeDistance      Mode = "distance"
)

// ParseMode accepts "", "chronological" and "distance". Empty yields def.
func ParseMode(s string, def Mode) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return def, nil
	case ModeChronological:
		return ModeChronological, nil
	case ModeDistance:
		return ModeDistance, nil
	}
	return "", fmt.Errorf("unknown ordering mode %q", s)
}

// DefaultScaleOrder ranks scales larger-first.
var DefaultScaleOrder = []string{"大規模", "中規模", "小規模"}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-1-2",
	"2006/1/2",
	"2006年1月2日",
	"2006.1.2",
	time.RFC3339,
}

// ParseDate reads a feed date in loc. Times of day are kept when present.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Chronological orders by start date, then by Japanese collation of the
// name, then (when ScaleOrder is set) by scale rank.
type Chronological struct {
	Location   *time.Location
	ScaleOrder []string
}

// Sort returns an ordered copy of records.
func (o Chronological) Sort(records []models.Festival) []models.Festival {
	out := make([]models.Festival, len(records))
	copy(out, records)

	// collators keep internal buffers, one per call
	col := collate.New(language.Japanese)
	starts := make([]time.Time, len(out))
	ok := make([]bool, len(out))
	for i := range out {
		starts[i], ok[i] = ParseDate(out[i].StartDate, o.Location)
	}
	rank := scaleRanker(o.ScaleOrder)

	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		if ok[i] && ok[j] && !starts[i].Equal(starts[j]) {
			return starts[i].Before(starts[j])
		}
		if c := col.CompareString(out[i].Name, out[j].Name); c != 0 {
			return c < 0
		}
		if rank != nil {
			return rank(out[i].Scale) < rank(out[j].Scale)
		}
		return false
	})

	sorted := make([]models.Festival, len(out))
	for n, i := range idx {
		sorted[n] = out[i]
	}
	return sorted
}

func scaleRanker(order []string) func(string) int {
	if len(order) == 0 {
		return nil
	}
	ranks := make(map[string]int, len(order))
	for i, s := range order {
		ranks[s] = i
	}
	return func(scale string) int {
		if r, ok := ranks[strings.TrimSpace(scale)]; ok {
			return r
		}
		return len(order)
	}
}

// SortByDistance orders records with a distance ascending and puts records
// without one last, keeping their input order.
func SortByDistance(records []models.Festival) []models.Festival {
	out := make([]models.Festival, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].Distance, out[j].Distance
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		}
		return *di < *dj
	})
	return out
}
