package listing

import (
	"sort"
	"time"

	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/pkg/models"
)

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Upcoming keeps festivals starting today or later, with now in the reference
// timezone. Festivals without a parseable start date are dropped.
func Upcoming(records []models.Festival, now time.Time) []models.Festival {
	today := startOfDay(now)
	out := make([]models.Festival, 0, len(records))
	for _, r := range records {
		start, ok := ParseDate(r.StartDate, now.Location())
		if ok && !startOfDay(start).Before(today) {
			out = append(out, r)
		}
	}
	return out
}

// ActiveOn keeps festivals whose start..end range (end defaulting to start)
// includes day.
func ActiveOn(records []models.Festival, day time.Time) []models.Festival {
	day = startOfDay(day)
	out := make([]models.Festival, 0)
	for _, r := range records {
		start, ok := ParseDate(r.StartDate, day.Location())
		if !ok {
			continue
		}
		end, ok := ParseDate(r.RangeEnd(), day.Location())
		if !ok {
			end = start
		}
		if !day.Before(startOfDay(start)) && !day.After(startOfDay(end)) {
			out = append(out, r)
		}
	}
	return out
}

// FacetValue is one selectable filter value and how many festivals carry it.
type FacetValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Facets lists the distinct values of the filterable fields.
type Facets struct {
	Categories []FacetValue `json:"categories"`
	Areas      []FacetValue `json:"areas"`
	Statuses   []FacetValue `json:"statuses"`
}

// BuildFacets collects categories (split like the category filter), areas
// and statuses, each in first-seen order.
func BuildFacets(records []models.Festival) Facets {
	var cats, areas, statuses counter
	for _, r := range records {
		seen := make(map[string]bool)
		for _, c := range SplitList(r.Category) {
			if !seen[c] {
				seen[c] = true
				cats.add(c)
			}
		}
		areas.add(r.VenueName)
		statuses.add(r.Status)
	}
	return Facets{
		Categories: cats.values(),
		Areas:      areas.values(),
		Statuses:   statuses.values(),
	}
}

type counter struct {
	order  []string
	counts map[string]int
}

func (c *counter) add(v string) {
	if v == "" {
		return
	}
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	if _, ok := c.counts[v]; !ok {
		c.order = append(c.order, v)
	}
	c.counts[v]++
}

func (c *counter) values() []FacetValue {
	out := make([]FacetValue, 0, len(c.order))
	for _, v := range c.order {
		out = append(out, FacetValue{Value: v, Count: c.counts[v]})
	}
	return out
}

// SortFacetsByCount orders values by descending count, keeping first-seen
// order for ties.
func SortFacetsByCount(values []FacetValue) {
	sort.SliceStable(values, func(i, j int) bool { return values[i].Count > values[j].Count })
}
