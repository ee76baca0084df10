package listing

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/pkg/models"
)

var (
	yearPattern  = regexp.MustCompile(`(\d{4})年?`)
	monthPattern = regexp.MustCompile(`(\d{1,2})月`)
	dayPattern   = regexp.MustCompile(`月?(\d{1,2})日`)
)

// EventDate extracts the first date of an event period such as
// "2025年5月3日（土）～5日" or "2025-05-03～2025-05-04". Unparseable periods
// return the zero time, which sorts as oldest.
func EventDate(period string, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y := yearPattern.FindStringSubmatch(period)
	m := monthPattern.FindStringSubmatch(period)
	d := dayPattern.FindStringSubmatch(period)
	if y != nil && m != nil && d != nil {
		year, _ := strconv.Atoi(y[1])
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(d[1])
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	}

	first := period
	if i := strings.IndexAny(period, "～~〜"); i >= 0 {
		first = period[:i]
	}
	if t, ok := ParseDate(first, loc); ok {
		return t
	}
	return time.Time{}
}

// SortEvents returns the events ordered by EventDate, stable for equal dates.
func SortEvents(events []models.Event, loc *time.Location) []models.Event {
	out := make([]models.Event, len(events))
	copy(out, events)
	dates := make(map[string]time.Time, len(out))
	for _, e := range out {
		dates[e.ID] = EventDate(e.Period, loc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return dates[out[i].ID].Before(dates[out[j].ID])
	})
	return out
}
