package listing

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/pkg/models"
)

var (
	listSeparator = regexp.MustCompile(`,|、|\s+`)
	hoursPattern  = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*[-～~〜–]\s*(\d{1,2}):(\d{2})`)
	countPattern  = regexp.MustCompile(`\d+`)
)

var weekdays = [...]string{"日", "月", "火", "水", "木", "金", "土"}

// SplitList splits a category or closed-day cell on commas, Japanese commas
// and whitespace, dropping empty tokens.
func SplitList(s string) []string {
	var out []string
	for _, tok := range listSeparator.Split(s, -1) {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// Filter is a predicate over festivals. Zero-valued fields match everything.
type Filter struct {
	Category   string
	Area       string
	Status     string
	Query      string
	OpenNow    bool
	HasParking bool

	// FuzzyDistance > 0 lets query tokens match words within that edit distance.
	FuzzyDistance int
	// Now and Location drive OpenNow; zero Now means time.Now().
	Now      time.Time
	Location *time.Location
}

// Apply returns the matching records in input order.
func (f Filter) Apply(records []models.Festival) []models.Festival {
	out := make([]models.Festival, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Match reports whether r passes every active criterion.
func (f Filter) Match(r models.Festival) bool {
	if q := strings.TrimSpace(f.Query); q != "" && !f.matchQuery(r, q) {
		return false
	}
	if f.Category != "" && !contains(SplitList(r.Category), f.Category) {
		return false
	}
	if f.Area != "" && r.VenueName != f.Area {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.OpenNow && !IsOpen(r, f.now()) {
		return false
	}
	if f.HasParking && !HasParking(r.Parking) {
		return false
	}
	return true
}

func (f Filter) now() time.Time {
	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}
	if f.Location != nil {
		now = now.In(f.Location)
	}
	return now
}

func (f Filter) matchQuery(r models.Festival, q string) bool {
	q = strings.ToLower(q)
	values := r.Strings()
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	if f.FuzzyDistance <= 0 {
		return false
	}
	for _, v := range values {
		for _, word := range strings.Fields(strings.ToLower(v)) {
			if levenshtein.ComputeDistance(word, q) <= f.FuzzyDistance {
				return true
			}
		}
	}
	return false
}

// IsOpen evaluates OpeningHours ("HH:MM-HH:MM", dash or tilde) at now, which
// must already be in the reference timezone. Ranges ending before they start
// wrap past midnight. A closed-day token naming today's weekday means closed.
func IsOpen(r models.Festival, now time.Time) bool {
	if r.OpeningHours == "" {
		return false
	}
	today := weekdays[now.Weekday()]
	for _, day := range SplitList(r.ClosedDays) {
		if strings.Contains(day, today) {
			return false
		}
	}

	m := hoursPattern.FindStringSubmatch(r.OpeningHours)
	if m == nil {
		return false
	}
	start := atoi(m[1])*60 + atoi(m[2])
	end := atoi(m[3])*60 + atoi(m[4])
	cur := now.Hour()*60 + now.Minute()

	if end < start {
		return cur >= start || cur <= end
	}
	return cur >= start && cur <= end
}

// HasParking reads a parking cell: a count of at least one, or 有/あり.
func HasParking(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if n := countPattern.FindString(s); n != "" {
		return atoi(n) >= 1
	}
	return strings.Contains(s, "有") || strings.Contains(s, "あり")
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
