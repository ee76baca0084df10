package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/geo"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/listing"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/pkg/models"
)

// RefreshState is where a feed is in its refresh cycle.
type RefreshState int

const (
	StateIdle RefreshState = iota
	StateServingCache
	StateFetching
	StateParsed
	StateCompared
	StateApplied
	StateDiscarded
)

var stateNames = [...]string{"idle", "serving_cache", "fetching", "parsed", "compared", "applied", "discarded"}

func (s RefreshState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Session is the pipeline context of one browser session: its position
// cache, distance memo, pager and per-feed refresh bookkeeping. mu guards
// everything except the provider and engine, which lock themselves.
type Session struct {
	ID string

	provider *geo.Provider
	engine   *geo.Engine
	lastSeen atomic.Int64

	mu        sync.Mutex
	ended     bool
	pager     *listing.Pager[models.Festival]
	view      viewState
	festivals feedState[models.Festival]
	events    feedState[models.Event]
}

func (s *Session) touch(now time.Time) { s.lastSeen.Store(now.UnixNano()) }

func (s *Session) idleSince() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// viewState tracks the list behind the pager. Browse calls take a
// generation; a slower, older call never replaces a newer list.
type viewState struct {
	mode       listing.Mode
	distance   bool
	nextGen    uint64
	appliedGen uint64
}

// tracker is the feed bookkeeping that does not depend on the record type.
type tracker struct {
	state      RefreshState
	loaded     bool
	fromCache  bool
	inflight   int
	nextGen    uint64
	appliedGen uint64
	lastErr    error
}

// begin takes the next refresh generation.
func (t *tracker) begin() uint64 {
	t.nextGen++
	t.inflight++
	return t.nextGen
}

// Status is the freshness of the data behind a response.
type Status struct {
	Stale        bool
	Error        string
	FromCache    bool
	Revalidating bool
	Generation   uint64
	State        RefreshState
}

func (t *tracker) status() Status {
	st := Status{
		FromCache:    t.fromCache,
		Revalidating: t.inflight > 0,
		Generation:   t.appliedGen,
		State:        t.state,
	}
	if t.lastErr != nil {
		st.Stale = true
		st.Error = t.lastErr.Error()
	}
	return st
}

type feedState[T any] struct {
	tracker
	// encoded is snapshot in cache form; refreshes are compared against it.
	snapshot []T
	encoded  []byte
}

// reset forgets the snapshot. Refreshes already in flight become stale.
func (f *feedState[T]) reset() {
	f.snapshot = nil
	f.encoded = nil
	f.loaded = false
	f.fromCache = false
	f.lastErr = nil
	f.appliedGen = f.nextGen
	f.state = StateIdle
}
