package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/csvfeed"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/geo"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/listing"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/store"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/pkg/models"
)

var (
	// ErrUnknownSession is returned for session ids that are not valid UUIDs.
	ErrUnknownSession = errors.New("unknown session")
	// ErrNoData means nothing was ever loaded for the session; it wraps the cause.
	ErrNoData = errors.New("no data loaded")
)

// Fetcher downloads the raw text of a feed.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Feeds are the upstream sources. Events is optional.
type Feeds struct {
	Festivals   Fetcher
	Events      Fetcher
	Schema      csvfeed.FestivalSchema
	EventSchema csvfeed.EventSchema
}

// Options tunes the pipeline. Zero values select defaults.
type Options struct {
	Mode                  listing.Mode
	Location              *time.Location
	ScaleOrder            []string
	PageInitial           int
	PageIncrement         int
	ChunkSize             int
	PositionCacheDuration time.Duration
	PositionTimeout       time.Duration
	Locator               geo.Locator
	FetchTimeout          time.Duration
	FuzzyDistance         int
	SessionIdleTimeout    time.Duration
	Now                   func() time.Time
}

func (o *Options) setDefaults() {
	if o.Mode == "" {
		o.Mode = listing.ModeChronological
	}
	if o.Location == nil {
		o.Location = time.FixedZone("JST", 9*3600)
	}
	if o.ScaleOrder == nil {
		o.ScaleOrder = listing.DefaultScaleOrder
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 30 * time.Second
	}
	if o.SessionIdleTimeout <= 0 {
		o.SessionIdleTimeout = 12 * time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Service runs the feed pipeline for each browser session.
type Service struct {
	opts    Options
	logger  zerolog.Logger
	metrics *metrics

	festivalFeed *feed[models.Festival]
	eventFeed    *feed[models.Event]
	sessions     store.SessionStore

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	contexts map[string]*Session
}

// New wires the pipeline. sessions backs the per-session snapshot cache.
func New(feeds Feeds, sessions store.SessionStore, logger zerolog.Logger, opts Options) (*Service, error) {
	if feeds.Festivals == nil {
		return nil, errors.New("service: festival feed is required")
	}
	if sessions == nil {
		return nil, errors.New("service: session store is required")
	}
	opts.setDefaults()

	m, err := newMetrics()
	if err != nil {
		return nil, fmt.Errorf("service metrics: %w", err)
	}

	schema := feeds.Schema
	if schema.RequiredFields == nil {
		schema = csvfeed.NewFestivalSchema(nil, nil)
	}
	eventSchema := feeds.EventSchema
	if eventSchema.Normalizer.URLFields == nil {
		eventSchema = csvfeed.NewEventSchema()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		opts:     opts,
		logger:   logger.With().Str("component", "service").Logger(),
		metrics:  m,
		sessions: sessions,
		ctx:      ctx,
		cancel:   cancel,
		contexts: make(map[string]*Session),
	}

	chrono := listing.Chronological{Location: opts.Location}
	s.festivalFeed = &feed[models.Festival]{
		name:    "festivals",
		fetcher: feeds.Festivals,
		parse:   func(r io.Reader) ([]models.Festival, csvfeed.Stats, error) { return schema.Parse(r) },
		order:   chrono.Sort,
		cache:   store.NewCache[[]models.Festival](sessions, store.KeyFestivals, logger),
		state:   func(sess *Session) *feedState[models.Festival] { return &sess.festivals },
	}
	if feeds.Events != nil {
		s.eventFeed = &feed[models.Event]{
			name:    "events",
			fetcher: feeds.Events,
			parse:   func(r io.Reader) ([]models.Event, csvfeed.Stats, error) { return eventSchema.Parse(r) },
			order:   func(evs []models.Event) []models.Event { return listing.SortEvents(evs, opts.Location) },
			cache:   store.NewCache[[]models.Event](sessions, store.KeyEvents, logger),
			state:   func(sess *Session) *feedState[models.Event] { return &sess.events },
		}
	}
	return s, nil
}

// CreateSession starts a new pipeline context and returns its id.
func (s *Service) CreateSession() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.contexts[id] = s.newSession(id)
	s.sweepLocked()
	s.mu.Unlock()
	s.logger.Info().Str("session", id).Msg("session created")
	return id
}

// session returns the pipeline context for id. A well-formed id that is not
// known locally (e.g. after a restart with a shared redis store) is adopted.
func (s *Service) session(id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUnknownSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.contexts[id]
	if !ok {
		sess = s.newSession(id)
		s.contexts[id] = sess
	}
	sess.touch(s.opts.Now())
	return sess, nil
}

func (s *Service) newSession(id string) *Session {
	sess := &Session{
		ID: id,
		provider: geo.NewProvider(s.opts.Locator,
			geo.WithCacheDuration(s.opts.PositionCacheDuration),
			geo.WithTimeout(s.opts.PositionTimeout),
			geo.WithClock(s.opts.Now),
		),
		engine: geo.NewEngine(s.opts.ChunkSize),
		pager:  listing.NewPager[models.Festival](s.opts.PageInitial, s.opts.PageIncrement),
	}
	sess.view.mode = s.opts.Mode
	sess.touch(s.opts.Now())
	return sess
}

// sweepLocked drops pipeline contexts idle for longer than the idle timeout.
// Callers hold s.mu.
func (s *Service) sweepLocked() {
	cutoff := s.opts.Now().Add(-s.opts.SessionIdleTimeout)
	for id, sess := range s.contexts {
		if sess.idleSince().Before(cutoff) {
			delete(s.contexts, id)
		}
	}
}

// Sessions returns the number of live pipeline contexts.
func (s *Service) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contexts)
}

// EndSession clears every cached snapshot of the session and drops its context.
func (s *Service) EndSession(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrUnknownSession
	}
	s.mu.Lock()
	sess, ok := s.contexts[id]
	delete(s.contexts, id)
	s.mu.Unlock()

	if ok {
		sess.mu.Lock()
		sess.ended = true
		sess.mu.Unlock()
	}
	keys := []string{s.festivalFeed.cache.Key(), store.KeyEvents}
	if s.eventFeed != nil {
		keys[1] = s.eventFeed.cache.Key()
	}
	if err := s.sessions.Delete(ctx, id, keys...); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	s.logger.Info().Str("session", id).Msg("session ended")
	return nil
}

// Unload is the page teardown hook: the time-sensitive events snapshot is
// cleared so the next visit does not show it optimistically.
func (s *Service) Unload(ctx context.Context, id string) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	sess.events.reset()
	sess.mu.Unlock()

	if s.eventFeed == nil {
		return nil
	}
	if err := s.eventFeed.cache.Clear(ctx, id); err != nil {
		return fmt.Errorf("unload session: %w", err)
	}
	return nil
}

// ForgetPosition drops the session's cached position and its distance memo,
// e.g. when the user stops sharing a location. Distance ordering falls back
// to chronological until a new position arrives.
func (s *Service) ForgetPosition(id string) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	sess.provider.Forget()
	sess.engine.Reset()
	s.logger.Debug().Str("session", id).Msg("position forgotten")
	return nil
}

// Wait blocks until background revalidations finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels background revalidations and waits for them.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// goBackground runs fn tracked by the wait group unless the service is closed.
func (s *Service) goBackground(fn func(ctx context.Context)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.FetchTimeout)
		defer cancel()
		fn(ctx)
	}()
	return true
}
