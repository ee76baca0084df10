package geo

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/TomiHiltunen/geohash-golang"
	"github.com/golang/geo/s2"

	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/pkg/models"
)

// EarthRadiusMeters is the mean earth radius used to scale s2 angles.
const EarthRadiusMeters = 6371008.8

const (
	DefaultChunkSize = 100
	// memo tables kept for the most recent position signatures
	maxSignatures = 4
)

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b models.Coordinate) float64 {
	la := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	lb := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return la.Distance(lb).Radians() * EarthRadiusMeters
}

// Signature identifies a resolved position for memoization.
func Signature(c models.Coordinate) string {
	return geohash.Encode(c.Latitude, c.Longitude)
}

// ParsePoint converts record coordinate strings into a valid point.
func ParsePoint(lat, lng string) (models.Coordinate, bool) {
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return models.Coordinate{}, false
	}
	lo, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return models.Coordinate{}, false
	}
	c := models.Coordinate{Latitude: la, Longitude: lo}
	return c, ValidPoint(c)
}

// Engine enriches festivals with their distance from a position, memoizing
// per (record, position signature).
type Engine struct {
	chunkSize int

	mu    sync.Mutex
	memo  map[string]map[string]float64
	order []string

	computations atomic.Int64
}

func NewEngine(chunkSize int) *Engine {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Engine{
		chunkSize: chunkSize,
		memo:      make(map[string]map[string]float64),
	}
}

// Computations is the number of distances actually computed (memo misses).
func (e *Engine) Computations() int64 {
	return e.computations.Load()
}

// recordKey includes the coordinates so an ID reused by a regenerated feed
// never serves a distance for a moved record.
func recordKey(f models.Festival) string {
	return f.ID + "|" + f.Latitude + "|" + f.Longitude
}

// DistancesFor returns a copy of records, in the same order, with Distance set
// for every record whose coordinates parse. Work is done one chunk at a time;
// the context is checked and the goroutine yields between chunks.
func (e *Engine) DistancesFor(ctx context.Context, records []models.Festival, pos models.Position) ([]models.Festival, error) {
	out := make([]models.Festival, len(records))
	copy(out, records)
	sig := Signature(pos.Coordinate)

	for start := 0; start < len(out); start += e.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+e.chunkSize, len(out))
		e.resolveChunk(out[start:end], pos.Coordinate, sig)
		runtime.Gosched()
	}
	return out, nil
}

func (e *Engine) resolveChunk(chunk []models.Festival, origin models.Coordinate, sig string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	table := e.table(sig)
	for i := range chunk {
		chunk[i].Distance = nil
		key := recordKey(chunk[i])
		if d, ok := table[key]; ok {
			chunk[i].Distance = &d
			continue
		}
		pt, ok := ParsePoint(chunk[i].Latitude, chunk[i].Longitude)
		if !ok {
			continue
		}
		d := Distance(origin, pt)
		e.computations.Add(1)
		table[key] = d
		chunk[i].Distance = &d
	}
}

// table returns the memo for sig, evicting the oldest signature when full.
// Callers hold e.mu.
func (e *Engine) table(sig string) map[string]float64 {
	if t, ok := e.memo[sig]; ok {
		return t
	}
	if len(e.order) >= maxSignatures {
		delete(e.memo, e.order[0])
		e.order = e.order[1:]
	}
	t := make(map[string]float64)
	e.memo[sig] = t
	e.order = append(e.order, sig)
	return t
}

// Reset clears every memo table.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.memo = make(map[string]map[string]float64)
	e.order = nil
	e.mu.Unlock()
}
