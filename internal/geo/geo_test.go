package geo

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	. "gopkg.in/check.v1"

	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/pkg/models"
)

// Hook up gocheck into the "go test" runner.
func Test(t *testing.T) { TestingT(t) }

type EngineSuite struct {
	origin models.Position
}

var _ = Suite(&EngineSuite{})

func (s *EngineSuite) SetUpTest(c *C) {
	s.origin = models.Position{Coordinate: models.Coordinate{Latitude: 38.0, Longitude: 138.0}}
}

func festival(id, lat, lng string) models.Festival {
	return models.Festival{ID: id, Name: id, Latitude: lat, Longitude: lng}
}

func (s *EngineSuite) TestDistance(c *C) {
	c.Assert(Distance(s.origin.Coordinate, s.origin.Coordinate), Equals, 0.0)

	d := Distance(s.origin.Coordinate, models.Coordinate{Latitude: 38.0, Longitude: 139.0})
	c.Assert(d > 87500 && d < 87800, Equals, true, Commentf("got %f", d))

	// symmetric
	back := Distance(models.Coordinate{Latitude: 38.0, Longitude: 139.0}, s.origin.Coordinate)
	c.Assert(math.Abs(d-back) < 1e-6, Equals, true)
}

func (s *EngineSuite) TestDistancesKeepOrderAndMarkInvalid(c *C) {
	e := NewEngine(0)
	in := []models.Festival{
		festival("far", "38.0", "139.0"),
		festival("bad", "北緯", "138.0"),
		festival("here", "38.0", "138.0"),
		festival("range", "95.0", "138.0"),
	}
	out, err := e.DistancesFor(context.Background(), in, s.origin)
	c.Assert(err, IsNil)
	c.Assert(out, HasLen, 4)

	c.Assert(out[0].ID, Equals, "far")
	c.Assert(out[0].Distance, NotNil)
	c.Assert(out[1].Distance, IsNil)
	c.Assert(*out[2].Distance, Equals, 0.0)
	c.Assert(out[3].Distance, IsNil)

	// input is untouched
	c.Assert(in[0].Distance, IsNil)
}

func (s *EngineSuite) TestMemoization(c *C) {
	e := NewEngine(0)
	in := []models.Festival{
		festival("a", "38.0", "139.0"),
		festival("b", "37.8", "138.3"),
		festival("c", "x", "y"),
	}

	first, err := e.DistancesFor(context.Background(), in, s.origin)
	c.Assert(err, IsNil)
	c.Assert(e.Computations(), Equals, int64(2))

	second, err := e.DistancesFor(context.Background(), in, s.origin)
	c.Assert(err, IsNil)
	c.Assert(e.Computations(), Equals, int64(2))
	for i := range first {
		if first[i].Distance == nil {
			c.Assert(second[i].Distance, IsNil)
			continue
		}
		c.Assert(*second[i].Distance, Equals, *first[i].Distance)
	}

	moved := models.Position{Coordinate: models.Coordinate{Latitude: 38.1, Longitude: 138.2}}
	_, err = e.DistancesFor(context.Background(), in, moved)
	c.Assert(err, IsNil)
	c.Assert(e.Computations(), Equals, int64(4))
}

func (s *EngineSuite) TestMovedRecordIsRecomputed(c *C) {
	e := NewEngine(0)
	_, err := e.DistancesFor(context.Background(), []models.Festival{festival("1", "38.0", "139.0")}, s.origin)
	c.Assert(err, IsNil)

	out, err := e.DistancesFor(context.Background(), []models.Festival{festival("1", "38.0", "138.0")}, s.origin)
	c.Assert(err, IsNil)
	c.Assert(*out[0].Distance, Equals, 0.0)
	c.Assert(e.Computations(), Equals, int64(2))
}

func (s *EngineSuite) TestChunking(c *C) {
	e := NewEngine(3)
	in := make([]models.Festival, 10)
	for i := range in {
		in[i] = festival(string(rune('a'+i)), "38.0", "138.5")
	}
	out, err := e.DistancesFor(context.Background(), in, s.origin)
	c.Assert(err, IsNil)
	c.Assert(out, HasLen, 10)
	for i := range out {
		c.Assert(out[i].ID, Equals, in[i].ID)
		c.Assert(out[i].Distance, NotNil)
	}
	c.Assert(e.Computations(), Equals, int64(10))
}

func (s *EngineSuite) TestCanceled(c *C) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := NewEngine(0).DistancesFor(ctx, []models.Festival{festival("a", "38", "138")}, s.origin)
	c.Assert(errors.Is(err, context.Canceled), Equals, true)
	c.Assert(out, IsNil)
}

func (s *EngineSuite) TestSignature(c *C) {
	a := Signature(models.Coordinate{Latitude: 38.0, Longitude: 138.0})
	b := Signature(models.Coordinate{Latitude: 38.0, Longitude: 138.0})
	other := Signature(models.Coordinate{Latitude: 38.001, Longitude: 138.0})
	c.Assert(a, Equals, b)
	c.Assert(a, Not(Equals), other)
}

func (s *EngineSuite) TestReset(c *C) {
	e := NewEngine(0)
	in := []models.Festival{festival("a", "38.0", "139.0")}
	_, _ = e.DistancesFor(context.Background(), in, s.origin)
	e.Reset()
	_, _ = e.DistancesFor(context.Background(), in, s.origin)
	c.Assert(e.Computations(), Equals, int64(2))
}

type ProviderSuite struct {
	now   time.Time
	calls int
}

var _ = Suite(&ProviderSuite{})

func (s *ProviderSuite) SetUpTest(c *C) {
	s.now = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	s.calls = 0
}

func (s *ProviderSuite) clock() time.Time { return s.now }

func (s *ProviderSuite) locator(lat, lng float64) Locator {
	return LocatorFunc(func(ctx context.Context) (models.Coordinate, error) {
		s.calls++
		return models.Coordinate{Latitude: lat, Longitude: lng}, nil
	})
}

func (s *ProviderSuite) TestReusesWithinWindow(c *C) {
	p := NewProvider(s.locator(38.0, 138.0), WithClock(s.clock))

	pos, err := p.Resolve(context.Background())
	c.Assert(err, IsNil)
	c.Assert(pos.Latitude, Equals, 38.0)

	s.now = s.now.Add(59 * time.Minute)
	_, err = p.Resolve(context.Background())
	c.Assert(err, IsNil)
	c.Assert(s.calls, Equals, 1)

	s.now = s.now.Add(time.Minute)
	_, err = p.Resolve(context.Background())
	c.Assert(err, IsNil)
	c.Assert(s.calls, Equals, 2)
}

func (s *ProviderSuite) TestSharedLocationWins(c *C) {
	p := NewProvider(s.locator(38.0, 138.0), WithClock(s.clock))
	_, err := p.Resolve(context.Background())
	c.Assert(err, IsNil)

	shared, err := p.Share(models.Coordinate{Latitude: 37.8, Longitude: 138.25})
	c.Assert(err, IsNil)
	c.Assert(shared.ResolvedAt, Equals, s.now)

	pos, err := p.Resolve(context.Background())
	c.Assert(err, IsNil)
	c.Assert(pos.Latitude, Equals, 37.8)
	c.Assert(s.calls, Equals, 1)

	_, err = p.Share(models.Coordinate{Latitude: math.NaN(), Longitude: 1})
	c.Assert(errors.Is(err, ErrLocationUnavailable), Equals, true)
}

func (s *ProviderSuite) TestFailureIsUnavailable(c *C) {
	denied := LocatorFunc(func(ctx context.Context) (models.Coordinate, error) {
		return models.Coordinate{}, errors.New("permission denied")
	})
	_, err := NewProvider(denied).Resolve(context.Background())
	c.Assert(errors.Is(err, ErrLocationUnavailable), Equals, true)

	_, err = NewProvider(nil).Resolve(context.Background())
	c.Assert(errors.Is(err, ErrLocationUnavailable), Equals, true)

	_, err = NewProvider(s.locator(200, 0)).Resolve(context.Background())
	c.Assert(errors.Is(err, ErrLocationUnavailable), Equals, true)
}

func (s *ProviderSuite) TestTimeout(c *C) {
	slow := LocatorFunc(func(ctx context.Context) (models.Coordinate, error) {
		<-ctx.Done()
		return models.Coordinate{}, ctx.Err()
	})
	p := NewProvider(slow, WithTimeout(10*time.Millisecond))
	_, err := p.Resolve(context.Background())
	c.Assert(errors.Is(err, ErrLocationUnavailable), Equals, true)
}

func (s *ProviderSuite) TestForget(c *C) {
	p := NewProvider(s.locator(38.0, 138.0), WithClock(s.clock))
	_, _ = p.Resolve(context.Background())
	p.Forget()
	_, _ = p.Resolve(context.Background())
	c.Assert(s.calls, Equals, 2)
}
