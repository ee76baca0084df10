package listing

const (
	DefaultInitialPage = 20
	DefaultIncrement   = 10
)

// Pager exposes a sorted collection in growing pages. It is not safe for
// concurrent use.
type Pager[T any] struct {
	initial   int
	increment int
	items     []T
	shown     int
}

func NewPager[T any](initial, increment int) *Pager[T] {
	if initial <= 0 {
		initial = DefaultInitialPage
	}
	if increment <= 0 {
		increment = DefaultIncrement
	}
	return &Pager[T]{initial: initial, increment: increment, items: []T{}}
}

// Reset replaces the collection and goes back to the initial page.
func (p *Pager[T]) Reset(items []T) []T {
	if items == nil {
		items = []T{}
	}
	p.items = items
	p.shown = min(p.initial, len(items))
	return p.Page()
}

// More grows the visible page by one increment. Once everything is shown it
// changes nothing.
func (p *Pager[T]) More() []T {
	p.shown = min(p.shown+p.increment, len(p.items))
	return p.Page()
}

// Page returns the currently visible prefix.
func (p *Pager[T]) Page() []T {
	return p.items[:p.shown:p.shown]
}

func (p *Pager[T]) HasMore() bool { return p.shown < len(p.items) }

func (p *Pager[T]) Total() int { return len(p.items) }
