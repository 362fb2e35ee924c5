package sync

const (
	// DefaultPageSize is used for any direction with no configured size.
	DefaultPageSize = 30
	// DefaultChangelogPageSize bounds each added-message page during
	// changelog reconciliation.
	DefaultChangelogPageSize = 100
	// DefaultMaxChangelogPages caps each reconciliation phase.
	DefaultMaxChangelogPages = 50
)

// Config sizes the requests a Coordinator issues.
type Config struct {
	PreviousResultSize int
	NextResultSize     int
	ChangelogPageSize  int
	MaxChangelogPages  int
}

func (c Config) withDefaults() Config {
	if c.PreviousResultSize < 0 {
		c.PreviousResultSize = 0
	}
	if c.NextResultSize < 0 {
		c.NextResultSize = 0
	}
	if c.ChangelogPageSize <= 0 {
		c.ChangelogPageSize = DefaultChangelogPageSize
	}
	if c.MaxChangelogPages <= 0 {
		c.MaxChangelogPages = DefaultMaxChangelogPages
	}
	return c
}

func (c Config) previousSize() int {
	if c.PreviousResultSize > 0 {
		return c.PreviousResultSize
	}
	return DefaultPageSize
}

func (c Config) nextSize() int {
	if c.NextResultSize > 0 {
		return c.NextResultSize
	}
	return DefaultPageSize
}

// splitSizes returns the previous/next sizes for a load centered on an
// anchor. Each side asks for half of its configured size; a side set to
// zero borrows the other side's size first, and DefaultPageSize applies
// when both are zero. Neither side goes below one.
func (c Config) splitSizes() (prev, next int) {
	prev, next = c.PreviousResultSize, c.NextResultSize
	if prev == 0 {
		prev = next
	}
	if next == 0 {
		next = prev
	}
	if prev == 0 {
		prev, next = DefaultPageSize, DefaultPageSize
	}
	return max(prev/2, 1), max(next/2, 1)
}
