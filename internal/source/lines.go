package source

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/livecaption/wsbroadcast/pkg/pool"
)

// DefaultMaxLineBytes is the longest line Lines accepts by default.
const DefaultMaxLineBytes = 1024 * 1024

// Lines broadcasts every non-empty line of a reader.
type Lines struct {
	r   io.Reader
	max int
}

var _ Source = (*Lines)(nil)

// NewLines returns a source reading r. Lines longer than
// DefaultMaxLineBytes end Run with an error.
func NewLines(r io.Reader) *Lines {
	return &Lines{r: r, max: DefaultMaxLineBytes}
}

// WithMaxLineBytes sets the longest accepted line.
func (l *Lines) WithMaxLineBytes(n int) *Lines {
	if n > 0 {
		l.max = n
	}
	return l
}

// Name implements Source.
func (l *Lines) Name() string { return "lines" }

// Run implements Source. A blocked read is not interrupted by ctx; Run
// notices cancellation at the next line.
func (l *Lines) Run(ctx context.Context, targets []pool.Broadcaster) error {
	sc := bufio.NewScanner(l.r)
	sc.Buffer(make([]byte, 0, min(64*1024, l.max)), l.max)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := sc.Text()
		if line == "" {
			continue
		}
		deliver(targets, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("source: read input: %w", err)
	}
	return nil
}
