// Package reader holds the collaborators on the hardware side of the
// engine: sources of card observations and the bounded-retry card writer.
package reader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/clock"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

// ErrBadRead wraps a line that does not carry a usable card id.
var ErrBadRead = errors.New("unreadable card id")

// Source yields observations. ok=false with a nil error means no card is
// present. io.EOF means the source is exhausted.
type Source interface {
	Next(ctx context.Context) (obs types.Observation, ok bool, err error)
}

// LineSource reads one card per line, the way keyboard-wedge readers and
// replay files deliver them:
//
//	584190037762
//	0x8804A1B2C3 2026-03-02T08:15:00Z
//
// An optional RFC 3339 timestamp after the id overrides the clock. Blank
// lines and lines starting with '#' are "no card".
type LineSource struct {
	lines chan lineResult
	clock clock.Clock
	stop  chan struct{}
}

type lineResult struct {
	text string
	err  error
}

// NewLineSource starts scanning r in the background. Close stops
// delivery; the scanning goroutine exits once r returns.
func NewLineSource(r io.Reader, clk clock.Clock) *LineSource {
	if clk == nil {
		clk = clock.Real()
	}
	s := &LineSource{
		lines: make(chan lineResult),
		clock: clk,
		stop:  make(chan struct{}),
	}
	go s.scan(r)
	return s
}

// maxLineBytes bounds one reader line. Longer lines are reported as bad
// reads and skipped.
const maxLineBytes = 4096

func (s *LineSource) scan(r io.Reader) {
	defer close(s.lines)
	br := bufio.NewReaderSize(r, maxLineBytes)
	for {
		line, isPrefix, err := br.ReadLine()
		var res lineResult
		switch {
		case err != nil:
			res.err = err
		case isPrefix:
			for isPrefix && err == nil {
				_, isPrefix, err = br.ReadLine()
			}
			res.err = fmt.Errorf("%w: line longer than %d bytes", ErrBadRead, maxLineBytes)
		default:
			res.text = string(line)
		}

		select {
		case s.lines <- res:
		case <-s.stop:
			return
		}
		if res.err != nil && !errors.Is(res.err, ErrBadRead) {
			return
		}
	}
}

func (s *LineSource) Next(ctx context.Context) (types.Observation, bool, error) {
	select {
	case <-ctx.Done():
		return types.Observation{}, false, ctx.Err()
	case res, open := <-s.lines:
		if !open {
			return types.Observation{}, false, io.EOF
		}
		if res.err != nil {
			return types.Observation{}, false, res.err
		}
		return s.parse(res.text)
	}
}

func (s *LineSource) parse(line string) (types.Observation, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return types.Observation{}, false, nil
	}

	fields := strings.Fields(line)
	card, err := types.ParseCardID(fields[0])
	if err != nil {
		return types.Observation{}, false, fmt.Errorf("%w: %v", ErrBadRead, err)
	}

	obs := types.Observation{CardID: card}
	if len(fields) > 1 {
		at, err := time.Parse(time.RFC3339Nano, fields[1])
		if err != nil {
			return types.Observation{}, false, fmt.Errorf("%w: timestamp %q", ErrBadRead, fields[1])
		}
		obs.ObservedAt = at
	} else {
		obs.ObservedAt = s.clock.Now()
	}
	return obs, true, nil
}

// Close stops delivering lines. Safe to call more than once.
func (s *LineSource) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	return nil
}

// SliceSource replays a fixed list of observations, then reports io.EOF.
type SliceSource struct {
	obs []types.Observation
}

func NewSliceSource(obs ...types.Observation) *SliceSource {
	return &SliceSource{obs: obs}
}

func (s *SliceSource) Next(ctx context.Context) (types.Observation, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.Observation{}, false, err
	}
	if len(s.obs) == 0 {
		return types.Observation{}, false, io.EOF
	}
	o := s.obs[0]
	s.obs = s.obs[1:]
	return o, true, nil
}
