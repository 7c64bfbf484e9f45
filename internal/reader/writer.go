package reader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/payload"
)

var ErrWriteFailed = errors.New("card write failed")

// CardWriter writes a payload to the card currently on the reader.
type CardWriter interface {
	WriteCard(ctx context.Context, data []byte) error
}

// RetryPolicy bounds WriteWithRetry.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// WriteWithRetry checks the payload size, then tries w up to MaxAttempts
// times. Oversized payloads are rejected before the first attempt.
func WriteWithRetry(ctx context.Context, w CardWriter, data []byte, p RetryPolicy) error {
	if len(data) > payload.MaxPayloadBytes {
		return fmt.Errorf("%w: %d bytes, max %d", payload.ErrPayloadTooLarge, len(data), payload.MaxPayloadBytes)
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if last = w.WriteCard(ctx, data); last == nil {
			return nil
		}
		if attempt == p.MaxAttempts || p.Backoff <= 0 {
			continue
		}
		t := time.NewTimer(p.Backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrWriteFailed, p.MaxAttempts, last)
}

// FileWriter hands the payload to a writer daemon or character device by
// writing it to Path.
type FileWriter struct {
	Path string
}

func (f FileWriter) WriteCard(_ context.Context, data []byte) error {
	fh, err := os.OpenFile(f.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := fh.Write(data); err != nil {
		fh.Close()
		return err
	}
	if err := fh.Sync(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}
