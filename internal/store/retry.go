package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/bratgest/internal/apperr"
)

// DefaultRetries is the number of extra attempts Open configures when
// Config.Retries is zero.
const DefaultRetries = 2

// Retrying wraps a Store and repeats failed calls with jittered
// exponential backoff. Not-found results and context errors are returned
// immediately.
type Retrying struct {
	Store
	attempts int
	base     time.Duration
	max      time.Duration
}

// WithRetry wraps st so each call is tried up to retries+1 times. base is
// the first delay; it doubles per attempt up to eight times base.
func WithRetry(st Store, retries int, base time.Duration) *Retrying {
	if retries < 0 {
		retries = 0
	}
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	return &Retrying{Store: st, attempts: retries + 1, base: base, max: 8 * base}
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// backoff returns the delay before attempt n (1-indexed) with up to 50%
// jitter added.
func (r *Retrying) backoff(n int) time.Duration {
	d := r.base << uint(n-1)
	if d > r.max || d <= 0 {
		d = r.max
	}
	return d + time.Duration(rand.Int64N(int64(d)/2+1))
}

func (r *Retrying) do(ctx context.Context, fn func() error) error {
	var err error
	for n := 0; n < r.attempts; n++ {
		if n > 0 {
			t := time.NewTimer(r.backoff(n))
			select {
			case <-ctx.Done():
				t.Stop()
				return errors.Join(err, ctx.Err())
			case <-t.C:
			}
		}
		if err = fn(); !IsRetryable(err) {
			return err
		}
	}
	return err
}

// Put buffers the body once so every attempt sends the same bytes.
func (r *Retrying) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (Info, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return Info{}, err
	}
	var info Info
	err = r.do(ctx, func() error {
		var err error
		info, err = r.Store.Put(ctx, key, bytes.NewReader(data), opts)
		return err
	})
	return info, err
}

func (r *Retrying) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	var (
		info Info
		rc   io.ReadCloser
	)
	err := r.do(ctx, func() error {
		var err error
		info, rc, err = r.Store.Get(ctx, key)
		return err
	})
	return info, rc, err
}

func (r *Retrying) Delete(ctx context.Context, key string) (bool, error) {
	var existed bool
	err := r.do(ctx, func() error {
		var err error
		existed, err = r.Store.Delete(ctx, key)
		return err
	})
	return existed, err
}

func (r *Retrying) List(ctx context.Context, prefix string) ([]Info, error) {
	var infos []Info
	err := r.do(ctx, func() error {
		var err error
		infos, err = r.Store.List(ctx, prefix)
		return err
	})
	return infos, err
}
