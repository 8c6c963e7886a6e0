package helpers

import (
	"sync/atomic"
	"time"

	"github.com/wolkabout/wolkconnect-go/helpers/atomic_clock"
)

// Limited exponential backoff for retry delays.
// First failure waits Min, each next one K times longer up to Max.
// Success resets delay to zero.
type Backoff struct {
	next int64 // atomic align
	last atomic_clock.Clock

	Min time.Duration
	Max time.Duration
	K   float32
	Res time.Duration // delay resolution for nice logs, default=1ms
}

// Use scenario:
// for {
//   err := op()
//   time.Sleep(backoff.DelayAfter(err==nil))
// }
func (b *Backoff) DelayAfter(success bool) time.Duration {
	b.Update(success)
	return b.DelayBefore()
}

// DelayBefore is remaining part of current delay since last Update.
func (b *Backoff) DelayBefore() time.Duration {
	next := time.Duration(atomic.LoadInt64(&b.next))
	if next == 0 {
		return 0
	}
	since := atomic_clock.Since(&b.last)
	if since >= next {
		return 0
	}
	return b.round(next - since)
}

func (b *Backoff) Failure() {
	next := time.Duration(atomic.LoadInt64(&b.next))
	if next == 0 {
		next = b.Min
	} else {
		k := b.K
		if k < 1 {
			k = 2
		}
		next = time.Duration(float32(next) * k)
	}
	b.last.SetNow()
	atomic.StoreInt64(&b.next, int64(b.limit(next)))
}

func (b *Backoff) Reset() {
	b.last.SetNow()
	atomic.StoreInt64(&b.next, 0)
}

func (b *Backoff) Update(success bool) {
	if success {
		b.Reset()
	} else {
		b.Failure()
	}
}

func (b *Backoff) limit(d time.Duration) time.Duration {
	if d < b.Min {
		d = b.Min
	}
	if b.Max != 0 && d > b.Max {
		d = b.Max
	}
	return b.round(d)
}

func (b *Backoff) round(d time.Duration) time.Duration {
	res := b.Res
	if res == 0 {
		res = 1 * time.Millisecond
	}
	return d / res * res
}
