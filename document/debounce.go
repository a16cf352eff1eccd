package document

import (
	"context"
	"time"

	"github.com/zoobzio/clockz"
)

// debounce calls apply with the latest value received from in once in has
// been quiet for d. With d <= 0 every value is applied immediately. A value
// still pending when in closes is applied before returning.
func debounce[T any](ctx context.Context, clock clockz.Clock, d time.Duration, in <-chan T, apply func(T)) {
	var (
		timer   clockz.Timer
		pending bool
		latest  T
	)

	for {
		// Get timer channel or nil if no timer
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case v, ok := <-in:
			if !ok {
				if timer != nil {
					timer.Stop()
				}
				if pending {
					apply(latest)
				}
				return
			}
			if d <= 0 {
				apply(v)
				continue
			}
			latest, pending = v, true

			// Reset or start debounce timer
			if timer == nil {
				timer = clock.NewTimer(d)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C():
					default:
					}
				}
				timer.Reset(d)
			}

		case <-timerC:
			if pending {
				apply(latest)
				pending = false
			}
		}
	}
}
