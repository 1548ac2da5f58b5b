package tracker

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/gosight/visittrack/internal/session"
)

// Start sends the init beacon and begins publishing a snapshot to
// subscribers every snapshot interval. Periodic snapshots are never
// transmitted. Calling Start twice, or after Stop, does nothing. Stop ends
// the periodic snapshots but not an init beacon already in flight.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.started = true
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	ticker := t.clock.NewTicker(t.snapshotInterval)
	t.mu.Unlock()

	log.Info().Str("visit_uid", t.VisitUID()).Msg("Tracker started")

	go func() {
		if _, err := t.SendInitTracking(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Init tracking failed")
		}
	}()

	go func() {
		defer ticker.Stop()
		t.publish(t.Snapshot(ctx))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				t.publish(t.Snapshot(ctx))
			}
		}
	}()
}

// Subscribe registers fn to receive every published snapshot.
func (t *Tracker) Subscribe(fn func(Snapshot)) {
	t.mu.Lock()
	t.subscribers = append(t.subscribers, fn)
	t.mu.Unlock()
}

// Latest returns the most recently published snapshot, or nil before the
// first one.
func (t *Tracker) Latest() *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest == nil {
		return nil
	}
	snap := *t.latest
	return &snap
}

func (t *Tracker) publish(snap Snapshot) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.latest = &snap
	subs := make([]func(Snapshot), len(t.subscribers))
	copy(subs, t.subscribers)
	t.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// Unload handles the page going away: the activity timer stops and a final
// snapshot is sent unless one is in flight or was sent within the cooldown
// period. The returned channel closes once that send has finished.
func (t *Tracker) Unload() <-chan struct{} {
	t.session.Deactivate()
	return t.finalSend("unload")
}

// Stop tears the tracker down. Pending debounced events are dropped, the
// periodic snapshot stops and a final send is attempted as in Unload. Stop
// does not wait for that send.
func (t *Tracker) Stop() <-chan struct{} {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		done := make(chan struct{})
		close(done)
		return done
	}
	t.stopped = true
	if t.cancel != nil {
		t.cancel()
	}
	if t.scrollTimer != nil {
		t.scrollTimer.Stop()
	}
	if t.mouseTimer != nil {
		t.mouseTimer.Stop()
	}
	t.mu.Unlock()

	log.Info().Str("visit_uid", t.VisitUID()).Msg("Tracker stopped")

	t.session.Deactivate()
	return t.finalSend("teardown")
}

func (t *Tracker) finalSend(reason string) <-chan struct{} {
	done := make(chan struct{})

	if t.sending.Load() || t.coolingDown.Load() {
		log.Debug().Str("reason", reason).Msg("Skipping final tracking send, sent recently")
		close(done)
		return done
	}

	go func() {
		defer close(done)
		if _, err := t.SendTrackingData(context.Background()); err != nil {
			log.Warn().Err(err).Str("reason", reason).Msg("Final tracking send failed")
		}
	}()
	return done
}

func (t *Tracker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// debounce restarts *timer so fn runs once the signal has been quiet for d.
func (t *Tracker) debounce(timer *clockwork.Timer, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	if *timer != nil {
		(*timer).Stop()
	}
	*timer = t.clock.AfterFunc(d, fn)
}

// Focus marks the visit active and records a focus event.
func (t *Tracker) Focus() {
	if t.isStopped() {
		return
	}
	t.session.Activate()
	t.session.AddEvent(session.EventFocus, session.EventData{})
}

// Blur marks the visit inactive and records a blur event.
func (t *Tracker) Blur() {
	if t.isStopped() {
		return
	}
	t.session.Deactivate()
	t.session.AddEvent(session.EventBlur, session.EventData{})
}

// VisibilityChanged drives the activity timer without recording an event.
func (t *Tracker) VisibilityChanged(visible bool) {
	if t.isStopped() {
		return
	}
	if visible {
		t.session.Activate()
	} else {
		t.session.Deactivate()
	}
}

func (t *Tracker) Click() {
	if t.isStopped() {
		return
	}
	clicks := t.session.RecordClick()
	t.session.AddEvent(session.EventClick, session.EventData{Clicks: &clicks})
}

// Scroll raises the scroll-depth watermark immediately and records a
// scroll event once scrolling has been quiet for 100ms.
func (t *Tracker) Scroll(scrollTop, scrollHeight, viewportHeight float64) {
	if t.isStopped() {
		return
	}
	t.session.RecordScrollDepth(session.ScrollDepth(scrollTop, scrollHeight, viewportHeight))
	t.debounce(&t.scrollTimer, scrollQuietPeriod, func() {
		if t.isStopped() {
			return
		}
		depth := t.session.Counters().ScrollDepth
		t.session.AddEvent(session.EventScroll, session.EventData{ScrollDepth: &depth})
	})
}

// MouseMove counts every movement. When movement pauses and the count is a
// multiple of ten an event is recorded.
func (t *Tracker) MouseMove() {
	if t.isStopped() {
		return
	}
	t.session.RecordMouseMove()
	t.debounce(&t.mouseTimer, mouseQuietPeriod, func() {
		if t.isStopped() {
			return
		}
		moves := t.session.Counters().MouseMovements
		if moves%mouseEventEvery == 0 {
			// Mouse activity is reported under the scroll type; collectors
			// have no dedicated movement type.
			t.session.AddEvent(session.EventScroll, session.EventData{MouseMovements: &moves})
		}
	})
}

// PageLoaded records a page_view event carrying the load duration.
func (t *Tracker) PageLoaded(navigationStart, loadEventEnd time.Time) {
	if t.isStopped() {
		return
	}
	ms := loadEventEnd.Sub(navigationStart).Milliseconds()

	t.mu.Lock()
	t.pageLoadTime = &ms
	t.mu.Unlock()

	t.session.AddEvent(session.EventPageView, session.EventData{PageLoadTime: &ms})
}
