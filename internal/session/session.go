// Package session holds the per-visit state of the tracker: stable
// identifiers, the active/inactive timer, interaction counters and the
// event buffer.
package session

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Counters is a point-in-time copy of the interaction accumulators.
type Counters struct {
	PageViews      int
	Clicks         int
	ScrollDepth    float64
	MouseMovements int
}

// Session is the state of a single visit. The zero value is not usable;
// create one with New. All methods are safe for concurrent use.
type Session struct {
	clock clockwork.Clock

	visitUID  string
	sessionID string
	startTime time.Time

	mu               sync.Mutex
	totalActive      time.Duration
	lastActivityTime time.Time
	active           bool

	pageViews      int
	clicks         int
	scrollDepthMax float64
	mouseMoves     int

	events []Event
}

// New starts a visit at the clock's current time. The visit begins active
// with one page view.
func New(clock clockwork.Clock) *Session {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	now := clock.Now()

	return &Session{
		clock:            clock,
		visitUID:         fmt.Sprintf("visit_%d_%s", now.UnixMilli(), randomSuffix(15)),
		sessionID:        fmt.Sprintf("%d-%s", now.UnixMilli(), randomSuffix(9)),
		startTime:        now,
		lastActivityTime: now,
		active:           true,
		pageViews:        1,
	}
}

func randomSuffix(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	return s[:n]
}

func (s *Session) VisitUID() string     { return s.visitUID }
func (s *Session) SessionID() string    { return s.sessionID }
func (s *Session) StartTime() time.Time { return s.startTime }

// Activate moves the timer to Active and resets the watermark. Calling it
// while already active changes nothing.
func (s *Session) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		s.active = true
		s.lastActivityTime = s.clock.Now()
	}
}

// Deactivate flushes the time elapsed since the watermark into the
// accumulator and moves the timer to Inactive.
func (s *Session) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		s.totalActive += s.clock.Now().Sub(s.lastActivityTime)
		s.active = false
	}
}

func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// TotalActiveTime returns the accumulated active time, including the
// running segment when the visit is active.
func (s *Session) TotalActiveTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return s.totalActive + s.clock.Now().Sub(s.lastActivityTime)
	}
	return s.totalActive
}

func (s *Session) LastActivityTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityTime
}

func (s *Session) IncrementPageViews() {
	s.mu.Lock()
	s.pageViews++
	s.mu.Unlock()
}

// RecordClick increments the click counter and returns the new value.
func (s *Session) RecordClick() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks++
	return s.clicks
}

// RecordMouseMove increments the movement counter and returns the new value.
func (s *Session) RecordMouseMove() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mouseMoves++
	return s.mouseMoves
}

// RecordScrollDepth raises the scroll watermark to pct if it is higher and
// returns the watermark. Values outside 0..100 are clamped; NaN is ignored.
func (s *Session) RecordScrollDepth(pct float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !math.IsNaN(pct) {
		pct = math.Max(0, math.Min(100, pct))
		s.scrollDepthMax = math.Max(s.scrollDepthMax, pct)
	}
	return s.scrollDepthMax
}

func (s *Session) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Counters{
		PageViews:      s.pageViews,
		Clicks:         s.clicks,
		ScrollDepth:    s.scrollDepthMax,
		MouseMovements: s.mouseMoves,
	}
}

// AddEvent appends an event stamped with the current time and this visit.
func (s *Session) AddEvent(t EventType, data EventData) Event {
	ev := Event{
		Type:      t,
		Data:      data,
		Timestamp: s.clock.Now().UnixMilli(),
		VisitUID:  s.visitUID,
	}

	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()

	return ev
}

// Events returns a copy of the buffer in insertion order.
func (s *Session) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ScrollDepth converts a scroll position into a percentage of the
// scrollable height. Pages that do not scroll report 0.
func ScrollDepth(scrollTop, scrollHeight, viewportHeight float64) float64 {
	scrollable := scrollHeight - viewportHeight
	if scrollable <= 0 {
		return 0
	}
	pct := scrollTop / scrollable * 100
	return math.Max(0, math.Min(100, pct))
}
