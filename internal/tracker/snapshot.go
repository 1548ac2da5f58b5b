package tracker

import (
	"context"

	"github.com/gosight/visittrack/internal/environment"
	"github.com/gosight/visittrack/internal/session"
)

// Snapshot is the full tracking payload for a visit at one instant.
type Snapshot struct {
	VisitUID string `json:"visitUid"`

	environment.Environment

	SessionStartTime int64 `json:"sessionStartTime"`
	TotalActiveTime  int64 `json:"totalActiveTime"`
	LastActivityTime int64 `json:"lastActivityTime"`

	PageViews      int     `json:"pageViews"`
	Clicks         int     `json:"clicks"`
	ScrollDepth    float64 `json:"scrollDepth"`
	MouseMovements int     `json:"mouseMovements"`
	PageLoadTime   *int64  `json:"pageLoadTime,omitempty"`

	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

// Snapshot recomputes every environment field and reads the session
// accumulators. The active time is finalized at read time.
func (t *Tracker) Snapshot(ctx context.Context) Snapshot {
	env := t.sampler.Sample(ctx)
	counters := t.session.Counters()

	t.mu.Lock()
	loadTime := t.pageLoadTime
	t.mu.Unlock()

	return Snapshot{
		VisitUID:         t.session.VisitUID(),
		Environment:      env,
		SessionStartTime: t.session.StartTime().UnixMilli(),
		TotalActiveTime:  t.session.TotalActiveTime().Milliseconds(),
		LastActivityTime: t.session.LastActivityTime().UnixMilli(),
		PageViews:        counters.PageViews,
		Clicks:           counters.Clicks,
		ScrollDepth:      counters.ScrollDepth,
		MouseMovements:   counters.MouseMovements,
		PageLoadTime:     loadTime,
		SessionID:        t.session.SessionID(),
		Timestamp:        t.clock.Now().UnixMilli(),
	}
}

type initPayload struct {
	VisitUID    string  `json:"visitUid"`
	SessionID   string  `json:"sessionId"`
	PageID      *string `json:"page_id"`
	Timestamp   int64   `json:"timestamp"`
	AccessToken *string `json:"access_token"`
	PixelID     *string `json:"pixel_id"`
}

type initRecord struct {
	initPayload
	CreatedAt string `json:"created_at"`
}

type trackingPayload struct {
	TrackingData Snapshot        `json:"trackingData"`
	Events       []session.Event `json:"events"`
	AccessToken  string          `json:"access_token"`
	PixelID      string          `json:"pixel_id"`
}

type trackingRecord struct {
	TrackingData Snapshot        `json:"trackingData"`
	Events       []session.Event `json:"events"`
	Timestamp    int64           `json:"timestamp"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
