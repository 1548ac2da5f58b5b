package session

// EventType enumerates the interaction records a visit can buffer.
type EventType string

const (
	EventPageView   EventType = "page_view"
	EventClick      EventType = "click"
	EventScroll     EventType = "scroll"
	EventFocus      EventType = "focus"
	EventBlur       EventType = "blur"
	EventSessionEnd EventType = "session_end"
)

// EventData is the partial snapshot carried by an event. Only the fields
// relevant to the event type are set.
type EventData struct {
	ScrollDepth    *float64 `json:"scrollDepth,omitempty"`
	Clicks         *int     `json:"clicks,omitempty"`
	MouseMovements *int     `json:"mouseMovements,omitempty"`
	PageLoadTime   *int64   `json:"pageLoadTime,omitempty"`
}

// Event is an append-only interaction record.
type Event struct {
	Type      EventType `json:"type"`
	Data      EventData `json:"data"`
	Timestamp int64     `json:"timestamp"`
	VisitUID  string    `json:"visitUid"`
}
