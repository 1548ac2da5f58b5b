// Package tracker is the visit telemetry collector. It owns a visit's
// session state, turns interaction signals into buffered events and
// delivers the init beacon and session snapshots to the collector backend,
// appending failed payloads to a fallback log.
//
// Deliveries are best effort. They are not cancelled by Stop and run until
// they finish or the request timeout fires.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/gosight/visittrack/internal/config"
	"github.com/gosight/visittrack/internal/environment"
	"github.com/gosight/visittrack/internal/fallback"
	"github.com/gosight/visittrack/internal/session"
	"github.com/gosight/visittrack/internal/transport"
)

var (
	ErrEndpointNotConfigured    = errors.New("tracking endpoint not configured")
	ErrAccessTokenNotConfigured = errors.New("access token not configured")
	ErrPixelIDNotConfigured     = errors.New("pixel id not configured")
)

const (
	DefaultSnapshotInterval = 30 * time.Second
	DefaultSendCooldown     = 5 * time.Second

	scrollQuietPeriod = 100 * time.Millisecond
	mouseQuietPeriod  = time.Second
	mouseEventEvery   = 10
)

// CredentialsFunc returns the partner settings for one send.
type CredentialsFunc func() (config.Credentials, error)

type Option func(*Tracker)

func WithClock(c clockwork.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

func WithCredentials(fn CredentialsFunc) Option {
	return func(t *Tracker) { t.credentials = fn }
}

func WithTransport(c *transport.Client) Option {
	return func(t *Tracker) { t.client = c }
}

func WithSnapshotInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.snapshotInterval = d
		}
	}
}

func WithSendCooldown(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.cooldown = d
		}
	}
}

type Tracker struct {
	session     *session.Session
	sampler     *environment.Sampler
	fallback    fallback.Log
	client      *transport.Client
	credentials CredentialsFunc
	clock       clockwork.Clock

	snapshotInterval time.Duration
	cooldown         time.Duration

	initSent    atomic.Bool
	sending     atomic.Bool
	coolingDown atomic.Bool

	mu            sync.Mutex
	scrollTimer   clockwork.Timer
	mouseTimer    clockwork.Timer
	cooldownTimer clockwork.Timer
	cancel        context.CancelFunc
	started       bool
	stopped       bool
	pageLoadTime  *int64
	latest        *Snapshot
	subscribers   []func(Snapshot)
}

// New creates a tracker and starts its visit. fb may be nil, in which case
// failed payloads are only logged.
func New(sampler *environment.Sampler, fb fallback.Log, opts ...Option) *Tracker {
	t := &Tracker{
		sampler:          sampler,
		fallback:         fb,
		credentials:      config.ReadCredentials,
		clock:            clockwork.NewRealClock(),
		snapshotInterval: DefaultSnapshotInterval,
		cooldown:         DefaultSendCooldown,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.client == nil {
		t.client = transport.NewClient(transport.DefaultTimeout)
	}

	t.session = session.New(t.clock)
	return t
}

func (t *Tracker) VisitUID() string  { return t.session.VisitUID() }
func (t *Tracker) SessionID() string { return t.session.SessionID() }

// Events returns the buffered events in the order they were recorded.
func (t *Tracker) Events() []session.Event { return t.session.Events() }

func (t *Tracker) IncrementPageViews() { t.session.IncrementPageViews() }

// SendInitTracking registers the visit with the collector. Only the first
// call in the visit's lifetime does anything; later calls return nil, nil.
// On failure the beacon is appended to the init fallback log and the
// original error is returned.
func (t *Tracker) SendInitTracking(ctx context.Context) (json.RawMessage, error) {
	if !t.initSent.CompareAndSwap(false, true) {
		log.Debug().Str("visit_uid", t.VisitUID()).Msg("Init tracking already sent, skipping")
		return nil, nil
	}

	creds, err := t.credentials()
	payload := initPayload{
		VisitUID:    t.session.VisitUID(),
		SessionID:   t.session.SessionID(),
		PageID:      nullable(creds.PixelID),
		Timestamp:   t.clock.Now().UnixMilli(),
		AccessToken: nullable(creds.AccessToken),
		PixelID:     nullable(creds.PixelID),
	}
	if err == nil && creds.Endpoint == "" {
		err = ErrEndpointNotConfigured
	}

	var data json.RawMessage
	if err == nil {
		data, err = t.client.PostJSON(ctx, creds.Endpoint, "/init-tracking", payload)
	}
	if err != nil {
		log.Error().Err(err).Str("visit_uid", payload.VisitUID).Msg("Failed to send init tracking")
		t.saveFallback(ctx, fallback.KeyInitTracking, initRecord{
			initPayload: payload,
			CreatedAt:   t.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
		return nil, err
	}

	log.Info().Str("visit_uid", payload.VisitUID).Msg("Init tracking sent")
	return data, nil
}

// SendTrackingData delivers a fresh snapshot together with every buffered
// event. A call made while another is in flight returns nil, nil without
// transmitting. The event buffer is copied as soon as the send starts, so
// events recorded while the snapshot or request is pending are not part of
// this send.
func (t *Tracker) SendTrackingData(ctx context.Context) (json.RawMessage, error) {
	if !t.sending.CompareAndSwap(false, true) {
		log.Debug().Str("visit_uid", t.VisitUID()).Msg("Tracking send already in progress, skipping")
		return nil, nil
	}
	defer t.sending.Store(false)

	t.startCooldown()

	events := t.session.Events()
	snap := t.Snapshot(ctx)

	creds, err := t.credentials()
	if err == nil {
		err = requireTrackingCredentials(creds)
	}

	var data json.RawMessage
	if err == nil {
		data, err = t.client.PostJSON(ctx, creds.Endpoint, "/tracking", trackingPayload{
			TrackingData: snap,
			Events:       events,
			AccessToken:  creds.AccessToken,
			PixelID:      creds.PixelID,
		})
	}
	if err != nil {
		log.Error().Err(err).Str("visit_uid", snap.VisitUID).Int("events", len(events)).Msg("Failed to send tracking data")
		t.saveFallback(ctx, fallback.KeyTracking, trackingRecord{
			TrackingData: snap,
			Events:       events,
			Timestamp:    t.clock.Now().UnixMilli(),
		})
		return nil, err
	}

	log.Info().Str("visit_uid", snap.VisitUID).Int("events", len(events)).Msg("Tracking data sent")
	return data, nil
}

func requireTrackingCredentials(c config.Credentials) error {
	switch {
	case c.Endpoint == "":
		return ErrEndpointNotConfigured
	case c.AccessToken == "":
		return ErrAccessTokenNotConfigured
	case c.PixelID == "":
		return ErrPixelIDNotConfigured
	}
	return nil
}

// saveFallback never fails the caller: a broken fallback log is logged and
// the delivery error stays the one reported.
func (t *Tracker) saveFallback(ctx context.Context, key string, record any) {
	if t.fallback == nil {
		return
	}
	if err := t.fallback.Append(context.WithoutCancel(ctx), key, record); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to write fallback record")
		return
	}
	log.Info().Str("key", key).Msg("Payload saved to fallback log")
}

// startCooldown raises the cooldown flag and clears it after the cooldown
// period, whatever the outcome of the send.
func (t *Tracker) startCooldown() {
	t.coolingDown.Store(true)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cooldownTimer != nil {
		t.cooldownTimer.Stop()
	}
	t.cooldownTimer = t.clock.AfterFunc(t.cooldown, func() {
		t.coolingDown.Store(false)
	})
}

// Sending reports whether a snapshot send is in flight.
func (t *Tracker) Sending() bool { return t.sending.Load() }

// CoolingDown reports whether a snapshot send started within the cooldown
// period.
func (t *Tracker) CoolingDown() bool { return t.coolingDown.Load() }
