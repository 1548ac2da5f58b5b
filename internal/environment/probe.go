// Package environment computes the device and browser half of a tracking
// snapshot. Signals come from a Probe supplied by whatever hosts the
// tracker; the package adds device classification, the public IP and the
// enrichment derived from both.
package environment

import (
	"os"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/gosight/visittrack/internal/config"
)

// Connection mirrors the Network Information API fields.
type Connection struct {
	Type          string  `json:"connectionType,omitempty"`
	EffectiveType string  `json:"effectiveType,omitempty"`
	Downlink      float64 `json:"downlink,omitempty"`
	RTT           int     `json:"rtt,omitempty"`
}

// Signals are the raw environment readings at one point in time.
type Signals struct {
	UserAgent     string
	Language      string
	Platform      string
	CookieEnabled bool
	DoNotTrack    *string

	ScreenWidth    int
	ScreenHeight   int
	ViewportWidth  int
	ViewportHeight int
	ColorDepth     int
	PixelRatio     float64

	// Connection is nil when the host exposes no network information.
	Connection *Connection

	TouchSupport bool
	Timezone     string
	Referrer     string
	CurrentURL   string
}

// Probe reads the current environment. Implementations must be cheap and
// non-blocking; they are called on every snapshot.
type Probe interface {
	Read() Signals
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func() Signals

func (f ProbeFunc) Read() Signals { return f() }

// StaticProbe always reports the same signals.
type StaticProbe Signals

func (p StaticProbe) Read() Signals { return Signals(p) }

// HostProbe describes the running process. Geometry and page details have
// no host equivalent and come from configuration.
type HostProbe struct {
	cfg config.ProbeConfig
}

func NewHostProbe(cfg config.ProbeConfig) *HostProbe {
	return &HostProbe{cfg: cfg}
}

func (p *HostProbe) Read() Signals {
	return Signals{
		UserAgent:      p.cfg.UserAgent,
		Language:       hostLanguage(),
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
		CookieEnabled:  false,
		ScreenWidth:    p.cfg.ScreenWidth,
		ScreenHeight:   p.cfg.ScreenHeight,
		ViewportWidth:  p.cfg.ViewportWidth,
		ViewportHeight: p.cfg.ViewportHeight,
		ColorDepth:     p.cfg.ColorDepth,
		PixelRatio:     p.cfg.PixelRatio,
		Timezone:       time.Now().Location().String(),
		Referrer:       p.cfg.Referrer,
		CurrentURL:     p.cfg.CurrentURL,
	}
}

// hostLanguage turns LANG=en_US.UTF-8 into en-US.
func hostLanguage() string {
	lang := os.Getenv("LANG")
	if i := strings.IndexAny(lang, ".@"); i >= 0 {
		lang = lang[:i]
	}
	if lang == "" || lang == "C" || lang == "POSIX" {
		return "en-US"
	}
	return strings.ReplaceAll(lang, "_", "-")
}

// Device holds the device-class flags of a snapshot.
type Device struct {
	IsMobile     bool `json:"isMobile"`
	IsTablet     bool `json:"isTablet"`
	IsDesktop    bool `json:"isDesktop"`
	TouchSupport bool `json:"touchSupport"`
}

var (
	mobilePattern = regexp.MustCompile(`(?i)Android|webOS|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)
	// Go regexp has no lookahead, so the Android tablet rule is split in
	// two. Both tokens must follow Android.
	tabletPattern = regexp.MustCompile(`(?i)iPad`)
	androidMobile = regexp.MustCompile(`(?i)Android.*\bMobile\b`)
	androidSafari = regexp.MustCompile(`(?i)Android.*\bSafari\b`)
)

// ClassifyDevice applies the user agent rules used by the web client:
// iPads count as both mobile and tablet, Android only counts as a tablet
// when Mobile and Safari tokens follow it in the UA.
func ClassifyDevice(userAgent string, touch bool) Device {
	isMobile := mobilePattern.MatchString(userAgent)
	isTablet := tabletPattern.MatchString(userAgent) ||
		(androidMobile.MatchString(userAgent) && androidSafari.MatchString(userAgent))

	return Device{
		IsMobile:     isMobile,
		IsTablet:     isTablet,
		IsDesktop:    !isMobile && !isTablet,
		TouchSupport: touch,
	}
}
