package environment

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/gosight/visittrack/internal/enricher"
)

// Environment is the device, browser and location part of a snapshot.
// Field names follow the web client's payload.
type Environment struct {
	UserAgent     string  `json:"userAgent"`
	Language      string  `json:"language"`
	Platform      string  `json:"platform"`
	CookieEnabled bool    `json:"cookieEnabled"`
	DoNotTrack    *string `json:"doNotTrack"`

	ScreenWidth    int     `json:"screenWidth"`
	ScreenHeight   int     `json:"screenHeight"`
	ViewportWidth  int     `json:"viewportWidth"`
	ViewportHeight int     `json:"viewportHeight"`
	ColorDepth     int     `json:"colorDepth"`
	PixelRatio     float64 `json:"pixelRatio"`

	Connection

	IPAddress string `json:"ipAddress,omitempty"`
	Country   string `json:"country,omitempty"`
	City      string `json:"city,omitempty"`
	Timezone  string `json:"timezone"`

	Referrer   string `json:"referrer"`
	CurrentURL string `json:"currentUrl"`

	Device

	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browserVersion,omitempty"`
	OS             string `json:"os,omitempty"`
}

// Sampler assembles fresh Environment values. Nothing is cached between
// samples.
type Sampler struct {
	probe    Probe
	resolver IPResolver
	enricher *enricher.Enricher
}

// NewSampler builds a sampler. resolver and e may be nil, which disables
// the IP lookup and the enrichment respectively.
func NewSampler(probe Probe, resolver IPResolver, e *enricher.Enricher) *Sampler {
	return &Sampler{
		probe:    probe,
		resolver: resolver,
		enricher: e,
	}
}

// Sample reads the probe and resolves the public IP. A failed lookup leaves
// the IP and location empty; it never fails the sample.
func (s *Sampler) Sample(ctx context.Context) Environment {
	sig := s.probe.Read()

	env := Environment{
		UserAgent:      sig.UserAgent,
		Language:       sig.Language,
		Platform:       sig.Platform,
		CookieEnabled:  sig.CookieEnabled,
		DoNotTrack:     sig.DoNotTrack,
		ScreenWidth:    sig.ScreenWidth,
		ScreenHeight:   sig.ScreenHeight,
		ViewportWidth:  sig.ViewportWidth,
		ViewportHeight: sig.ViewportHeight,
		ColorDepth:     sig.ColorDepth,
		PixelRatio:     sig.PixelRatio,
		Timezone:       sig.Timezone,
		Referrer:       sig.Referrer,
		CurrentURL:     sig.CurrentURL,
		Device:         ClassifyDevice(sig.UserAgent, sig.TouchSupport),
	}

	if sig.Connection != nil {
		env.Connection = *sig.Connection
		// The effective type wins over the raw link type when both are known.
		if env.Connection.EffectiveType != "" {
			env.Connection.Type = env.Connection.EffectiveType
		}
	}

	if s.resolver != nil {
		ip, err := s.resolver.PublicIP(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Could not resolve public IP")
		} else {
			env.IPAddress = ip
		}
	}

	if s.enricher != nil {
		en := s.enricher.Enrich(sig.UserAgent, env.IPAddress)
		env.Browser = en.Browser
		env.BrowserVersion = en.BrowserVersion
		env.OS = en.OS
		env.Country = en.Country
		env.City = en.City
	}

	return env
}
