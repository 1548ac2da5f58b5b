package enricher

import (
	"net"

	"github.com/mssola/useragent"
	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"
)

// Enricher derives browser, OS and location details from a user agent and
// an IP address. Location is only resolved when a GeoIP database is loaded.
type Enricher struct {
	geoIP *geoip2.Reader
}

func NewEnricher(geoIPPath string) *Enricher {
	var geoIP *geoip2.Reader
	if geoIPPath != "" {
		var err error
		geoIP, err = geoip2.Open(geoIPPath)
		if err != nil {
			log.Warn().Err(err).Str("path", geoIPPath).Msg("GeoIP database unavailable, location enrichment disabled")
			geoIP = nil
		}
	}

	return &Enricher{
		geoIP: geoIP,
	}
}

// Enrichment holds the derived fields. Empty strings mean unknown.
type Enrichment struct {
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browserVersion,omitempty"`
	OS             string `json:"os,omitempty"`
	DeviceType     string `json:"deviceType,omitempty"`
	Country        string `json:"country,omitempty"`
	City           string `json:"city,omitempty"`
}

func (e *Enricher) Enrich(userAgentString, clientIP string) Enrichment {
	var out Enrichment

	if userAgentString != "" {
		ua := useragent.New(userAgentString)
		out.Browser, out.BrowserVersion = ua.Browser()
		out.OS = ua.OS()
		out.DeviceType = getDeviceType(ua)
	}

	out.Country, out.City = e.Locate(clientIP)
	return out
}

// Locate returns the ISO country code and English city name for ip.
func (e *Enricher) Locate(clientIP string) (country, city string) {
	if e == nil || e.geoIP == nil || clientIP == "" {
		return "", ""
	}

	ip := net.ParseIP(clientIP)
	if ip == nil {
		return "", ""
	}

	record, err := e.geoIP.City(ip)
	if err != nil {
		return "", ""
	}
	return record.Country.IsoCode, record.City.Names["en"]
}

func getDeviceType(ua *useragent.UserAgent) string {
	if ua.Bot() {
		return "bot"
	}
	if ua.Mobile() {
		return "mobile"
	}
	return "desktop"
}

func (e *Enricher) Close() {
	if e.geoIP != nil {
		e.geoIP.Close()
	}
}
