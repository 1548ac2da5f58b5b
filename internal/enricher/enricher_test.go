package enricher

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	chromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	safariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1"
	googlebot     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func TestEnrichUserAgent(t *testing.T) {
	e := NewEnricher("")
	defer e.Close()

	desktop := e.Enrich(chromeWindows, "")
	assert.Equal(t, "Chrome", desktop.Browser)
	assert.True(t, strings.HasPrefix(desktop.BrowserVersion, "120"), desktop.BrowserVersion)
	assert.Contains(t, desktop.OS, "Windows")
	assert.Equal(t, "desktop", desktop.DeviceType)

	assert.Equal(t, "mobile", e.Enrich(safariIPhone, "").DeviceType)
	assert.Equal(t, "bot", e.Enrich(googlebot, "").DeviceType)
}

func TestEnrichEmptyInputs(t *testing.T) {
	e := NewEnricher("")
	assert.Equal(t, Enrichment{}, e.Enrich("", ""))
}

func TestLocateWithoutDatabase(t *testing.T) {
	// A missing database disables location lookups instead of failing.
	e := NewEnricher(filepath.Join(t.TempDir(), "missing.mmdb"))
	defer e.Close()

	country, city := e.Locate("81.2.69.142")
	assert.Empty(t, country)
	assert.Empty(t, city)

	var nilEnricher *Enricher
	country, _ = nilEnricher.Locate("81.2.69.142")
	assert.Empty(t, country)
}
