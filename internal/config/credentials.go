package config

import (
	"github.com/caarlos0/env/v11"
)

// Credentials are the partner settings the tracker needs on every send.
// They are read from the environment at call time and never validated up
// front: a missing value only fails the send that needs it.
type Credentials struct {
	Endpoint    string `env:"VISITTRACK_API_ENDPOINT"`
	AccessToken string `env:"VISITTRACK_META_ACCESS_TOKEN"`
	PixelID     string `env:"VISITTRACK_META_PIXEL_ID"`
	// RedirectURL is consumed by the registration flow, not by the tracker.
	RedirectURL string `env:"VISITTRACK_REDIRECT_URL"`
}

// ReadCredentials parses the current environment. Unlike Load it is cheap
// enough to call before every request and reflects changes made after
// startup.
func ReadCredentials() (Credentials, error) {
	var c Credentials
	if err := env.Parse(&c); err != nil {
		return Credentials{}, err
	}
	return c, nil
}
