package photosdk

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultTimeout = 300 * time.Second

var (
	ErrNoServerURL = errors.New("sdk: server url missing")
	ErrNoSecret    = errors.New("sdk: shared secret missing")
)

// ClientConfig is the configuration for Client
type ClientConfig struct {
	BaseURL string          // BaseURL is required
	Secret  string          // Secret is required
	Timeout time.Duration   // Timeout per request, DefaultTimeout when zero
	Clock   clockwork.Clock // Clock is used for signature timestamps, real clock when nil
}

func (c *ClientConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrNoServerURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: invalid server url %q", ErrNoServerURL, c.BaseURL)
	}
	if c.Secret == "" {
		return ErrNoSecret
	}
	if c.Timeout < 0 {
		return fmt.Errorf("sdk: negative timeout %s", c.Timeout)
	}
	return nil
}
