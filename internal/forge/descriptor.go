package forge

import (
	"net/url"
	"strings"
	"sync"
	"time"

	perr "starchart/internal/platform/errors"

	"github.com/go-playground/validator/v10"
)

// Descriptor identifies one forge instance to crawl
// Immutable once a crawl cycle starts; built from operator configuration
type Descriptor struct {
	Kind    Kind   `validate:"required"`
	BaseURL string `validate:"required,url"`

	// Hostname is derived from BaseURL by Normalize: lowercase, scheme and
	// port stripped. It is the natural key for the forge row and the default
	// claimed domain for entries found on this forge
	Hostname string

	// Token is the credentials reference, empty for anonymous crawling
	Token string

	// PollInterval is how often a full crawl cycle runs for this forge
	PollInterval time.Duration `validate:"min=0"`

	// VerifyRequired gates admission on a verified DNS challenge for the
	// claimed domain. Disabling it is an explicit trust override, never a
	// silent default
	VerifyRequired bool
}

var (
	vOnce sync.Once
	vld   *validator.Validate
)

func validate() *validator.Validate {
	vOnce.Do(func() {
		vld = validator.New(validator.WithRequiredStructEnabled())
	})
	return vld
}

// Normalize derives Hostname from BaseURL and defaults PollInterval
// Returns a validation error when the descriptor cannot be used
func (d *Descriptor) Normalize() error {
	if err := validate().Struct(d); err != nil {
		return perr.Wrap(err, perr.ErrorCodeValidation, "invalid forge descriptor")
	}
	u, err := url.Parse(d.BaseURL)
	if err != nil || u.Host == "" {
		return perr.InvalidArgf("forge base url %q has no host", d.BaseURL)
	}
	d.Hostname = NormalizeHostname(u.Host)
	if d.PollInterval <= 0 {
		d.PollInterval = time.Hour
	}
	return nil
}

// NormalizeHostname lowercases a host and strips any port
func NormalizeHostname(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	// IPv6 literals keep their brackets; ports sit after the closing bracket
	if strings.HasPrefix(h, "[") {
		if i := strings.LastIndex(h, "]"); i >= 0 {
			return h[:i+1]
		}
	}
	if i := strings.LastIndex(h, ":"); i >= 0 {
		return h[:i]
	}
	return h
}
