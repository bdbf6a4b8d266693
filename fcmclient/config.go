package fcmclient

import (
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/tinywideclouds/go-fcm-relay/internal/transport"
	"github.com/tinywideclouds/go-fcm-relay/pkg/credential"
)

// Version is reported to the backend in the client headers.
const Version = "1.0.0"

const (
	DefaultSendEndpoint = "https://fcm.googleapis.com"
	DefaultIIDEndpoint  = "https://iid.googleapis.com"
)

// Mode selects how batches reach the backend.
type Mode = transport.Mode

const (
	ModeDiscrete    = transport.ModeDiscrete
	ModeMultiplexed = transport.ModeMultiplexed
)

// TokenSource supplies OAuth2 access tokens. Implementations return a
// *Token; see package credential for ready-made sources.
type TokenSource = credential.Source

// Token is an access token and its expiry.
type Token = credential.Token

// Config holds the client settings. Fields are checked by New.
type Config struct {
	ProjectID      string `validate:"required"`
	Mode           Mode   `validate:"omitempty,oneof=discrete multiplexed"`
	SendEndpoint   string `validate:"required,url"`
	IIDEndpoint    string `validate:"required,url"`
	MaxConcurrency int    `validate:"gte=0,lte=500"`
	Version        string
}

// DefaultConfig targets the production endpoints in discrete mode.
func DefaultConfig(projectID string) Config {
	return Config{
		ProjectID:    projectID,
		Mode:         ModeDiscrete,
		SendEndpoint: DefaultSendEndpoint,
		IIDEndpoint:  DefaultIIDEndpoint,
		Version:      Version,
	}
}

var validate = validator.New()

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid fcm client config: %w", err)
	}
	return nil
}

type options struct {
	httpClient *http.Client
	tlsConfig  *tls.Config
	dialer     transport.SessionDialer
	tokens     TokenSource
	credsJSON  []byte
	credsFile  string
}

// Option overrides a collaborator of the client.
type Option func(*options)

// WithHTTPClient sets the client used for single sends, discrete batches and
// topic calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTLSConfig sets the TLS settings for the default transports.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) { o.tlsConfig = cfg }
}

// WithSessionDialer replaces the HTTP/2 dialer used in multiplexed mode.
func WithSessionDialer(d transport.SessionDialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithTokenSource replaces Application Default Credentials.
func WithTokenSource(ts TokenSource) Option {
	return func(o *options) { o.tokens = ts }
}

// WithCredentialsJSON authenticates with a service account or authorized
// user key instead of Application Default Credentials.
func WithCredentialsJSON(data []byte) Option {
	return func(o *options) { o.credsJSON = data }
}

// WithCredentialsFile is WithCredentialsJSON reading the key from path.
func WithCredentialsFile(path string) Option {
	return func(o *options) { o.credsFile = path }
}
