// Package config loads client configuration from the environment.
//
// Every setting is an IMA_-prefixed environment variable; a .env file may be
// loaded by the caller before Load runs. Credentials are captured from a
// logged-in ima.qq.com browser session: the x-ima-cookie and x-ima-bkn header
// values are required, everything else is optional or derived.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

var (
	// ErrMissingXIMACookie indicates IMA_X_IMA_COOKIE is not set.
	ErrMissingXIMACookie = errors.New("missing x-ima-cookie")

	// ErrMissingXIMABkn indicates IMA_X_IMA_BKN is not set.
	ErrMissingXIMABkn = errors.New("missing x-ima-bkn")

	// ErrInvalidTimeout indicates the request timeout is zero or negative.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidRetryCount indicates the retry count is negative.
	ErrInvalidRetryCount = errors.New("invalid retry count")

	// ErrInvalidProxyURL indicates the proxy URL does not parse.
	ErrInvalidProxyURL = errors.New("invalid proxy URL")

	// ErrInvalidBaseURL indicates the upstream base URL is empty or does not
	// parse as an absolute http(s) URL.
	ErrInvalidBaseURL = errors.New("invalid base URL")

	// ErrInvalidCaptureMaxBytes indicates the raw capture byte cap is negative.
	ErrInvalidCaptureMaxBytes = errors.New("invalid raw capture max bytes")
)

const (
	// DefaultBaseURL is the production upstream host. Overriding it is only
	// useful for proxies and test servers.
	DefaultBaseURL = "https://ima.qq.com"

	// DefaultKnowledgeBaseID is the knowledge base queried when none is
	// configured or passed per call.
	DefaultKnowledgeBaseID = "7305806844290061"

	// DefaultTimeout bounds a single upstream request.
	DefaultTimeout = 30 * time.Second

	// DefaultRetryCount is the number of retries after the first attempt.
	DefaultRetryCount = 2

	// DefaultRawCaptureDir receives raw stream capture files.
	DefaultRawCaptureDir = "logs/sse_raw"

	// DefaultRawCaptureMaxBytes caps a single capture file body.
	DefaultRawCaptureMaxBytes = 1 << 20
)

// Config stores client configuration. Sensitive fields are masked in
// MarshalJSON; add new secrets there too.
type Config struct {
	// Credential material from the browser session.
	Cookies      string `mapstructure:"cookies" json:"cookies"`             // SENSITIVE: raw Cookie header value
	XIMACookie   string `mapstructure:"x_ima_cookie" json:"x_ima_cookie"`   // SENSITIVE: required
	XIMABkn      string `mapstructure:"x_ima_bkn" json:"x_ima_bkn"`         // SENSITIVE: required
	UserID       string `mapstructure:"user_id" json:"user_id"`             // recovered from cookies when empty
	RefreshToken string `mapstructure:"refresh_token" json:"refresh_token"` // SENSITIVE: recovered from cookies when empty
	Token        string `mapstructure:"token" json:"token"`                 // SENSITIVE: initial access token, usually empty

	// Query target and identity.
	KnowledgeBaseID string `mapstructure:"knowledge_base_id" json:"knowledge_base_id"`
	ClientID        string `mapstructure:"client_id" json:"client_id"` // generated when empty

	// Transport.
	BaseURL    string        `mapstructure:"base_url" json:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout"`
	RetryCount int           `mapstructure:"retry_count" json:"retry_count"`
	ProxyURL   string        `mapstructure:"proxy_url" json:"proxy_url"`

	// Raw stream capture diagnostics.
	EnableRawCapture    bool   `mapstructure:"enable_raw_capture" json:"enable_raw_capture"`
	RawCaptureDir       string `mapstructure:"raw_capture_dir" json:"raw_capture_dir"`
	RawCaptureMaxBytes  int64  `mapstructure:"raw_capture_max_bytes" json:"raw_capture_max_bytes"`
	RawCaptureOnSuccess bool   `mapstructure:"raw_capture_on_success" json:"raw_capture_on_success"`

	// Debug switches the process logger to debug level.
	Debug bool `mapstructure:"debug" json:"debug"`
}

// Load reads configuration from IMA_-prefixed environment variables and
// validates it. A missing variable falls back to its default; validation
// fails fast on unusable values.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key with its default so Unmarshal sees
// env-only overrides.
func setDefaults(v *viper.Viper) {
	v.SetDefault("cookies", "")
	v.SetDefault("x_ima_cookie", "")
	v.SetDefault("x_ima_bkn", "")
	v.SetDefault("user_id", "")
	v.SetDefault("refresh_token", "")
	v.SetDefault("token", "")
	v.SetDefault("knowledge_base_id", DefaultKnowledgeBaseID)
	v.SetDefault("client_id", "")
	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("retry_count", DefaultRetryCount)
	v.SetDefault("proxy_url", "")
	v.SetDefault("enable_raw_capture", false)
	v.SetDefault("raw_capture_dir", DefaultRawCaptureDir)
	v.SetDefault("raw_capture_max_bytes", int64(DefaultRawCaptureMaxBytes))
	v.SetDefault("raw_capture_on_success", false)
	v.SetDefault("debug", false)
}

// bindEnvVariables binds each key explicitly. Hardcoded keys cannot fail to
// bind; a panic here is a bug.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("cookies", "IMA_COOKIES")
	mustBind("x_ima_cookie", "IMA_X_IMA_COOKIE")
	mustBind("x_ima_bkn", "IMA_X_IMA_BKN")
	mustBind("user_id", "IMA_USER_ID")
	mustBind("refresh_token", "IMA_REFRESH_TOKEN")
	mustBind("token", "IMA_TOKEN")
	mustBind("knowledge_base_id", "IMA_KNOWLEDGE_BASE_ID")
	mustBind("client_id", "IMA_CLIENT_ID")
	mustBind("base_url", "IMA_BASE_URL")
	mustBind("timeout", "IMA_TIMEOUT")
	mustBind("retry_count", "IMA_RETRY_COUNT")
	mustBind("proxy_url", "IMA_PROXY_URL")
	mustBind("enable_raw_capture", "IMA_ENABLE_RAW_CAPTURE")
	mustBind("raw_capture_dir", "IMA_RAW_CAPTURE_DIR")
	mustBind("raw_capture_max_bytes", "IMA_RAW_CAPTURE_MAX_BYTES")
	mustBind("raw_capture_on_success", "IMA_RAW_CAPTURE_ON_SUCCESS")
	mustBind("debug", "IMA_DEBUG")
}

// Validate checks the configuration for values no request could work with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.XIMACookie) == "" {
		return fmt.Errorf("%w: set IMA_X_IMA_COOKIE from a logged-in ima.qq.com session", ErrMissingXIMACookie)
	}

	if strings.TrimSpace(c.XIMABkn) == "" {
		return fmt.Errorf("%w: set IMA_X_IMA_BKN from a logged-in ima.qq.com session", ErrMissingXIMABkn)
	}

	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.BaseURL)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTimeout, c.Timeout)
	}

	if c.RetryCount < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRetryCount, c.RetryCount)
	}

	if c.RawCaptureMaxBytes < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCaptureMaxBytes, c.RawCaptureMaxBytes)
	}

	if c.ProxyURL != "" {
		if _, err := url.Parse(c.ProxyURL); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProxyURL, err)
		}
	}

	return nil
}

// IsConfigured reports whether the required credential headers are present.
// It does not verify them against the upstream.
func (c *Config) IsConfigured() bool {
	return strings.TrimSpace(c.XIMACookie) != "" && strings.TrimSpace(c.XIMABkn) != ""
}

// maskSecret masks a secret for logs and the config resource. Short secrets
// are masked whole; longer ones keep two characters on each end.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}

	if len(s) <= 8 {
		return "********"
	}

	return s[:2] + "****" + s[len(s)-2:]
}

// MarshalJSON masks sensitive fields. New secrets must be masked here too.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.Cookies = maskSecret(a.Cookies)
	a.XIMACookie = maskSecret(a.XIMACookie)
	a.XIMABkn = maskSecret(a.XIMABkn)
	a.RefreshToken = maskSecret(a.RefreshToken)
	a.Token = maskSecret(a.Token)

	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	return data, nil
}

// String renders the masked form so a Config never leaks secrets through
// logging.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}

	return string(data)
}
