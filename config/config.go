// Package config loads the storefront core configuration from YAML files
// with environment variable overrides.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const defaultPath = "."

type Config struct {
	Env struct {
		Env         string `json:"env" yaml:"env"`
		ServiceName string `json:"serviceName" yaml:"serviceName"`
		Debug       bool   `json:"debug" yaml:"debug"`
		Log         Log    `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	HTTP struct {
		Port     int `json:"port" yaml:"port"`
		Timeouts struct {
			ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
			ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
			WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
			IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
		} `json:"timeouts" yaml:"timeouts"`
	} `json:"http" yaml:"http"`

	// Principal identifies the authenticated actor this process runs for.
	Principal struct {
		ID        string `json:"id" yaml:"id" validate:"required"`
		AuthToken string `json:"authToken" yaml:"authToken" validate:"required"`
		Role      string `json:"role" yaml:"role"`
	} `json:"principal" yaml:"principal"`

	// API configures the REST backend the core reconciles against.
	API *APIConfig `json:"api" yaml:"api" validate:"required"`

	// Push configures the STOMP-over-WebSocket channel to the broker.
	Push *PushConfig `json:"push" yaml:"push" validate:"required"`

	// Cache configures the local persistence adapter.
	Cache *CacheConfig `json:"cache" yaml:"cache"`

	// Notifications configures the reconciliation engine.
	Notifications *NotificationConfig `json:"notifications" yaml:"notifications"`

	// Chat configures the chat session manager.
	Chat *ChatConfig `json:"chat" yaml:"chat"`
}

type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

// APIConfig defines the REST backend connection settings.
type APIConfig struct {
	BaseURL string        `json:"baseUrl" yaml:"baseUrl" validate:"required,url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// PushConfig defines the push channel connection settings.
type PushConfig struct {
	// URL is the broker websocket endpoint, e.g. wss://host/ws/websocket.
	URL string `json:"url" yaml:"url" validate:"required"`

	// ConnectTimeout bounds a single dial + STOMP handshake attempt.
	ConnectTimeout time.Duration `json:"connectTimeout" yaml:"connectTimeout"`

	// HeartBeat is the STOMP heart-beat interval negotiated with the broker.
	HeartBeat time.Duration `json:"heartBeat" yaml:"heartBeat"`

	// ReconnectBase is the backoff base delay; attempt n waits base * 2^n.
	ReconnectBase        time.Duration `json:"reconnectBase" yaml:"reconnectBase"`
	MaxReconnectAttempts int           `json:"maxReconnectAttempts" yaml:"maxReconnectAttempts"`

	// RegisterDestination receives the principal registration publish
	// right after the channel connects.
	RegisterDestination string `json:"registerDestination" yaml:"registerDestination"`

	// PrivateDestinations are per-principal queues; %s is replaced with
	// the principal id.
	PrivateDestinations []string `json:"privateDestinations" yaml:"privateDestinations"`

	// TopicDestinations are shared broadcast topics.
	TopicDestinations []string `json:"topicDestinations" yaml:"topicDestinations"`

	// ChatSendDestination receives outbound chat publishes.
	ChatSendDestination string `json:"chatSendDestination" yaml:"chatSendDestination"`
}

// CacheConfig defines the local persistence adapter settings.
type CacheConfig struct {
	Path string `json:"path" yaml:"path"`
}

// NotificationConfig defines reconciliation engine settings.
type NotificationConfig struct {
	// MaxRetained bounds the in-memory notification list.
	MaxRetained int `json:"maxRetained" yaml:"maxRetained"`

	// RefetchDelay is the wait before the authoritative re-fetch that
	// follows a push event.
	RefetchDelay time.Duration `json:"refetchDelay" yaml:"refetchDelay"`

	// Retention is how long read notifications are kept before the sweep
	// removes them.
	Retention     time.Duration `json:"retention" yaml:"retention"`
	SweepInterval time.Duration `json:"sweepInterval" yaml:"sweepInterval"`

	// ShakeDuration is how long the visual alert flag stays raised.
	ShakeDuration time.Duration `json:"shakeDuration" yaml:"shakeDuration"`
}

// ChatConfig defines chat session manager settings.
type ChatConfig struct {
	PageSize int `json:"pageSize" yaml:"pageSize"`

	// DeliveredFallback upgrades a still-sending optimistic message when
	// no broker echo arrived in time.
	DeliveredFallback time.Duration `json:"deliveredFallback" yaml:"deliveredFallback"`
}

// LoadWithEnv loads .yaml files through koanf.
func LoadWithEnv[T any](currEnv string, configPath ...string) (*T, error) {
	cfg := new(T)
	koanfInstance := koanf.New(".")

	// Build list of paths to search for config file
	searchPaths := []string{defaultPath}
	if len(configPath) != 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "os.Getwd")
		}
		for _, path := range configPath {
			abs := filepath.Join(pwd, path)
			searchPaths = append(searchPaths, abs)
		}
	}

	// Try to find and load the config file
	var configFile string
	var found bool
	for _, path := range searchPaths {
		candidate := filepath.Join(path, currEnv+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
			found = true

			break
		}
	}

	if !found {
		return nil, errors.Errorf("config file %s.yaml not found in any search path", currEnv)
	}

	// Load YAML config file
	if err := koanfInstance.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "read %s config failed", currEnv)
	}

	existingConfigMap := koanfInstance.Raw()

	// Load environment variables
	if err := koanfInstance.Load(env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			// Convert ENV_VAR_NAME to path and align each segment with existing YAML keys.
			// Example: PUSH_CONNECTTIMEOUT -> push.connectTimeout
			key := canonicalizeEnvKey(k, existingConfigMap)

			return key, v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	// Unmarshal into the config struct (case-insensitive to match env vars)
	if err := koanfInstance.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				// Case-insensitive matching for env var overrides
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s config failed", currEnv)
	}

	return cfg, nil
}

func New() (*Config, error) {
	cfg, err := LoadWithEnv[Config]("config", "config", "../config", "../../config")
	if err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.API != nil && c.API.Timeout <= 0 {
		c.API.Timeout = 10 * time.Second
	}

	if c.Push != nil {
		if c.Push.ConnectTimeout <= 0 {
			c.Push.ConnectTimeout = 15 * time.Second
		}
		if c.Push.HeartBeat <= 0 {
			c.Push.HeartBeat = 10 * time.Second
		}
		if c.Push.ReconnectBase <= 0 {
			c.Push.ReconnectBase = time.Second
		}
		if c.Push.MaxReconnectAttempts <= 0 {
			c.Push.MaxReconnectAttempts = 5
		}
	}

	if c.Cache == nil {
		c.Cache = &CacheConfig{}
	}
	if c.Cache.Path == "" {
		c.Cache.Path = "./data/cache"
	}

	if c.Notifications == nil {
		c.Notifications = &NotificationConfig{}
	}
	if c.Notifications.MaxRetained <= 0 {
		c.Notifications.MaxRetained = 50
	}
	if c.Notifications.RefetchDelay <= 0 {
		c.Notifications.RefetchDelay = 3 * time.Second
	}
	if c.Notifications.Retention <= 0 {
		c.Notifications.Retention = 7 * 24 * time.Hour
	}
	if c.Notifications.SweepInterval <= 0 {
		c.Notifications.SweepInterval = time.Hour
	}
	if c.Notifications.ShakeDuration <= 0 {
		c.Notifications.ShakeDuration = 1200 * time.Millisecond
	}

	if c.Chat == nil {
		c.Chat = &ChatConfig{}
	}
	if c.Chat.PageSize <= 0 {
		c.Chat.PageSize = 20
	}
	if c.Chat.DeliveredFallback <= 0 {
		c.Chat.DeliveredFallback = 3 * time.Second
	}
}

func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}

	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (matched string, next map[string]any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}

	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}

		child, _ := value.(map[string]any)

		return key, child, true
	}

	return "", nil, false
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}

	return normalized.String()
}
