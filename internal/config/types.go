package config

import (
	"fmt"
	"strings"
	"time"
)

const DefaultPollInterval = 30 * time.Second

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// State controls where the watcher persists snapshots, subscriptions
	// and tag assignments.
	State StateConfig `json:"state"`

	Watch WatchConfig `json:"watch"`

	// Notifier controls the async notification pipeline.
	// If omitted, defaults apply (see notify.Config).
	Notifier *NotifierConfig `json:"notifier,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// AdminUserIDs gates the /tag and /untag commands.
	AdminUserIDs []int64 `json:"admin_user_ids,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StateConfig controls the persistence layer.
//
// Driver values:
//   - "file" (default): single atomic JSON document
//   - "sqlite": SQLite database file
type StateConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type WatchConfig struct {
	// DefaultInterval applies to sources without an explicit interval.
	// Go duration string; defaults to 30s.
	DefaultInterval string         `json:"default_interval,omitempty"`
	Sources         []SourceConfig `json:"sources"`
}

// SourceConfig describes one remote catalog.
//
// Exactly one of URL or Provider selects the fetch strategy: URL sources are
// generic JSON endpoints rendered through the extractor paths; provider
// sources use a built-in adapter ("openai", "google", "designarena").
type SourceConfig struct {
	Name     string `json:"name"`
	Interval string `json:"interval,omitempty"`

	URL        string            `json:"url,omitempty"`
	ModelsPath []string          `json:"models_path,omitempty"`
	IDPath     []string          `json:"id_path,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Cookies    map[string]string `json:"cookies,omitempty"`

	Provider string `json:"provider,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	// BaseURL overrides the provider endpoint (tests, proxies).
	BaseURL string `json:"base_url,omitempty"`
}

type NotifierConfig struct {
	Workers    int `json:"workers,omitempty"`
	QueueSize  int `json:"queue_size,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
	RetryMax   int `json:"retry_max,omitempty"`
	// RetryBase / RetryMaxDelay are Go duration strings.
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

// ConfigurationError marks a config problem that is fatal at startup, before
// any poller runs. Hot reloads that fail validation are rejected and logged
// instead.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return "config: " + e.Reason }

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

var knownProviders = map[string]bool{
	"openai":      true,
	"google":      true,
	"designarena": true,
}

// Validate checks the cross-field invariants the strict decoder cannot.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return configErrorf("telegram.token is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return &ConfigurationError{Reason: err.Error()}
	}
	if strings.TrimSpace(c.State.Path) == "" {
		return configErrorf("state.path is required")
	}
	if _, err := ParseDurationField("state.busy_timeout", c.State.BusyTimeout); err != nil {
		return &ConfigurationError{Reason: err.Error()}
	}
	if c.Notifier != nil {
		if _, err := ParseDurationField("notifier.retry_base", c.Notifier.RetryBase); err != nil {
			return &ConfigurationError{Reason: err.Error()}
		}
		if _, err := ParseDurationField("notifier.retry_max_delay", c.Notifier.RetryMaxDelay); err != nil {
			return &ConfigurationError{Reason: err.Error()}
		}
	}
	if _, err := ParseDurationField("watch.default_interval", c.Watch.DefaultInterval); err != nil {
		return &ConfigurationError{Reason: err.Error()}
	}
	if len(c.Watch.Sources) == 0 {
		return configErrorf("watch.sources must list at least one source")
	}

	seen := map[string]bool{}
	for i, src := range c.Watch.Sources {
		where := fmt.Sprintf("watch.sources[%d]", i)
		name := strings.TrimSpace(src.Name)
		if name == "" {
			return configErrorf("%s: name is required", where)
		}
		if seen[name] {
			return configErrorf("%s: duplicate source name %q", where, name)
		}
		seen[name] = true

		if _, err := ParseDurationField(where+".interval", src.Interval); err != nil {
			return &ConfigurationError{Reason: err.Error()}
		}

		hasURL := strings.TrimSpace(src.URL) != ""
		provider := strings.ToLower(strings.TrimSpace(src.Provider))
		switch {
		case hasURL && provider != "":
			return configErrorf("%s (%s): url and provider are mutually exclusive", where, name)
		case hasURL:
			// extractor paths are optional; empty models path means root array
		case provider != "":
			if !knownProviders[provider] {
				return configErrorf("%s (%s): unknown provider %q", where, name, src.Provider)
			}
			if (provider == "openai" || provider == "google") && strings.TrimSpace(src.APIKey) == "" {
				return configErrorf("%s (%s): api_key is required for provider %q", where, name, provider)
			}
		default:
			return configErrorf("%s (%s): either url or provider is required", where, name)
		}
	}
	return nil
}

// Interval resolves a source's polling cadence against the configured
// default. Call only after Validate.
func (w WatchConfig) Interval(src SourceConfig) time.Duration {
	def, _ := ParseDurationOrDefault("watch.default_interval", w.DefaultInterval, DefaultPollInterval)
	d, _ := ParseDurationOrDefault("interval", src.Interval, def)
	return d
}
