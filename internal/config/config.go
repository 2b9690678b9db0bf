// Package config reads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bookshelf-tools/bookenrich/internal/sources"
)

// ErrMissing is returned by Validate when a required setting is unset.
var ErrMissing = errors.New("missing required configuration")

type (
	Config struct {
		Notion
		Sync
		HTTP
		Lookup
		Schedule string
		LogLevel string
	}

	Notion struct {
		Token           string
		DatabaseID      string
		URLProperty     string
		RefreshProperty string
	}
	Sync struct {
		Force        bool
		RecentWindow time.Duration
		ScanLimit    int
		// All processes rows without a lookup URL too.
		All bool
	}
	HTTP struct {
		UserAgent   string
		Timeout     time.Duration
		ScrapeDelay time.Duration
		RetryDelay  time.Duration
	}
	Lookup struct {
		GoogleBooksAPIKey string
		Language          string
		Publishers        []string
	}
)

// New reads the configuration from the environment. Call godotenv first to
// pick up a .env file.
func New() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("notion_url_property", "goodreadsURL")
	v.SetDefault("notion_refresh_property", "Refresh")
	v.SetDefault("force_update", false)
	v.SetDefault("recent_window_hours", 0)
	v.SetDefault("scan_limit", 0)
	v.SetDefault("sync_all", false)
	v.SetDefault("user_agent", sources.DefaultUserAgent)
	v.SetDefault("request_timeout", "20s")
	v.SetDefault("scrape_delay", "1s")
	v.SetDefault("retry_delay", "2s")
	v.SetDefault("preferred_language", "tr")
	v.SetDefault("publisher_allowlist", "")
	v.SetDefault("sync_schedule", "@every 6h")
	v.SetDefault("log_level", "info")

	publishers := splitList(v.GetString("PUBLISHER_ALLOWLIST"))
	if len(publishers) == 0 {
		publishers = sources.DefaultPublishers
	}

	return &Config{
		Notion: Notion{
			Token:           strings.TrimSpace(v.GetString("NOTION_TOKEN")),
			DatabaseID:      strings.TrimSpace(v.GetString("NOTION_DATABASE_ID")),
			URLProperty:     v.GetString("NOTION_URL_PROPERTY"),
			RefreshProperty: v.GetString("NOTION_REFRESH_PROPERTY"),
		},
		Sync: Sync{
			Force:        v.GetBool("FORCE_UPDATE"),
			RecentWindow: time.Duration(v.GetFloat64("RECENT_WINDOW_HOURS") * float64(time.Hour)),
			ScanLimit:    v.GetInt("SCAN_LIMIT"),
			All:          v.GetBool("SYNC_ALL"),
		},
		HTTP: HTTP{
			UserAgent:   nonEmpty(v.GetString("USER_AGENT"), sources.DefaultUserAgent),
			Timeout:     duration(v, "REQUEST_TIMEOUT", 20*time.Second),
			ScrapeDelay: duration(v, "SCRAPE_DELAY", time.Second),
			RetryDelay:  duration(v, "RETRY_DELAY", 2*time.Second),
		},
		Lookup: Lookup{
			GoogleBooksAPIKey: strings.TrimSpace(v.GetString("GOOGLE_BOOKS_API_KEY")),
			Language:          strings.ToLower(strings.TrimSpace(v.GetString("PREFERRED_LANGUAGE"))),
			Publishers:        publishers,
		},
		Schedule: v.GetString("SYNC_SCHEDULE"),
		LogLevel: v.GetString("LOG_LEVEL"),
	}
}

// Validate checks the settings a store-backed run cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.Token == "" {
		missing = append(missing, "NOTION_TOKEN")
	}
	if c.DatabaseID == "" {
		missing = append(missing, "NOTION_DATABASE_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return nil
}

// duration accepts Go duration strings ("1500ms") or plain seconds ("1.5").
func duration(v *viper.Viper, key string, def time.Duration) time.Duration {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func nonEmpty(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
