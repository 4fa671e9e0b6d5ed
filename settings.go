package main

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/pagecast/pagecast/internal/audio"
	"github.com/pagecast/pagecast/internal/cache"
	"github.com/pagecast/pagecast/internal/paginate"
	"github.com/pagecast/pagecast/internal/session"
	"github.com/spf13/viper"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// settings is the validated client configuration.
type settings struct {
	BackendURL        string
	RelayURL          string
	PageSize          int
	Timeout           time.Duration
	RequestsPerMinute int
	ListLimit         int
	Audio             audio.Config
	Cache             cache.Config
	StorePath         string
	LogLevel          log.Level
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend_url", "http://localhost:8000")
	v.SetDefault("relay_url", "")
	v.SetDefault("page_size", paginate.DefaultPageSize)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("requests_per_minute", 60)
	v.SetDefault("list_limit", session.DefaultListLimit)

	v.SetDefault("audio.mute", false)
	v.SetDefault("audio.null", false)
	v.SetDefault("audio.null_rate", audio.DefaultConfig().NullRate)
	v.SetDefault("audio.volume", 1.0)

	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.max_size", 256)
	v.SetDefault("cache.max_age", cache.DefaultConfig().MaxAge)

	v.SetDefault("store.path", "")
	v.SetDefault("log.level", "info")

	v.SetDefault("relay.addr", ":8080")
	v.SetDefault("relay.origin", "")
	v.SetDefault("relay.timeout", 0)
	v.SetDefault("relay.cors", false)
}

// loadSettings reads and validates the client configuration from v.
func loadSettings(v *viper.Viper) (settings, error) {
	s := settings{
		BackendURL:        v.GetString("backend_url"),
		RelayURL:          v.GetString("relay_url"),
		PageSize:          v.GetInt("page_size"),
		Timeout:           v.GetDuration("timeout"),
		RequestsPerMinute: v.GetInt("requests_per_minute"),
		ListLimit:         v.GetInt("list_limit"),
	}

	if err := validateURL("backend_url", s.BackendURL, true); err != nil {
		return s, err
	}
	if err := validateURL("relay_url", s.RelayURL, false); err != nil {
		return s, err
	}
	if s.PageSize < 1 {
		return s, fmt.Errorf("page_size must be positive, got %d", s.PageSize)
	}
	if s.Timeout <= 0 {
		return s, fmt.Errorf("timeout must be positive, got %s", s.Timeout)
	}
	if s.RequestsPerMinute < 1 {
		return s, fmt.Errorf("requests_per_minute must be positive, got %d", s.RequestsPerMinute)
	}
	if s.ListLimit < 1 || s.ListLimit > 100 {
		return s, fmt.Errorf("list_limit must be between 1 and 100, got %d", s.ListLimit)
	}

	s.Audio = audio.DefaultConfig()
	s.Audio.Mute = v.GetBool("audio.mute")
	s.Audio.Null = v.GetBool("audio.null")
	s.Audio.NullRate = v.GetInt("audio.null_rate")
	s.Audio.Volume = v.GetFloat64("audio.volume")
	if s.Audio.Volume < 0 || s.Audio.Volume > 1 {
		return s, fmt.Errorf("audio.volume must be between 0.0 and 1.0, got %.2f", s.Audio.Volume)
	}
	if s.Audio.NullRate < 0 {
		return s, fmt.Errorf("audio.null_rate must not be negative, got %d", s.Audio.NullRate)
	}

	maxSize := v.GetInt64("cache.max_size")
	if maxSize < 1 || maxSize > 10000 {
		return s, fmt.Errorf("cache.max_size must be between 1 and 10000 MB, got %d", maxSize)
	}
	s.Cache = cache.DefaultConfig()
	s.Cache.DiskCapacity = maxSize * 1024 * 1024
	s.Cache.MaxAge = v.GetDuration("cache.max_age")

	scope := gap.NewScope(gap.User, "pagecast")
	dir, err := expandOr(v.GetString("cache.dir"), func() (string, error) {
		d, err := scope.CacheDir()
		return filepath.Join(d, "books"), err
	})
	if err != nil {
		return s, fmt.Errorf("cache.dir: %w", err)
	}
	s.Cache.Dir = dir

	if s.StorePath, err = expandOr(v.GetString("store.path"), func() (string, error) {
		return scope.DataPath("pagecast.db")
	}); err != nil {
		return s, fmt.Errorf("store.path: %w", err)
	}

	if s.LogLevel, err = log.ParseLevel(v.GetString("log.level")); err != nil {
		return s, fmt.Errorf("log.level: %w", err)
	}
	return s, nil
}

func validateURL(key, raw string, required bool) error {
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", key)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", key, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host: %q", key, raw)
	}
	return nil
}

// expandOr expands a configured path, or computes the default when empty.
func expandOr(path string, def func() (string, error)) (string, error) {
	if path == "" {
		return def()
	}
	if path == ":memory:" {
		return path, nil
	}
	p, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("unable to expand %q: %w", path, err)
	}
	return p, nil
}
