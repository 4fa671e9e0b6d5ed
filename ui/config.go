package ui

import "time"

// Config contains TUI-specific configuration.
type Config struct {
	PageSize        int
	GlamourMaxWidth uint
	GlamourStyle    string `env:"GLAMOUR_STYLE"`
	EnableMouse     bool

	// Book id or local file to open at startup
	Path string

	// For debugging the UI
	GlamourEnabled bool          `env:"PAGECAST_ENABLE_GLAMOUR" envDefault:"true"`
	StatusTimeout  time.Duration `env:"PAGECAST_STATUS_TIMEOUT" envDefault:"3s"`
}
