package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/pagecast/pagecast/internal/relay"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the audio relay server",
	Long: paragraph(fmt.Sprintf("\n%s audio segment requests to the origin, keeping the client identity and the origin's status codes.",
		keyword("Forward"))),
	Example: paragraph("pagecast relay --addr :8080 --origin http://localhost:8000"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		cfg, err := relayConfig(viper.GetViper())
		if err != nil {
			return err
		}

		// The relay has no TUI; log to the terminal.
		log.SetOutput(os.Stderr)
		watchLogLevel()

		srv, err := relay.New(cfg)
		if err != nil {
			return err //nolint:wrapcheck
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		log.Info("relay listening", "addr", cfg.Addr, "origin", cfg.OriginURL, "timeout", cfg.Timeout)
		return srv.Run(ctx) //nolint:wrapcheck
	},
}

func init() {
	relayCmd.Flags().String("addr", "", "listen address")
	relayCmd.Flags().String("origin", "", "origin base URL (default: backend_url)")
	relayCmd.Flags().Bool("cors", false, "allow any browser origin")
	_ = viper.BindPFlag("relay.addr", relayCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("relay.origin", relayCmd.Flags().Lookup("origin"))
	_ = viper.BindPFlag("relay.cors", relayCmd.Flags().Lookup("cors"))
}

// relayConfig reads the relay settings, falling back to the client's origin
// and timeout.
func relayConfig(v *viper.Viper) (relay.Config, error) {
	cfg := relay.DefaultConfig()
	if addr := v.GetString("relay.addr"); addr != "" {
		cfg.Addr = addr
	}
	cfg.OriginURL = v.GetString("relay.origin")
	if cfg.OriginURL == "" {
		cfg.OriginURL = v.GetString("backend_url")
	}
	if err := validateURL("relay.origin", cfg.OriginURL, true); err != nil {
		return cfg, err
	}
	cfg.Timeout = v.GetDuration("relay.timeout")
	if cfg.Timeout <= 0 {
		cfg.Timeout = v.GetDuration("timeout")
	}
	if cfg.Timeout <= 0 {
		return cfg, fmt.Errorf("relay.timeout must be positive, got %s", cfg.Timeout)
	}
	cfg.CORS = v.GetBool("relay.cors")
	return cfg, nil
}

// watchLogLevel applies log.level changes made to the config file while the
// relay runs.
func watchLogLevel() {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level, err := log.ParseLevel(viper.GetString("log.level"))
		if err != nil {
			log.Warn("ignoring log level from config", "file", e.Name, "err", err)
			return
		}
		log.SetLevel(level)
		log.Info("config reloaded", "file", e.Name, "level", level)
	})
	viper.WatchConfig()
}
