// Package main provides the entry point for the pagecast CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/pagecast/pagecast/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	style      string
	width      uint
	mouse      bool
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "pagecast [BOOK_ID|FILE]",
		Short: "Read and listen to books in the terminal",
		Long: paragraph(
			fmt.Sprintf("\nRead books page by page and %s as you go.", keyword("listen along")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// validateStyle accepts a built-in glamour style or an existing JSON style
// file.
func validateStyle(style string) error {
	if style != styles.AutoStyle && styles.DefaultStyles[style] == nil {
		style, _ = homedir.Expand(style)
		if _, err := os.Stat(style); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("specified style does not exist: %s", style)
		} else if err != nil {
			return fmt.Errorf("unable to stat file: %w", err)
		}
	}
	return nil
}

func validateOptions(cmd *cobra.Command) error {
	mouse = viper.GetBool("mouse")
	width = viper.GetUint("width")
	debug = viper.GetBool("debug")
	applyLogLevel(viper.GetString("log.level"), debug)

	// A broken config must still be editable.
	if name := cmd.Name(); name == "config" || name == "man" {
		return nil
	}
	if _, err := loadSettings(viper.GetViper()); err != nil {
		return err
	}

	style = viper.GetString("style")
	return validateStyle(style)
}

func execute(_ *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
		}
	}
	return runTUI(path)
}

func runTUI(path string) error {
	// UI knobs come from the environment
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	// use style set in env, or the configured one if unset
	if cfg.GlamourStyle == "" || validateStyle(cfg.GlamourStyle) != nil {
		cfg.GlamourStyle = style
	}

	s, err := loadSettings(viper.GetViper())
	if err != nil {
		return err
	}
	cfg.Path = path
	cfg.PageSize = s.PageSize
	cfg.GlamourMaxWidth = width
	cfg.EnableMouse = mouse

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	a, err := newApp(ctx, s)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	p := ui.NewProgram(cfg, ui.Deps{
		Session:    a.session,
		Controller: a.controller,
		Store:      a.store,
	})
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	loadConfig(viper.GetViper())

	rootCmd.Version = Version
	if rootCmd.Version == "" {
		rootCmd.Version = "unknown (built from source)"
	}
	if len(CommitSHA) >= 7 {
		tmpl := strings.TrimSuffix(rootCmd.VersionTemplate(), "\n")
		rootCmd.SetVersionTemplate(tmpl + " (" + CommitSHA[:7] + ")\n")
	}
	rootCmd.InitDefaultCompletionCmd()

	global := rootCmd.PersistentFlags()
	global.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.ConfigFileUsed()))
	global.String("backend-url", "", "origin base URL")
	global.String("relay-url", "", "relay base URL for audio (default: stream from the origin)")
	global.Int("page-size", 0, "characters per page")
	global.Bool("debug", false, "write debug logs")
	global.Bool("mute", false, "play audio at zero volume")
	global.Bool("null-audio", false, "consume audio without a sound device")

	local := rootCmd.Flags()
	local.StringVarP(&style, "style", "s", styles.AutoStyle, "style name or JSON path for the analysis panel")
	local.UintVarP(&width, "width", "w", 0, "word-wrap the analysis panel at width (0 to fit the window)")
	local.BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel")
	_ = local.MarkHidden("mouse")

	for key, flag := range map[string]string{
		"backend_url": "backend-url",
		"relay_url":   "relay-url",
		"page_size":   "page-size",
		"debug":       "debug",
		"audio.mute":  "mute",
		"audio.null":  "null-audio",
	} {
		_ = viper.BindPFlag(key, global.Lookup(flag))
	}
	for _, name := range []string{"style", "width", "mouse"} {
		_ = viper.BindPFlag(name, local.Lookup(name))
	}

	setDefaults(viper.GetViper())
	viper.SetDefault("style", styles.AutoStyle)
	viper.SetDefault("width", 0)

	rootCmd.AddCommand(configCmd, manCmd, relayCmd, pageCmd, booksCmd, cacheCmd)
}

// configDirs lists where pagecast.yml is looked up, most specific first.
func configDirs() ([]string, error) {
	dirs, err := gap.NewScope(gap.User, "pagecast").ConfigDirs()
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append([]string{filepath.Join(xdg, "pagecast")}, dirs...)
	}
	if home := os.Getenv("PAGECAST_CONFIG_HOME"); home != "" {
		dirs = append([]string{home}, dirs...)
	}
	return dirs, nil
}

// loadConfig reads pagecast.yml and PAGECAST_* variables into v, writing a
// default config file on first run.
func loadConfig(v *viper.Viper) {
	dirs, err := configDirs()
	if err != nil || len(dirs) == 0 {
		fmt.Println("Could not find a configuration directory.")
		os.Exit(1)
	}
	for _, d := range dirs {
		v.AddConfigPath(d)
	}
	v.SetConfigName("pagecast")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("pagecast")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	var notFound viper.ConfigFileNotFoundError
	switch err := v.ReadInConfig(); {
	case err == nil:
		log.Debug("Using configuration file", "path", v.ConfigFileUsed())
		return
	case !errors.As(err, &notFound):
		log.Warn("Could not parse configuration file", "err", err)
		return
	}

	configFile = filepath.Join(dirs[0], "pagecast.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "err", err)
	}
}
