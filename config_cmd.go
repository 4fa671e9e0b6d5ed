package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# origin base URL for books and the recent list
backend_url: "http://localhost:8000"
# relay base URL for audio; leave empty to stream from the origin
relay_url: ""
# characters per page
page_size: 1000
# wait for response headers
timeout: "30s"
# outbound request budget
requests_per_minute: 60
# recent books per list page
list_limit: 5
# style name or JSON path for the analysis panel (default "auto")
style: "auto"
# mouse support
mouse: false

audio:
  # play at zero volume
  mute: false
  # consume audio without a sound device
  null: false
  # bytes per second drained by the null device
  null_rate: 16000
  # volume level (0.0 to 1.0)
  volume: 1.0

cache:
  # book cache directory (default: user cache dir)
  dir: ""
  # disk budget in MB
  max_size: 256
  # drop cached books older than this
  max_age: "168h"

store:
  # local state database (default: user data dir)
  path: ""

log:
  level: "info"

relay:
  addr: ":8080"
  # origin for the relay (default: backend_url)
  origin: ""
  # wait for origin response headers (default: timeout)
  timeout: "30s"
  # allow any browser origin
  cors: false
`

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Edit the pagecast config file",
	Long:    paragraph(fmt.Sprintf("\n%s the pagecast config file with $EDITOR. A default file is written first if none exists.", keyword("Edit"))),
	Example: paragraph("pagecast config\npagecast config --config path/to/pagecast.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Pagecast", configFile)
		if err != nil {
			return fmt.Errorf("unable to open editor: %w", err)
		}
		c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("editor failed: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

// ensureConfigFile writes the default config to configFile unless a file is
// already there.
func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.ConfigFileUsed()
	}
	switch filepath.Ext(configFile) {
	case ".yml", ".yaml":
	default:
		return fmt.Errorf("%q is not a YAML file: use .yml or .yaml", configFile)
	}

	_, err := os.Stat(configFile)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	return nil
}
