package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const defaultConfig = `# write debug logs
debug: false
# print status lines instead of the interactive view
no-tui: false

stretch:
  # playback tempo, 1 is the original speed
  tempo: 1.0
  # start playing at this position
  offset: "0s"
  # start over when the end is reached
  loop: false

  # position reports and lookahead checks
  time_update_interval: "250ms"
  lookahead_interval: "100ms"
  lookahead_threshold: "1.5s"

  # conversion
  worker_pool_size: 2
  chunk_duration: "5s"
  overlap_duration: "200ms"
  crossfade_duration: "100ms"
  max_consecutive_failures: 3

  # chunks kept converted around the position
  ahead_chunks: 4
  behind_chunks: 1

  # converted audio ahead of the position for each health level
  health:
    critical: "250ms"
    low: "2s"
    healthy: "5s"

  # stall below enter, resume at exit
  buffering:
    enter: "500ms"
    exit: "2s"

  wsola:
    frame_duration: "40ms"
    search_duration: "10ms"

  # keep converted chunks on disk between runs
  store:
    enabled: false
    # dir: "/path/to/chunks"
    capacity: 268435456
    compression_level: 3
`

var configDump bool

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the stretch config file",
	Long:    paragraph(fmt.Sprintf("\n%s the stretch config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("stretch config\nstretch config --dump\nstretch config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if configDump {
			return dumpConfig(cmd.OutOrStdout())
		}

		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("stretch", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

// dumpConfig writes the effective settings, after flags, environment and
// config file are merged, as YAML.
func dumpConfig(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(viper.AllSettings()); err != nil {
		return fmt.Errorf("unable to encode config: %w", err)
	}
	return enc.Close()
}

func init() {
	configCmd.Flags().BoolVar(&configDump, "dump", false, "print the effective configuration instead of editing it")
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
