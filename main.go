// Package main provides the entry point for the stretch CLI application.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/charmbracelet/stretch/internal/source"
	"github.com/charmbracelet/stretch/stretch"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	noTUI      bool
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "stretch FILE",
		Short: "Play audio faster or slower without changing its pitch",
		Long: paragraph(
			fmt.Sprintf("\nPlay audio at any tempo, %s.\n\nSupported formats: %s.",
				keyword("without the chipmunks"),
				strings.Join(source.Extensions(), ", ")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.ExactArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			exts := source.Extensions()
			return exts, cobra.ShellCompDirectiveFilterFileExt
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	// grab config values from Viper
	debug = viper.GetBool("debug")
	noTUI = viper.GetBool("no-tui")

	if debug {
		log.SetLevel(log.DebugLevel)
	}

	if _, err := stretch.LoadConfigFromViper(); err != nil {
		return err
	}
	return nil
}

// useTUI reports whether the interactive view should be used.
func useTUI() bool {
	return !noTUI && term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

func execute(cmd *cobra.Command, args []string) error {
	cfg, err := stretch.LoadConfigFromViper()
	if err != nil {
		return err
	}
	return play(cmd.Context(), args[0], cfg)
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
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	defaults := stretch.DefaultConfig()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "write debug logs")
	rootCmd.Flags().Float64P("tempo", "t", defaults.Tempo, "playback tempo, 1 is the original speed")
	rootCmd.Flags().DurationP("offset", "o", defaults.Offset, "start playing at this position")
	rootCmd.Flags().BoolP("loop", "l", defaults.Loop, "start over when the end is reached")
	rootCmd.Flags().IntP("workers", "w", defaults.WorkerPoolSize, "number of conversion workers")
	rootCmd.Flags().Int("ahead", defaults.AheadChunks, "chunks converted ahead of the position")
	rootCmd.Flags().Int("behind", defaults.BehindChunks, "chunks kept behind the position")
	rootCmd.Flags().Duration("crossfade", defaults.CrossfadeDuration, "crossfade between chunks")
	rootCmd.Flags().BoolVar(&noTUI, "no-tui", false, "print status lines instead of the interactive view")

	// Config bindings
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("no-tui", rootCmd.Flags().Lookup("no-tui"))
	_ = viper.BindPFlag("stretch.tempo", rootCmd.Flags().Lookup("tempo"))
	_ = viper.BindPFlag("stretch.offset", rootCmd.Flags().Lookup("offset"))
	_ = viper.BindPFlag("stretch.loop", rootCmd.Flags().Lookup("loop"))
	_ = viper.BindPFlag("stretch.worker_pool_size", rootCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("stretch.ahead_chunks", rootCmd.Flags().Lookup("ahead"))
	_ = viper.BindPFlag("stretch.behind_chunks", rootCmd.Flags().Lookup("behind"))
	_ = viper.BindPFlag("stretch.crossfade_duration", rootCmd.Flags().Lookup("crossfade"))

	stretch.SetDefaults()

	rootCmd.AddCommand(configCmd, manCmd, renderCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "stretch")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "stretch")}, dirs...)
	}

	if c := os.Getenv("STRETCH_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("stretch")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("stretch")
	// stretch.health.low is read from STRETCH_HEALTH_LOW.
	viper.SetEnvKeyReplacer(strings.NewReplacer("stretch.", "", ".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "stretch.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
