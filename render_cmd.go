package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/charmbracelet/stretch/internal/source"
	"github.com/charmbracelet/stretch/stretch"
	"github.com/charmbracelet/stretch/stretch/wsola"
)

var renderCmd = &cobra.Command{
	Use:     "render IN OUT.wav",
	Short:   "Write a time-stretched copy of a file",
	Long:    paragraph(fmt.Sprintf("\n%s the whole file at the given tempo and write it as WAV.", keyword("Convert"))),
	Example: paragraph("stretch render talk.mp3 talk-fast.wav --tempo 1.5"),
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := stretch.LoadConfigFromViper()
		if err != nil {
			return err
		}
		tempo, err := cmd.Flags().GetFloat64("tempo")
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("tempo") {
			tempo = cfg.Tempo
		}
		return render(cmd, args[0], args[1], tempo, cfg.WSOLA)
	},
}

func render(cmd *cobra.Command, in, out string, tempo float64, opts wsola.Options) (err error) {
	buf, err := source.Decode(in)
	if err != nil {
		return err
	}

	start := time.Now()
	converted, err := wsola.New(opts).Convert(cmd.Context(), buf, tempo)
	if err != nil {
		return fmt.Errorf("unable to convert %s: %w", in, err)
	}
	log.Debug("Rendered", "in", in, "tempo", tempo, "took", time.Since(start))

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("unable to create output file: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	if err := source.WriteWAV(f, converted); err != nil {
		return fmt.Errorf("unable to write %s: %w", out, err)
	}

	size := converted.Bytes()
	if fi, statErr := f.Stat(); statErr == nil {
		size = fi.Size()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %s at ×%.2f, %s (%s)\n",
		out,
		buf.Duration().Round(time.Millisecond),
		tempo,
		converted.Duration().Round(time.Millisecond),
		humanize.Bytes(uint64(max(size, 0))))
	return nil
}

func init() {
	renderCmd.Flags().Float64P("tempo", "t", stretch.DefaultConfig().Tempo, "tempo of the rendered file")
}
