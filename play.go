package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/charmbracelet/stretch/internal/source"
	"github.com/charmbracelet/stretch/stretch"
	"github.com/charmbracelet/stretch/ui"
)

func play(ctx context.Context, path string, cfg stretch.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	buf, err := source.Decode(path)
	if err != nil {
		return err
	}
	log.Debug("Decoded source",
		"path", path,
		"duration", buf.Duration(),
		"rate", buf.SampleRate,
		"channels", buf.Channels)

	e, err := stretch.New(buf, cfg, stretch.WithLogger(log.Default().WithPrefix("stretch")))
	if err != nil {
		return err
	}
	defer e.Dispose()

	sub := e.Subscribe()
	defer sub.Unsubscribe()

	watchConfig(e)

	if !useTUI() {
		return runPlain(ctx, e, sub.C())
	}

	uiCfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}
	uiCfg.Title = filepath.Base(path)

	p := ui.NewProgram(uiCfg, e, sub.C())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	m, err := p.Run()
	if err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	if withErr, ok := m.(interface{ Err() error }); ok && withErr.Err() != nil {
		return withErr.Err()
	}
	return nil
}

// runPlain plays without the interactive view, printing a status line now
// and then.
func runPlain(ctx context.Context, e *stretch.Engine, events <-chan stretch.Event) error {
	if err := e.Start(); err != nil {
		return err
	}

	lines := rate.Sometimes{Interval: time.Second}
	var lastErr error
	for {
		select {
		case <-ctx.Done():
			e.Stop()
			fmt.Println(ui.StatusLine(e.Status()))
			return nil
		case ev, ok := <-events:
			if !ok {
				return lastErr
			}
			switch ev := ev.(type) {
			case stretch.ProgressEvent:
				lines.Do(func() { fmt.Println(ui.StatusLine(e.Status())) })
			case stretch.BufferingEvent:
				log.Info("Buffering", "reason", ev.Reason)
			case stretch.BufferedEvent:
				log.Info("Buffered", "stall", ev.StallDuration)
			case stretch.ErrorEvent:
				log.Error("Conversion failed", "chunk", ev.ChunkIndex, "err", ev.Err)
				lastErr = ev.Err
			case stretch.EndedEvent:
				fmt.Println(ui.StatusLine(e.Status()))
				return nil
			}
		}
	}
}

// watchConfig applies tempo changes made to the config file while playing.
func watchConfig(e *stretch.Engine) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(ev fsnotify.Event) {
		if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
			return
		}
		tempo := viper.GetFloat64("stretch.tempo")
		if tempo == e.Status().Tempo {
			return
		}
		if err := e.SetTempo(tempo); err != nil {
			log.Warn("Ignoring tempo from config file", "tempo", tempo, "err", err)
			return
		}
		log.Info("Tempo changed from config file", "tempo", tempo)
	})
	viper.WatchConfig()
}
