package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/robertguss/rxflow-go/internal/api"
	"github.com/robertguss/rxflow-go/internal/app"
	"github.com/robertguss/rxflow-go/internal/auth"
	"github.com/robertguss/rxflow-go/internal/client"
	"github.com/robertguss/rxflow-go/internal/config"
	"github.com/robertguss/rxflow-go/internal/logging"
	"github.com/robertguss/rxflow-go/internal/messages"
	"github.com/robertguss/rxflow-go/internal/notify"
	"github.com/robertguss/rxflow-go/internal/profile"
	"github.com/robertguss/rxflow-go/internal/storage"
	"github.com/robertguss/rxflow-go/internal/store"
	"github.com/robertguss/rxflow-go/internal/theme"
	"github.com/robertguss/rxflow-go/internal/tracing"
	"github.com/robertguss/rxflow-go/internal/watcher"
)

// Files looked up in the data directory
const (
	themeFileName  = "theme.yaml"
	tracesFileName = "traces.json"
)

// profileWatchDelay coalesces the burst of writes editors make on save
const profileWatchDelay = 250 * time.Millisecond

var (
	cfgFile     string
	profileName string

	cfg      *config.Config
	profiles *profile.ProfileStore
)

var rootCmd = &cobra.Command{
	Use:               "rxflow",
	Short:             "Author pharmacy prescriptions from the terminal",
	Long:              `rxflow walks a pharmacist through patient, prescriber, medications and review, autosaving the draft to the pharmacy backend as they go.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.rxflow/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&profileName, "profile", "p", "", "backend profile to apply")
}

// loadConfig reads the config file and environment, then overlays the
// selected (or active) profile
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ps := profile.NewProfileStore(c.DataDir)
	if err := ps.Load(); err != nil {
		return err
	}
	p, err := ps.Resolve(profileName)
	if err != nil {
		return err
	}
	if p != nil {
		p.ApplyToConfig(c)
	}

	cfg = c
	profiles = ps
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	if err := cfg.EnsureDataDir(); err != nil {
		return err
	}

	logFile, err := logging.OpenFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logging.Setup(cfg.LogLevel, logFile)
	logger := logging.WithModule("main")

	theme.SetTheme(cfg.Theme)
	themePath := filepath.Join(cfg.DataDir, themeFileName)
	if _, err := os.Stat(themePath); err == nil {
		if err := theme.LoadThemeFromYAML(themePath); err != nil {
			logger.WithError(err).Warn("Ignoring custom theme")
		}
	}

	if cfg.TracingEnabled {
		shutdown, err := setupTracing(cfg.DataDir)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	backend := client.New(cfg.APIBaseURL,
		client.WithTimeout(cfg.RequestTimeout),
		client.WithTracer(tracing.Tracer()),
		client.WithLogger(logging.WithModule("client")),
	)

	login := auth.NewSession(backend, cfg.DataDir, logging.WithModule("auth"))
	if restored, err := login.Restore(); err != nil {
		logger.WithError(err).Warn("Could not restore saved session")
	} else if restored {
		logger.WithField("user", login.User().Username).Info("Restored saved session")
	}

	drafts := store.New(backend,
		store.WithTracer(tracing.Tracer()),
		store.WithLogger(logging.WithModule("store")),
	)

	db, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	deps := app.Deps{
		Config:   cfg,
		Auth:     login,
		Drafts:   drafts,
		Recorder: storage.NewRecorder(db, logging.WithModule("history")),
		Notifier: notify.New(cfg.NotifyEnabled, notify.WithSound(cfg.SoundEnabled)),
		Backend:  backend,
		Clock:    clockwork.NewRealClock(),
		Logger:   logging.WithModule("app"),
		Profile:  cfg.ActiveProfile,
	}

	if cfg.BridgeEnabled {
		bridge := api.NewServer(cfg, db, logging.WithModule("bridge"))
		go func() {
			if err := bridge.Start(cfg.BridgeAddr()); err != nil {
				logger.WithError(err).Error("Session bridge stopped")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = bridge.Stop(ctx)
		}()
		deps.Bridge = bridge
	}

	model := app.New(deps)
	p := tea.NewProgram(model, tea.WithAltScreen())
	model.SetProgram(p)

	if cfg.WatchEnabled && cfg.ActiveProfile != "" {
		w := watchProfile(p, cfg.ActiveProfile)
		if err := w.Start(); err != nil {
			logger.WithError(err).Warn("Profile watching disabled")
		} else {
			defer w.Stop()
		}
	}

	_, runErr := p.Run()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	model.Shutdown(ctx)

	if runErr != nil {
		return fmt.Errorf("error running rxflow: %w", runErr)
	}
	return nil
}

// setupTracing exports spans to a file in the data directory
func setupTracing(dataDir string) (func(context.Context) error, error) {
	f, err := os.OpenFile(filepath.Join(dataDir, tracesFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	shutdown, err := tracing.Setup("rxflow", f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return func(ctx context.Context) error {
		return errors.Join(shutdown(ctx), f.Close())
	}, nil
}

// watchProfile reloads the named profile when its file changes and hands
// the result to the program
func watchProfile(p *tea.Program, name string) *watcher.Watcher {
	logger := logging.WithModule("watcher")
	w := watcher.New(profileWatchDelay, clockwork.NewRealClock(), func(string) {
		prof, err := profiles.Reload(name)
		p.Send(messages.ProfileChangedMsg{Profile: prof, Error: err})
	},
		watcher.WithLogger(logger),
		watcher.WithErrorHandler(func(err error) {
			logger.WithError(err).Warn("Profile watch error")
		}),
	)
	w.AddPath(profiles.Path(name))
	return w
}
