// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/tkmsd/groovebox/internal/api/httpapi"
	"github.com/tkmsd/groovebox/internal/app/command"
	"github.com/tkmsd/groovebox/internal/app/notification"
	"github.com/tkmsd/groovebox/internal/app/playback"
	"github.com/tkmsd/groovebox/internal/app/session"
	"github.com/tkmsd/groovebox/internal/infra/config"
	"github.com/tkmsd/groovebox/internal/infra/link/mpdlink"
	"github.com/tkmsd/groovebox/internal/infra/link/timerlink"
	"github.com/tkmsd/groovebox/internal/infra/logger"
	"github.com/tkmsd/groovebox/internal/infra/source"
)

var (
	app        = kingpin.New("groovebox-server", "groovebox playback session server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-actions command
	listActionsCmd = app.Command("list-actions", "List available actions and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	if cmd == listActionsCmd.FullCommand() {
		printActions()
		return
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. A separate function ensures defer
// statements still fire when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	var resolver source.Resolver
	if cfg.Source.Spotify.Enabled {
		r, err := source.NewSpotify(ctx, source.SpotifyConfig{
			ClientID:     cfg.Source.Spotify.ClientID,
			ClientSecret: cfg.Source.Spotify.ClientSecret,
			RefreshToken: cfg.Source.Spotify.RefreshToken,
			Market:       cfg.Source.Spotify.Market,
		})
		if err != nil {
			return fmt.Errorf("failed to create track source: %w", err)
		}
		resolver = r
		zlog.Info().Msg("Spotify track source enabled")
	} else {
		zlog.Warn().Msg("No track source configured, play and search are disabled")
	}

	links, err := linkFactory(cfg)
	if err != nil {
		return fmt.Errorf("invalid link configuration: %w", err)
	}

	notifier := notification.NewManager()
	mgr, err := session.NewManager(cfg, notifier, resolver, links)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	defer mgr.Shutdown()

	api := httpapi.New(mgr, notifier)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(api.Routes(), &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s link=%s", cfg.Server.Addr, cfg.Link.Type)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	if err := server.Shutdown(ctx); err != nil {
		zlog.Warn().Msgf("Server shutdown: %v", err)
	}
	return nil
}

// linkFactory builds the per-space playback link constructor for the
// configured backend.
func linkFactory(cfg *config.Config) (session.LinkFactory, error) {
	switch cfg.Link.Type {
	case "timer":
		return func(spaceID string) (playback.Link, error) {
			return timerlink.New(spaceID), nil
		}, nil
	case "mpd":
		var mpdCfg mpdlink.Config
		if err := command.DecodeArgs(cfg.Link.Settings, &mpdCfg); err != nil {
			return nil, fmt.Errorf("mpd link settings: %w", err)
		}
		return func(spaceID string) (playback.Link, error) {
			return mpdlink.New(spaceID, mpdCfg), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown link type %q", cfg.Link.Type)
	}
}

func printActions() {
	// A config file is not needed just to list the operation set.
	cfg, err := config.Default()
	if err != nil {
		zlog.Fatal().Msgf("Failed to build defaults: %v", err)
	}
	notifier := notification.NewManager()
	mgr, err := session.NewManager(cfg, notifier, nil, func(spaceID string) (playback.Link, error) {
		return timerlink.New(spaceID), nil
	})
	if err != nil {
		zlog.Fatal().Msgf("Failed to create session manager: %v", err)
	}
	defer mgr.Shutdown()

	fmt.Println("Available actions:")
	for _, name := range mgr.Dispatch().Names() {
		fmt.Printf("  %s\n", name)
	}
}
