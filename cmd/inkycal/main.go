// Command inkycal runs one poll/render pass of the e-ink household
// calendar, or serves the local provisioning API with --serve. Cadence is
// an external timer's job; this process does one thing and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inkycal/internal/app"
	"inkycal/internal/calendar"
	"inkycal/internal/config"
	appLog "inkycal/internal/log"
	"inkycal/internal/travel"
	"inkycal/internal/weather"
	"inkycal/internal/web"
)

const defaultStatePath = "/opt/inkycal/state.json"

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	envPath := flag.String("env", config.DefaultEnvPath, "path to the credentials .env file")
	statePath := flag.String("state", defaultStatePath, "path to the run-state JSON file")
	force := flag.Bool("force", false, "refresh the panel even if nothing changed")
	deepClean := flag.Bool("deep-clean", false, "flush the panel before drawing to clear ghosting")
	renderOnly := flag.String("render-only", "", "write the rendered PNG to this path and skip the hardware")
	serve := flag.Bool("serve", false, "run the provisioning HTTP server instead of a render pass")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	appLog.SetLevel(cfg.LogLevel)

	if *serve {
		runServer(cfg, *configPath, *envPath)
		return
	}

	secrets, err := config.LoadSecrets(*envPath)
	if err != nil {
		appLog.Error("loading secrets failed", err)
		os.Exit(1)
	}

	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		appLog.Error("invalid timezone", err, "timezone", cfg.Timezone)
		os.Exit(1)
	}

	runner := &app.Runner{
		Config:      cfg,
		StatePath:   *statePath,
		Force:       *force,
		DeepClean:   *deepClean,
		RenderOnly:  *renderOnly != "",
		PreviewPath: *renderOnly,
		Sources:     buildSources(cfg, secrets, tz),
	}
	if cfg.Travel.Enabled {
		runner.Travel = travel.NewResolver()
	}
	if cfg.Weather.Enabled {
		wx := weather.NewResolver(cfg.Timezone, cfg.Weather.Latitude, cfg.Weather.Longitude)
		runner.Weather = wx
		runner.Alerts = wx
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	decision, err := runner.RunOnce(ctx)
	if err != nil {
		appLog.Error("run failed", err, "decision", decision.String())
		os.Exit(1)
	}
	appLog.Info("run complete", "decision", decision.String())
}

func buildSources(cfg *config.Config, secrets config.Secrets, tz *time.Location) []app.EventSource {
	var sources []app.EventSource
	if cfg.Calendars.Google.Enabled {
		if secrets.GoogleTokenJSON == "" {
			appLog.Error("google calendar enabled but GOOGLE_TOKEN_JSON is unset", nil)
		} else {
			sources = append(sources,
				calendar.NewGoogleSource(cfg.Calendars.Google.CalendarIDs, secrets.GoogleTokenJSON, tz))
		}
	}
	if cfg.Calendars.ICloud.Enabled {
		if secrets.ICloudUsername == "" || secrets.ICloudAppPassword == "" {
			appLog.Error("icloud calendar enabled but credentials are unset", nil)
		} else {
			sources = append(sources,
				calendar.NewICloudSource(secrets.ICloudUsername, secrets.ICloudAppPassword,
					cfg.Calendars.ICloud.CalendarNameAllowlist, tz))
		}
	}
	return sources
}

func runServer(cfg *config.Config, configPath, envPath string) {
	srv := web.NewServer(configPath, envPath, nil)
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	appLog.Info("provisioning server listening", "addr", cfg.Listen)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		appLog.Error("provisioning server failed", err)
		os.Exit(1)
	}
}
