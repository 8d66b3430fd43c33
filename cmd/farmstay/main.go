package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"farmstay/internal/availability"
	"farmstay/internal/config"
	"farmstay/internal/ics"
	appLog "farmstay/internal/log"
	"farmstay/internal/refresh"
	"farmstay/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		if conf == nil {
			os.Exit(1)
		}
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	loc, err := conf.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "timezone", conf.Timezone)
	}

	appLog.Info("farmstay starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"week_start", conf.WeekStart,
		"refresh", conf.RefreshCron,
		"max_age", conf.MaxAge,
		"horizon_days", conf.HorizonDays,
		"keep_last_good", conf.KeepLastGood,
		"feed_configured", conf.Feed.URL != "",
		"listing", conf.Listing.ID,
		"once", flags.once,
	)

	fetcher := ics.NewFetcher(conf.FetchTimeout())
	svc := availability.NewService(fetcher, availability.Config{
		URL:          conf.Feed.URL,
		MaxAge:       conf.MaxAgeDuration(),
		HorizonDays:  conf.HorizonDays,
		KeepLastGood: conf.KeepLastGood,
		Location:     loc,
		Timeout:      conf.FetchTimeout() + 5*time.Second,
	})

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.once {
		runOnce(ctx, svc)
		return
	}

	if err := serve(ctx, conf, svc, loc); err != nil {
		appLog.Error("server failed", err)
		os.Exit(1)
	}
	appLog.Info("farmstay exiting")
}

// runOnce prints one snapshot as JSON. Sync errors are part of the output,
// so the exit status is always 0.
func runOnce(ctx context.Context, svc *availability.Service) {
	snap := svc.Refresh(ctx)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		appLog.Error("failed to write snapshot", err)
	}
}

func serve(ctx context.Context, conf *config.Config, svc *availability.Service, loc *time.Location) error {
	sched, err := refresh.New(ctx, conf.RefreshCron, loc, conf.FetchTimeout()+5*time.Second, svc)
	if err != nil {
		return err
	}

	// Warm the cache so the first visitor does not wait on the feed.
	go sched.RunNow()
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, svc, loc).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/farmstay/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one availability sync, print it as JSON and exit")

	flag.Parse()

	return cfg
}
