package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"classgrid/internal/capture"
	"classgrid/internal/config"
	"classgrid/internal/importer"
	"classgrid/internal/ingest"
	appLog "classgrid/internal/log"
	"classgrid/internal/schedule"
	"classgrid/internal/source"
	"classgrid/internal/web"
)

var serveCmd = &cli.Command{
	Name:   "serve",
	Usage:  "run the HTTP API, dashboard and scheduled jobs",
	Flags:  []cli.Flag{strictFlag},
	Action: serveAction,
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"store_driver", cfg.Store.Driver,
		"strict", cfg.Ingest.Strict,
		"import_url_set", cfg.Import.URL != "",
		"snapshot_cron", cfg.Snapshot.Cron,
		"admin", cfg.BasicAuth != nil,
	)

	svc, closeStore, err := openService(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	sched := importer.NewScheduler(ctx, svc.Location())
	if err := scheduleImport(sched, cfg, svc); err != nil {
		return err
	}

	snapshot := snapshotter(cfg)
	if cfg.Snapshot.Cron != "" {
		if err := sched.Add("snapshot", cfg.Snapshot.Cron, snapshot); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	srv, err := web.NewServer(web.Options{
		Service:      svc,
		Ingest:       ingest.Options{Strict: cfg.Ingest.Strict},
		BasicAuth:    cfg.BasicAuth,
		Term:         cfg.Term,
		SnapshotPath: cfg.Snapshot.Path,
		Snapshot:     snapshot,
	})
	if err != nil {
		return err
	}
	err = srv.ListenAndServe(ctx, cfg.Listen)
	appLog.Info("classgrid exiting")
	return err
}

func scheduleImport(sched *importer.Scheduler, cfg *config.Config, svc *schedule.Service) error {
	if cfg.Import.URL == "" {
		return nil
	}
	job, err := importer.NewJob(
		source.NewFetcher(cfg.Import.CacheDir, nil),
		svc,
		source.Source{ID: "import", URL: cfg.Import.URL},
		ingest.Options{Strict: cfg.Ingest.Strict},
	)
	if err != nil {
		return err
	}
	return importer.ScheduleJob(sched, job, cfg.Import.Cron)
}

// snapshotter captures the server's own dashboard.
func snapshotter(cfg *config.Config) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return capture.CapturePNG(ctx, capture.Options{
			URL:        "http://" + loopback(cfg.Listen) + "/dashboard",
			OutputPath: cfg.Snapshot.Path,
			Width:      cfg.Snapshot.Width,
			Height:     cfg.Snapshot.Height,
			Timeout:    time.Duration(cfg.Snapshot.TimeoutSec) * time.Second,
			ExecPath:   cfg.Snapshot.Chromium,
		})
	}
}

// loopback rewrites a wildcard listen address so the local browser can
// reach it.
func loopback(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
