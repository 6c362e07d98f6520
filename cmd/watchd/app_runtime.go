package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sla-monitor/watch-server/internal/api"
	"github.com/sla-monitor/watch-server/internal/buildinfo"
	"github.com/sla-monitor/watch-server/internal/config"
	"github.com/sla-monitor/watch-server/internal/detect"
	"github.com/sla-monitor/watch-server/internal/maintenance"
	"github.com/sla-monitor/watch-server/internal/monitor"
	"github.com/sla-monitor/watch-server/internal/registry"
	"github.com/sla-monitor/watch-server/internal/state"
	"github.com/sla-monitor/watch-server/internal/status"
	"github.com/sla-monitor/watch-server/internal/store"
)

const apiMaxBodyBytes = 1 << 20

const shutdownTimeout = 10 * time.Second

// run wires the daemon, blocks until a signal or a fatal server error,
// and tears everything down in reverse order. It returns the signal that
// ended the process, if any.
func run() (os.Signal, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, logCloser, err := config.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	if logCloser != nil {
		defer logCloser.Close() //nolint:errcheck
	}

	log.WithFields(logrus.Fields{
		"version": buildinfo.Version,
		"commit":  buildinfo.GitCommit,
		"built":   buildinfo.BuildTime,
	}).Info("watchd starting")

	db, err := state.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	defer db.Close() //nolint:errcheck

	st := store.New(db, log.WithField("component", "store"))

	reg, err := registry.Load(cfg, log.WithField("component", "registry"))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := monitor.SyncServices(ctx, reg, st, log.WithField("component", "init")); err != nil {
		return nil, err
	}

	dispatcher := detect.New(detect.Config{
		Enabled: cfg.AutoDetectionEnabled,
		BaseURL: cfg.MonitorAPIURL,
		Timeout: cfg.AutoDetectionTimeout,
		Log:     log.WithField("component", "detect"),
	})

	scheduler := monitor.NewScheduler(monitor.Config{
		Registry:       reg,
		Store:          st,
		Dispatcher:     dispatcher,
		Log:            log.WithField("component", "scheduler"),
		AlertOnFailure: cfg.AlertOnFailure,
	})

	reader := status.NewReader(status.Config{
		Store:     st,
		Interval:  reg.Interval(),
		SLATarget: cfg.SLATarget,
	})
	defer reader.Close()

	runner, err := maintenance.New(maintenance.Config{
		Store:               st,
		Schedule:            cfg.MaintenanceSchedule,
		BucketRetentionDays: cfg.UptimeRetentionDays,
		Log:                 log.WithField("component", "maintenance"),
	})
	if err != nil {
		return nil, err
	}

	srv := api.NewServer(api.ServerConfig{
		Port:         cfg.Port,
		AdminToken:   cfg.AdminToken,
		MaxBodyBytes: apiMaxBodyBytes,
		Store:        st,
		Reader:       reader,
		Scheduler:    scheduler,
		Maintenance:  runner,
		Log:          log.WithField("component", "api"),
	})

	scheduler.Start(ctx)
	runner.Start()

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	log.WithFields(logrus.Fields{
		"services": reg.Size(),
		"interval": reg.Interval().String(),
		"port":     cfg.Port,
	}).Info("watchd running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var sig os.Signal
	var runtimeErr error
	select {
	case sig = <-quit:
		log.Infof("received signal %s, shutting down", sig)
	case runtimeErr = <-serverErrCh:
		log.Errorf("api server failed: %v", runtimeErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("api server shutdown: %v", err)
	}

	cancel()
	scheduler.Stop()
	runner.Stop()

	log.Info("watchd stopped")
	return sig, runtimeErr
}
