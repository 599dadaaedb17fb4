package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/config"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/pkg/runlock"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

// Exit codes of the batch commands. The scheduler distinguishes "another
// instance was already running" from a real fault.
const (
	exitFault    = 1
	exitLockHeld = 2
)

// runBatch is the shared skeleton of the scheduler-invoked commands: take
// the single-instance lock, wire the services, run one pass (or keep a
// jittered ticker loop going when every > 0), release the lock on the way
// out.
func runBatch(name string, every time.Duration, pass func(ctx context.Context, w *wiring) error) {
	cfg, err := config.New()
	if err != nil {
		zap.S().Errorf("reading configuration: %v", err)
		os.Exit(exitFault)
	}
	initLogger(cfg)
	defer func() { _ = zap.S().Sync() }()

	log := zap.S().Named(name)

	release, ok, err := runlock.Acquire(cfg.Service.LockDir, name)
	if err != nil {
		log.Errorf("acquiring run lock: %v", err)
		os.Exit(exitFault)
	}
	if !ok {
		log.Warnf("another %s instance holds the lock, exiting", name)
		os.Exit(exitLockHeld)
	}
	defer release()

	s, err := initStore(cfg)
	if err != nil {
		log.Errorf("initializing data store: %v", err)
		release()
		os.Exit(exitFault)
	}
	defer s.Close()

	services, err := buildServices(cfg, s)
	if err != nil {
		log.Errorf("building services: %v", err)
		release()
		os.Exit(exitFault)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := pass(ctx, services); err != nil {
		log.Errorf("pass failed: %v", err)
		release()
		_ = s.Close()
		os.Exit(exitFault)
	}

	if every <= 0 {
		return
	}

	// Jitter the cadence so several wizard deployments sharing a Canvas
	// instance do not poll in lockstep.
	ticker := jitterbug.New(every, &jitterbug.Norm{Stdev: every / 10})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			if err := pass(ctx, services); err != nil {
				log.Errorf("pass failed: %v", err)
			}
		}
	}
}
