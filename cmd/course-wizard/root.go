package main

import (
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/canvas"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/config"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/notification"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/service"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/pkg/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "course-wizard",
	Short: "Canvas course site provisioning",
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(processJobsCmd)
	rootCmd.AddCommand(finalizeBulkJobsCmd)
	rootCmd.AddCommand(migrateCmd)
}

// initLogger installs the global logger at the configured level.
func initLogger(cfg *config.Config) {
	lvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger := log.InitLog(lvl)
	zap.ReplaceGlobals(logger)
}

// initStore connects to the database. Callers own the returned store and
// must Close it.
func initStore(cfg *config.Config) (store.Store, error) {
	db, err := store.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	return store.NewStore(db), nil
}

// wiring bundles the services every command shares.
type wiring struct {
	canvas    canvas.API
	notifier  *service.Notifier
	engine    *service.ProvisioningEngine
	finalizer *service.BulkFinalizer
	poller    *service.AsyncJobPoller
}

func buildServices(cfg *config.Config, s store.Store) (*wiring, error) {
	canvasAPI := canvas.New(cfg.Canvas.APIBaseURL, cfg.Canvas.AccountID, cfg.Canvas.AccessToken, cfg.Canvas.Timeout)

	sender, err := notification.NewSMTPSender(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.Username,
		cfg.Email.Password,
		cfg.Email.FromAddress,
	)
	if err != nil {
		return nil, err
	}

	notifier := service.NewNotifier(sender, canvasAPI, cfg)
	engine := service.NewProvisioningEngine(s, canvasAPI, notifier, cfg)

	return &wiring{
		canvas:    canvasAPI,
		notifier:  notifier,
		engine:    engine,
		finalizer: service.NewBulkFinalizer(s, engine, notifier, cfg),
		poller:    service.NewAsyncJobPoller(s, canvasAPI, engine, notifier, cfg),
	}, nil
}
