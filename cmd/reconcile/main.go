// Command reconcile runs a single reconciliation sweep and prints its report.
// It is meant for cron or a Kubernetes CronJob when RECONCILE_INTERVAL is 0 on the servers.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/seatpay/backend/internal/app"
	"github.com/seatpay/backend/internal/config"
	"github.com/seatpay/backend/internal/logger"
	"github.com/seatpay/backend/internal/services/payment"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog := logger.Must(cfg.Environment)
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to initialize application", zap.Error(err))
	}

	report, err := application.Service.Reconcile(ctx)
	// Close drains queued side effects before exiting
	application.Close()

	switch {
	case errors.Is(err, payment.ErrSweepInProgress):
		zlog.Info("another sweep is running, nothing to do")
		return
	case err != nil:
		zlog.Error("reconciliation failed", zap.Error(err))
		_ = zlog.Sync()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Report *payment.ReconcileReport `json:"report"`
		Total  payment.KindReport       `json:"total"`
	}{report, report.Total()}); err != nil {
		zlog.Error("could not write report", zap.Error(err))
	}
}
