// reconcile 执行一次协调：读取全部待处理列表，逐个迁移后写回状态，
// 然后按需执行登记的重建/重启动作。
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"listsync/backend/internal/app"
	"listsync/backend/internal/config"
	"listsync/backend/internal/logger"
	"listsync/backend/internal/monitoring"
	"listsync/backend/internal/reconcile"
)

// 存在迁移失败的列表且指定了 --strict 时的退出码
const exitFailures = 2

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) ExitCode() int { return e.code }

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coded *exitError
		if errors.As(err, &coded) {
			os.Exit(coded.ExitCode())
		}
		os.Exit(1)
	}
}

func run() error {
	var (
		apply       bool
		noApply     bool
		strict      bool
		asJSON      bool
		timeout     time.Duration
		pushgateway string
	)

	flagSet := pflag.NewFlagSet("reconcile", pflag.ContinueOnError)
	flagSet.BoolVar(&apply, "apply", false, "run queued postmap/restart actions after the loop (overrides actions.apply)")
	flagSet.BoolVar(&noApply, "no-apply", false, "leave queued actions for a later run")
	flagSet.BoolVar(&strict, "strict", false, "exit with status 2 when any list failed its transition")
	flagSet.BoolVar(&asJSON, "json", false, "print the run result as JSON on stdout")
	flagSet.DurationVar(&timeout, "timeout", 0, "abort the run after this duration (0 = no limit)")
	flagSet.StringVar(&pushgateway, "pushgateway", "", "push run metrics to this Pushgateway URL (overrides metrics.pushgateway_url)")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if apply && noApply {
		return errors.New("--apply and --no-apply are mutually exclusive")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if apply {
		cfg.Actions.Apply = true
	}
	if noApply {
		cfg.Actions.Apply = false
	}
	if pushgateway != "" {
		cfg.Metrics.PushgatewayURL = pushgateway
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Warn("close application resources", zap.Error(err))
		}
	}()

	result, runErr := application.Runner.Run(ctx)

	if result != nil && result.Report != nil {
		logResult(log, result)
		if asJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(result); err != nil {
				log.Warn("encode result", zap.Error(err))
			}
		}
	}

	if cfg.Metrics.PushgatewayURL != "" {
		if err := pushMetrics(cfg.Metrics.PushgatewayURL, application.Metrics); err != nil {
			log.Warn("push metrics failed", zap.String("url", cfg.Metrics.PushgatewayURL), zap.Error(err))
		}
	}

	if runErr != nil {
		return runErr
	}
	if strict && result.Report.Failed > 0 {
		return &exitError{code: exitFailures, err: fmt.Errorf("%d mailing list(s) failed", result.Report.Failed)}
	}
	return nil
}

func logResult(log *zap.Logger, result *reconcile.Result) {
	report := result.Report
	log.Info("reconcile finished",
		zap.Int("pending", report.Pending),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("deleted", report.Deleted),
		zap.Int("applied", len(result.Applied)),
		zap.Duration("duration", report.Duration),
	)
	for _, failure := range report.Failures {
		log.Warn("mailing list transition failed",
			zap.String("list_id", failure.ListID),
			zap.String("list", failure.Name+"@"+failure.Domain),
			zap.String("status", string(failure.Status)),
			zap.String("error", failure.Error),
		)
	}
}

// pushMetrics 单次运行结束后把指标推送到 Pushgateway
func pushMetrics(url string, metrics *monitoring.Metrics) error {
	return push.New(url, "listsync_reconcile").
		Gatherer(metrics.Registry()).
		Push()
}
