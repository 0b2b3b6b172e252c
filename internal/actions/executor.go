package actions

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"listsync/backend/internal/command"
	"listsync/backend/internal/config"
	"listsync/backend/internal/monitoring"
)

// Executor 取出信号并执行对应命令
type Executor struct {
	queue          Queue
	runner         command.Runner
	postmapBin     string
	serviceManager string
	metrics        *monitoring.Metrics
	log            *zap.Logger
}

// NewExecutor 创建信号执行器
func NewExecutor(cfg *config.Config, queue Queue, runner command.Runner, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		queue:          queue,
		runner:         runner,
		postmapBin:     cfg.Postfix.PostmapBin,
		serviceManager: cfg.Actions.ServiceManager,
		log:            log,
	}
}

// SetMetrics 设置指标收集器
func (e *Executor) SetMetrics(metrics *monitoring.Metrics) {
	e.metrics = metrics
}

// Apply 执行全部待处理信号，返回成功执行的信号
//
// 先重建映射再重启服务；执行失败的信号重新放回集合，等待下一次执行。
func (e *Executor) Apply(ctx context.Context) ([]Action, error) {
	pending, err := e.queue.Drain(ctx)
	if err != nil {
		return nil, err
	}

	var (
		applied []Action
		failed  []Action
		errs    []error
	)

	for _, action := range pending {
		if err := e.run(ctx, action); err != nil {
			e.log.Error("action failed", zap.String("action", string(action)), zap.Error(err))
			failed = append(failed, action)
			errs = append(errs, fmt.Errorf("%s: %w", action, err))
			e.record(action, "failure")
			continue
		}
		e.log.Info("action applied", zap.String("action", string(action)))
		applied = append(applied, action)
		e.record(action, "success")
	}

	if len(failed) > 0 {
		if err := e.queue.Schedule(ctx, failed...); err != nil {
			errs = append(errs, err)
		}
	}

	return applied, errors.Join(errs...)
}

func (e *Executor) record(action Action, result string) {
	if e.metrics != nil {
		e.metrics.RecordAction(string(action.Kind()), result)
	}
}

func (e *Executor) run(ctx context.Context, action Action) error {
	switch action.Kind() {
	case KindPostmap:
		_, err := e.runner.Run(ctx, e.postmapBin, action.Target())
		return err
	case KindRestart:
		_, err := e.runner.Run(ctx, e.serviceManager, "restart", action.Target())
		return err
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind())
	}
}
