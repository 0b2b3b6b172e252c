package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"listsync/backend/internal/actions"
)

// ErrRunInProgress 已有协调正在运行
var ErrRunInProgress = errors.New("reconciliation already in progress")

// Applier 执行协调期间登记的重建与重启
type Applier interface {
	Apply(ctx context.Context) ([]actions.Action, error)
}

// Result 一次协调及其后续动作的结果
type Result struct {
	Report  *Report          `json:"report"`
	Applied []actions.Action `json:"applied,omitempty"`
}

// Runner 在同一进程内串行执行协调
type Runner struct {
	engine  *Engine
	applier Applier
	log     *zap.Logger
	mu      sync.Mutex
}

// NewRunner 创建协调执行器；applier 为 nil 时只登记动作不执行
func NewRunner(engine *Engine, applier Applier, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{engine: engine, applier: applier, log: log}
}

// Run 等待正在进行的协调结束后执行一次
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run(ctx)
}

// TryRun 已有协调正在运行时立即返回 ErrRunInProgress
func (r *Runner) TryRun(ctx context.Context) (*Result, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()
	return r.run(ctx)
}

func (r *Runner) run(ctx context.Context) (*Result, error) {
	report, err := r.engine.Run(ctx)
	result := &Result{Report: report}

	// 循环中止时已完成的迁移仍可能登记了动作，照常执行
	if r.applier != nil {
		applied, applyErr := r.applier.Apply(ctx)
		result.Applied = applied
		if applyErr != nil {
			r.log.Error("apply pending actions failed", zap.Error(applyErr))
			err = errors.Join(err, fmt.Errorf("apply actions: %w", applyErr))
		}
	}

	return result, err
}
