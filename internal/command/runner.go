// Package command 执行外部管理命令（列表管理器、站点启停、映射重建、服务重启）。
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Runner 执行一条外部命令并返回标准输出
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// Error 外部命令执行失败
//
// ExitCode 为 -1 表示命令未能启动或被超时终止。
type Error struct {
	Command  string
	ExitCode int
	Output   string
	Err      error
}

func (e *Error) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, e.Output)
	}
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// defaultWaitDelay 命令被终止后等待其输出管道关闭的上限
const defaultWaitDelay = 5 * time.Second

// ExecRunner 通过 os/exec 阻塞执行命令
//
// 参数中可能包含列表管理员密码，日志只记录命令名与参数个数。
type ExecRunner struct {
	timeout   time.Duration
	waitDelay time.Duration
	log       *zap.Logger
}

// NewExecRunner 创建命令执行器，timeout 为零时不限制执行时间
func NewExecRunner(timeout time.Duration, log *zap.Logger) *ExecRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExecRunner{timeout: timeout, waitDelay: defaultWaitDelay, log: log}
}

// Run 执行命令，失败时返回 *Error（包含退出码与合并后的输出）
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// 子进程持有管道时，终止后最多再等待 waitDelay
	cmd.WaitDelay = r.waitDelay

	start := time.Now()
	err := cmd.Run()
	r.log.Debug("command finished",
		zap.String("command", name),
		zap.Int("arg_count", len(args)),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)

	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return "", &Error{
			Command:  name,
			ExitCode: exitCode,
			Output:   strings.TrimSpace(stderr.String() + stdout.String()),
			Err:      err,
		}
	}
	return stdout.String(), nil
}
