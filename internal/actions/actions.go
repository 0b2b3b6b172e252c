// Package actions 记录协调过程中产生的“重建映射”“重启服务”信号，并在协调结束后统一执行。
package actions

import (
	"context"
	"sort"
	"strings"
)

// Kind 信号类型
type Kind string

const (
	// KindPostmap 重建 Postfix 映射文件的编译形式
	KindPostmap Kind = "postmap"
	// KindRestart 重启服务
	KindRestart Kind = "restart"
)

// Action 一条待执行的信号，格式为 "<kind>:<target>"
type Action string

// Postmap 创建重建映射信号
func Postmap(path string) Action {
	return Action(string(KindPostmap) + ":" + path)
}

// Restart 创建服务重启信号
func Restart(service string) Action {
	return Action(string(KindRestart) + ":" + service)
}

// Kind 返回信号类型
func (a Action) Kind() Kind {
	kind, _, _ := strings.Cut(string(a), ":")
	return Kind(kind)
}

// Target 返回信号目标（映射文件路径或服务名）
func (a Action) Target() string {
	_, target, _ := strings.Cut(string(a), ":")
	return target
}

// Queue 待执行信号的集合，同一信号只保留一份
type Queue interface {
	Schedule(ctx context.Context, actions ...Action) error
	Pending(ctx context.Context) ([]Action, error)
	Drain(ctx context.Context) ([]Action, error)
}

// Sort 按执行顺序排序：先重建映射，再重启服务
func Sort(actions []Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		ki, kj := actions[i].Kind() == KindRestart, actions[j].Kind() == KindRestart
		if ki != kj {
			return !ki
		}
		return actions[i] < actions[j]
	})
}
