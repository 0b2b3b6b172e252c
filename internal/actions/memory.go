package actions

import (
	"context"
	"sync"
)

// MemoryQueue 进程内信号集合
type MemoryQueue struct {
	mu      sync.Mutex
	pending map[Action]struct{}
}

// NewMemoryQueue 创建进程内信号集合
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{pending: make(map[Action]struct{})}
}

// Schedule 记录信号
func (q *MemoryQueue) Schedule(_ context.Context, actions ...Action) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, action := range actions {
		q.pending[action] = struct{}{}
	}
	return nil
}

// Pending 返回当前全部信号，不清空
func (q *MemoryQueue) Pending(_ context.Context) ([]Action, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.snapshotLocked(), nil
}

// Drain 取出并清空全部信号
func (q *MemoryQueue) Drain(_ context.Context) ([]Action, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	actions := q.snapshotLocked()
	q.pending = make(map[Action]struct{})
	return actions, nil
}

func (q *MemoryQueue) snapshotLocked() []Action {
	actions := make([]Action, 0, len(q.pending))
	for action := range q.pending {
		actions = append(actions, action)
	}
	Sort(actions)
	return actions
}
