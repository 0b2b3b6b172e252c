package actions

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// RedisQueue 基于 Redis 集合的信号存储，API 服务与单次协调命令可以共享同一份信号
type RedisQueue struct {
	rdb goredis.Cmdable
	key string
}

// NewRedisQueue 创建 Redis 信号集合
func NewRedisQueue(rdb goredis.Cmdable, key string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key}
}

// Schedule 记录信号（SADD）
func (q *RedisQueue) Schedule(ctx context.Context, actions ...Action) error {
	if len(actions) == 0 {
		return nil
	}

	members := make([]interface{}, 0, len(actions))
	for _, action := range actions {
		members = append(members, string(action))
	}

	if err := q.rdb.SAdd(ctx, q.key, members...).Err(); err != nil {
		return fmt.Errorf("schedule actions: %w", err)
	}
	return nil
}

// Pending 返回当前全部信号（SMEMBERS）
func (q *RedisQueue) Pending(ctx context.Context) ([]Action, error) {
	members, err := q.rdb.SMembers(ctx, q.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	return toActions(members), nil
}

// Drain 在一个事务内读取并删除全部信号
func (q *RedisQueue) Drain(ctx context.Context) ([]Action, error) {
	var members *goredis.StringSliceCmd
	_, err := q.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		members = pipe.SMembers(ctx, q.key)
		pipe.Del(ctx, q.key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drain actions: %w", err)
	}
	return toActions(members.Val()), nil
}

func toActions(members []string) []Action {
	actions := make([]Action, 0, len(members))
	for _, member := range members {
		actions = append(actions, Action(member))
	}
	Sort(actions)
	return actions
}
