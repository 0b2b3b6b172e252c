// Package postfix 编辑 Postfix 的 transport 与 mailboxes 平面映射文件。
//
// 每行格式为 "<address>\t<target>"。增加和删除都按整行精确匹配，
// 文件内容有变化时才重写，并登记重建映射与重启服务的信号。
package postfix

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/moby/sys/atomicwriter"
	"go.uber.org/zap"

	"listsync/backend/internal/actions"
	"listsync/backend/internal/config"
)

// Tables 传输映射表编辑器
type Tables struct {
	cfg   config.PostfixConfig
	queue actions.Queue
	log   *zap.Logger
}

// New 创建映射表编辑器
func New(cfg config.PostfixConfig, queue actions.Queue, log *zap.Logger) *Tables {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tables{cfg: cfg, queue: queue, log: log}
}

// AddAddresses 将地址加入 transport（投递到列表管理器）和 mailboxes（丢弃），已存在的行跳过
func (t *Tables) AddAddresses(ctx context.Context, addresses []string) error {
	if err := t.edit(ctx, t.cfg.TransportMap, addresses, t.cfg.TransportTarget, addLines); err != nil {
		return err
	}
	return t.edit(ctx, t.cfg.MailboxesMap, addresses, t.cfg.DiscardTarget, addLines)
}

// RemoveAddresses 从两张表中删除地址对应的行
func (t *Tables) RemoveAddresses(ctx context.Context, addresses []string) error {
	if err := t.edit(ctx, t.cfg.TransportMap, addresses, t.cfg.TransportTarget, removeLines); err != nil {
		return err
	}
	return t.edit(ctx, t.cfg.MailboxesMap, addresses, t.cfg.DiscardTarget, removeLines)
}

type editFunc func(lines, wanted []string) ([]string, bool)

func (t *Tables) edit(ctx context.Context, path string, addresses []string, target string, fn editFunc) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("read map %s: %w", path, err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read map %s: %w", path, err)
	}

	wanted := make([]string, 0, len(addresses))
	for _, address := range addresses {
		wanted = append(wanted, address+"\t"+target)
	}

	lines, changed := fn(splitLines(string(content)), wanted)
	if !changed {
		return nil
	}

	if err := atomicwriter.WriteFile(path, []byte(joinLines(lines)), info.Mode().Perm()); err != nil {
		return fmt.Errorf("write map %s: %w", path, err)
	}

	t.log.Info("transport map updated", zap.String("path", path), zap.Int("lines", len(lines)))
	return t.queue.Schedule(ctx, actions.Postmap(path), actions.Restart(t.cfg.Service))
}

func addLines(lines, wanted []string) ([]string, bool) {
	present := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		present[line] = struct{}{}
	}

	changed := false
	for _, line := range wanted {
		if _, ok := present[line]; ok {
			continue
		}
		lines = append(lines, line)
		present[line] = struct{}{}
		changed = true
	}
	return lines, changed
}

func removeLines(lines, wanted []string) ([]string, bool) {
	drop := make(map[string]struct{}, len(wanted))
	for _, line := range wanted {
		drop[line] = struct{}{}
	}

	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := drop[line]; ok {
			continue
		}
		kept = append(kept, line)
	}
	return kept, len(kept) != len(lines)
}

func splitLines(content string) []string {
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
