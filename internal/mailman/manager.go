// Package mailman 封装列表管理器（Mailman 2）的命令行工具和列表目录。
//
// 列表是否启用由其目录所在位置决定：启用中的列表位于 lists 目录，
// 停用的列表被整体移动到 disabled 目录，不调用任何列表管理器命令。
package mailman

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"listsync/backend/internal/command"
	"listsync/backend/internal/config"
)

// NewList 创建列表所需的参数
type NewList struct {
	Name       string
	Domain     string // 邮件域名
	Hostname   string // 列表站点主机名，例如 lists.example.com
	AdminEmail string
	Password   string
}

// Manager 列表管理器适配器
type Manager struct {
	cfg    config.MailmanConfig
	runner command.Runner
	log    *zap.Logger
}

// New 创建列表管理器适配器
func New(cfg config.MailmanConfig, runner command.Runner, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{cfg: cfg, runner: runner, log: log}
}

func (m *Manager) bin(name string) string {
	return filepath.Join(m.cfg.BinDir, name)
}

// Exists 查询列表是否已在列表管理器中存在（list_lists -b）
func (m *Manager) Exists(ctx context.Context, name string) (bool, error) {
	output, err := m.runner.Run(ctx, m.bin("list_lists"), "-b")
	if err != nil {
		return false, err
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		if strings.EqualFold(strings.TrimSpace(scanner.Text()), name) {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// Create 创建列表（newlist）
func (m *Manager) Create(ctx context.Context, list NewList) error {
	_, err := m.runner.Run(ctx, m.bin("newlist"),
		"-q",
		"-u", list.Hostname,
		"-e", list.Domain,
		list.Name, list.AdminEmail, list.Password,
	)
	if err != nil {
		return err
	}

	m.log.Info("mailing list provisioned", zap.String("list", list.Name), zap.String("domain", list.Domain))
	return nil
}

// Configure 通过 config_list -i 写入列表所有者与主机名
func (m *Manager) Configure(ctx context.Context, name, ownerEmail, hostname string) error {
	fragment, err := os.CreateTemp("", "listsync-config-*.py")
	if err != nil {
		return fmt.Errorf("create config fragment: %w", err)
	}
	defer os.Remove(fragment.Name())

	content := fmt.Sprintf("owner = [%s]\nhost_name = %s\n", pyString(ownerEmail), pyString(hostname))
	if _, err := fragment.WriteString(content); err != nil {
		fragment.Close()
		return fmt.Errorf("write config fragment: %w", err)
	}
	if err := fragment.Close(); err != nil {
		return fmt.Errorf("close config fragment: %w", err)
	}

	_, err = m.runner.Run(ctx, m.bin("config_list"), "-i", fragment.Name(), name)
	return err
}

// ChangePassword 修改列表管理员密码（change_pw）
func (m *Manager) ChangePassword(ctx context.Context, name, password string) error {
	_, err := m.runner.Run(ctx, m.bin("change_pw"), "-q", "-l", name, "-p", password)
	return err
}

// Remove 删除列表及其归档（rmlist -a）
func (m *Manager) Remove(ctx context.Context, name string) error {
	if _, err := m.runner.Run(ctx, m.bin("rmlist"), "-a", name); err != nil {
		return err
	}

	m.log.Info("mailing list removed", zap.String("list", name))
	return nil
}

// Enable 将列表目录从停用目录移回启用目录，返回是否发生了移动
func (m *Manager) Enable(name string) (bool, error) {
	return moveDir(filepath.Join(m.cfg.DisabledDir, name), filepath.Join(m.cfg.ListsDir, name))
}

// Disable 将列表目录移动到停用目录，返回是否发生了移动
func (m *Manager) Disable(name string) (bool, error) {
	if err := os.MkdirAll(m.cfg.DisabledDir, 0o755); err != nil {
		return false, fmt.Errorf("create disabled dir: %w", err)
	}
	return moveDir(filepath.Join(m.cfg.ListsDir, name), filepath.Join(m.cfg.DisabledDir, name))
}

// IsEnabled 判断启用目录中是否存在该列表
func (m *Manager) IsEnabled(name string) (bool, error) {
	return dirExists(filepath.Join(m.cfg.ListsDir, name))
}

func moveDir(from, to string) (bool, error) {
	exists, err := dirExists(from)
	if err != nil || !exists {
		return false, err
	}

	if _, err := os.Stat(to); err == nil {
		return false, fmt.Errorf("move %s: destination %s already exists", from, to)
	}

	if err := os.Rename(from, to); err != nil {
		return false, fmt.Errorf("move %s to %s: %w", from, to, err)
	}
	return true, nil
}

func dirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// pyString 生成单引号包裹的 Python 字符串字面量
func pyString(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`).Replace(value)
	return "'" + escaped + "'"
}
