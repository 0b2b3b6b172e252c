// Package publish 负责列表的公开可达性：Apache 虚拟主机与 DNS 记录。
package publish

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/moby/sys/atomicwriter"
	"github.com/osteele/liquid"
	"go.uber.org/zap"

	"listsync/backend/internal/actions"
	"listsync/backend/internal/command"
	"listsync/backend/internal/config"
	"listsync/backend/internal/domain"
)

//go:embed templates/vhost.conf.liquid
var defaultVhostTemplate string

// SiteManager 渲染、启用和停用列表站点
type SiteManager struct {
	cfg      config.WebConfig
	serverIP string
	tpl      *liquid.Template
	runner   command.Runner
	queue    actions.Queue
	log      *zap.Logger
}

// NewSiteManager 创建站点管理器；配置了自定义模板文件时使用该文件
func NewSiteManager(cfg *config.Config, runner command.Runner, queue actions.Queue, log *zap.Logger) (*SiteManager, error) {
	if log == nil {
		log = zap.NewNop()
	}

	source := defaultVhostTemplate
	if cfg.Web.TemplateFile != "" {
		content, err := os.ReadFile(cfg.Web.TemplateFile)
		if err != nil {
			return nil, fmt.Errorf("read vhost template: %w", err)
		}
		source = string(content)
	}

	tpl, parseErr := liquid.NewEngine().ParseString(source)
	if parseErr != nil {
		return nil, fmt.Errorf("parse vhost template: %w", parseErr)
	}

	return &SiteManager{
		cfg:      cfg.Web,
		serverIP: cfg.Server.IP,
		tpl:      tpl,
		runner:   runner,
		queue:    queue,
		log:      log,
	}, nil
}

// SiteName 站点名（a2ensite/a2dissite 的参数）
func SiteName(list *domain.MailingList) string {
	return list.PublicHostname()
}

// SitePath 站点定义文件路径
func (s *SiteManager) SitePath(list *domain.MailingList) string {
	return filepath.Join(s.cfg.SitesDir, SiteName(list)+".conf")
}

// SystemUser 站点运行使用的系统用户，由域名 ID 派生
func (s *SiteManager) SystemUser(list *domain.MailingList) string {
	return s.cfg.SystemUserPrefix + strconv.Itoa(s.cfg.SystemUserMinUID+int(list.DomainID))
}

// Render 渲染站点定义
func (s *SiteManager) Render(list *domain.MailingList) (string, error) {
	out, err := s.tpl.RenderString(liquid.Bindings{
		"server_ip":   s.serverIP,
		"domain":      list.DomainName,
		"hostname":    list.PublicHostname(),
		"system_user": s.SystemUser(list),
	})
	if err != nil {
		return "", fmt.Errorf("render vhost for %s: %w", list.PublicHostname(), err)
	}
	return out, nil
}

// Publish 写入站点定义、启用站点并登记 Web 服务重启
func (s *SiteManager) Publish(ctx context.Context, list *domain.MailingList) error {
	content, err := s.Render(list)
	if err != nil {
		return err
	}

	path := s.SitePath(list)
	if err := atomicwriter.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write vhost %s: %w", path, err)
	}

	if _, err := s.runner.Run(ctx, s.cfg.EnsiteBin, SiteName(list)); err != nil {
		return err
	}

	s.log.Info("vhost published", zap.String("hostname", list.PublicHostname()), zap.String("path", path))
	return s.queue.Schedule(ctx, actions.Restart(s.cfg.Service))
}

// Unpublish 站点定义存在时停用站点、删除文件并登记 Web 服务重启
func (s *SiteManager) Unpublish(ctx context.Context, list *domain.MailingList) error {
	path := s.SitePath(list)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat vhost %s: %w", path, err)
	}

	if _, err := s.runner.Run(ctx, s.cfg.DissiteBin, SiteName(list)); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove vhost %s: %w", path, err)
	}

	s.log.Info("vhost removed", zap.String("hostname", list.PublicHostname()))
	return s.queue.Schedule(ctx, actions.Restart(s.cfg.Service))
}
