package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"listsync/backend/internal/domain"
	"listsync/backend/internal/mailman"
)

// transition 单个待处理状态的处理函数，任一步骤失败即返回，已完成的步骤不回滚
type transition func(ctx context.Context, list *domain.MailingList) error

// create 创建列表、写入路由表并发布站点与 DNS 记录
func (e *Engine) create(ctx context.Context, list *domain.MailingList) error {
	exists, err := e.lists.Exists(ctx, list.Name)
	if err != nil {
		return fmt.Errorf("query list manager: %w", err)
	}

	if !exists {
		password, err := e.secrets.Open(list.AdminPassword)
		if err != nil {
			return fmt.Errorf("open admin password: %w", err)
		}

		err = e.lists.Create(ctx, mailman.NewList{
			Name:       list.Name,
			Domain:     list.DomainName,
			Hostname:   list.PublicHostname(),
			AdminEmail: list.AdminEmail,
			Password:   password,
		})
		if err != nil {
			return fmt.Errorf("create list: %w", err)
		}
	} else {
		e.log.Debug("list already provisioned", zap.String("list", list.Name))
	}

	if err := e.tables.AddAddresses(ctx, list.Addresses()); err != nil {
		return fmt.Errorf("add transport entries: %w", err)
	}

	return e.publish(ctx, list)
}

// update 推送管理员邮箱与主机名，然后修改管理员密码
func (e *Engine) update(ctx context.Context, list *domain.MailingList) error {
	if err := e.lists.Configure(ctx, list.Name, list.AdminEmail, list.PublicHostname()); err != nil {
		return fmt.Errorf("configure list: %w", err)
	}

	password, err := e.secrets.Open(list.AdminPassword)
	if err != nil {
		return fmt.Errorf("open admin password: %w", err)
	}
	if err := e.lists.ChangePassword(ctx, list.Name, password); err != nil {
		return fmt.Errorf("change admin password: %w", err)
	}
	return nil
}

// enable 停用目录中存在列表时移回启用目录并重新发布
//
// 列表已在启用目录中（上一次移动成功但发布失败）时只重新发布；两处都没有时不做任何事。
func (e *Engine) enable(ctx context.Context, list *domain.MailingList) error {
	moved, err := e.lists.Enable(list.Name)
	if err != nil {
		return fmt.Errorf("enable list: %w", err)
	}
	if !moved {
		enabled, err := e.lists.IsEnabled(list.Name)
		if err != nil {
			return fmt.Errorf("enable list: %w", err)
		}
		if !enabled {
			e.log.Debug("list not disabled, nothing to enable", zap.String("list", list.Name))
			return nil
		}
	}

	return e.publish(ctx, list)
}

// disable 移动列表目录到停用目录，无论是否移动都撤销站点与 DNS 记录
func (e *Engine) disable(ctx context.Context, list *domain.MailingList) error {
	if _, err := e.lists.Disable(list.Name); err != nil {
		return fmt.Errorf("disable list: %w", err)
	}

	return e.unpublish(ctx, list)
}

// delete 删除列表、清理路由表并撤销站点与 DNS 记录
//
// 每一步都可以重复执行：列表已不存在时跳过 rmlist，路由表按行精确删除，
// 站点与 DNS 记录缺失时视为已删除。
func (e *Engine) delete(ctx context.Context, list *domain.MailingList) error {
	exists, err := e.lists.Exists(ctx, list.Name)
	if err != nil {
		return fmt.Errorf("query list manager: %w", err)
	}
	if exists {
		if err := e.lists.Remove(ctx, list.Name); err != nil {
			return fmt.Errorf("remove list: %w", err)
		}
	}

	if err := e.tables.RemoveAddresses(ctx, list.Addresses()); err != nil {
		return fmt.Errorf("remove transport entries: %w", err)
	}

	return e.unpublish(ctx, list)
}

func (e *Engine) publish(ctx context.Context, list *domain.MailingList) error {
	if err := e.sites.Publish(ctx, list); err != nil {
		return fmt.Errorf("publish site: %w", err)
	}
	if _, err := e.dns.Publish(ctx, list); err != nil {
		return fmt.Errorf("publish dns record: %w", err)
	}
	return nil
}

func (e *Engine) unpublish(ctx context.Context, list *domain.MailingList) error {
	if err := e.sites.Unpublish(ctx, list); err != nil {
		return fmt.Errorf("unpublish site: %w", err)
	}
	if _, err := e.dns.Unpublish(ctx, list); err != nil {
		return fmt.Errorf("unpublish dns record: %w", err)
	}
	return nil
}
