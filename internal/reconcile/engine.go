// Package reconcile 实现邮件列表的协调循环。
//
// 一次运行批量读取全部待处理列表，按读取顺序逐个执行对应的状态迁移，
// 并把结果作为一次写入持久化。单个列表的失败只会把该列表置为 failed，
// 只有结果写入本身失败才会中止整个循环。
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"listsync/backend/internal/domain"
	"listsync/backend/internal/mailman"
	"listsync/backend/internal/monitoring"
	"listsync/backend/internal/publish"
	"listsync/backend/internal/storage"
)

// unknownError 迁移失败但错误信息为空时记录的文本
const unknownError = "unknown error"

// Store 协调循环使用的存储方法
type Store interface {
	ListPendingMailingLists() ([]*domain.MailingList, error)
	UpdateMailingListStatus(id string, update domain.MailingListStatusUpdate) error
	DeleteMailingList(id string) error
}

// ListManager 列表管理器
type ListManager interface {
	Exists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, list mailman.NewList) error
	Configure(ctx context.Context, name, ownerEmail, hostname string) error
	ChangePassword(ctx context.Context, name, password string) error
	Remove(ctx context.Context, name string) error
	Enable(name string) (bool, error)
	Disable(name string) (bool, error)
	IsEnabled(name string) (bool, error)
}

// TransportTables 传输映射表
type TransportTables interface {
	AddAddresses(ctx context.Context, addresses []string) error
	RemoveAddresses(ctx context.Context, addresses []string) error
}

// SitePublisher 列表站点
type SitePublisher interface {
	Publish(ctx context.Context, list *domain.MailingList) error
	Unpublish(ctx context.Context, list *domain.MailingList) error
}

// SecretOpener 解密管理员密码
type SecretOpener interface {
	Open(sealed string) (string, error)
}

// Dependencies 协调引擎的依赖
type Dependencies struct {
	Store   Store
	Lists   ListManager
	Tables  TransportTables
	Sites   SitePublisher
	DNS     publish.DNSPublisher
	Secrets SecretOpener
	Metrics *monitoring.Metrics // 可选
	Log     *zap.Logger
}

// Engine 协调引擎
type Engine struct {
	store    Store
	lists    ListManager
	tables   TransportTables
	sites    SitePublisher
	dns      publish.DNSPublisher
	secrets  SecretOpener
	metrics  *monitoring.Metrics
	log      *zap.Logger
	handlers map[domain.MailingListStatus]transition
}

// NewEngine 创建协调引擎
func NewEngine(deps Dependencies) *Engine {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		store:   deps.Store,
		lists:   deps.Lists,
		tables:  deps.Tables,
		sites:   deps.Sites,
		dns:     deps.DNS,
		secrets: deps.Secrets,
		metrics: deps.Metrics,
		log:     log,
	}
	e.handlers = map[domain.MailingListStatus]transition{
		domain.MailingListStatusCreatePending:  e.create,
		domain.MailingListStatusUpdatePending:  e.update,
		domain.MailingListStatusEnablePending:  e.enable,
		domain.MailingListStatusDisablePending: e.disable,
		domain.MailingListStatusDeletePending:  e.delete,
	}
	return e
}

// Failure 单个列表的失败记录
type Failure struct {
	ListID string                   `json:"listId"`
	Name   string                   `json:"name"`
	Domain string                   `json:"domain"`
	Status domain.MailingListStatus `json:"status"`
	Error  string                   `json:"error"`
}

// Report 一次运行的结果汇总
type Report struct {
	Pending   int           `json:"pending"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Deleted   int           `json:"deleted"`
	Duration  time.Duration `json:"duration"`
	Failures  []Failure     `json:"failures,omitempty"`
}

// Run 执行一次协调
//
// 返回的错误只表示循环本身失败（读取待处理列表失败或结果写入失败），
// 单个列表的迁移失败记录在 Report.Failures 中。
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}

	pending, err := e.store.ListPendingMailingLists()
	if err != nil {
		e.finish(report, start, err)
		return nil, fmt.Errorf("load pending mailing lists: %w", err)
	}
	report.Pending = len(pending)

	if len(pending) == 0 {
		e.finish(report, start, nil)
		return report, nil
	}

	e.log.Info("reconciliation started", zap.Int("pending", len(pending)))

	for _, list := range pending {
		if err := ctx.Err(); err != nil {
			e.finish(report, start, err)
			return report, err
		}

		if err := e.process(ctx, list, report); err != nil {
			e.finish(report, start, err)
			return report, err
		}
	}

	e.finish(report, start, nil)
	e.log.Info("reconciliation finished",
		zap.Int("pending", report.Pending),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("deleted", report.Deleted),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// process 执行一个列表的迁移并写入结果，返回的错误会中止循环
func (e *Engine) process(ctx context.Context, list *domain.MailingList, report *Report) error {
	status := list.Status
	log := e.log.With(
		zap.String("list_id", list.ID),
		zap.String("list", list.Name),
		zap.String("domain", list.DomainName),
		zap.String("status", string(status)),
	)

	handler, ok := e.handlers[status]
	var transitionErr error
	if !ok {
		transitionErr = fmt.Errorf("no transition for status %q", status)
	} else {
		transitionErr = handler(ctx, list)
	}

	if transitionErr != nil {
		message := transitionErr.Error()
		if message == "" {
			message = unknownError
		}

		log.Warn("transition failed", zap.String("error", message))
		e.recordTransition(status, "failure")
		report.Failed++
		report.Failures = append(report.Failures, Failure{
			ListID: list.ID,
			Name:   list.Name,
			Domain: list.DomainName,
			Status: status,
			Error:  message,
		})

		err := e.store.UpdateMailingListStatus(list.ID, domain.MailingListStatusUpdate{
			Status:       domain.MailingListStatusFailed,
			LastError:    &message,
			FailedStatus: status,
		})
		if err != nil {
			return fmt.Errorf("persist failure of mailing list %s: %w", list.ID, err)
		}
		return nil
	}

	if status == domain.MailingListStatusDeletePending {
		if err := e.store.DeleteMailingList(list.ID); err != nil && !errors.Is(err, storage.ErrMailingListNotFound) {
			return fmt.Errorf("delete mailing list %s: %w", list.ID, err)
		}
		report.Deleted++
	} else {
		err := e.store.UpdateMailingListStatus(list.ID, domain.MailingListStatusUpdate{
			Status: settledStatus(status),
		})
		if err != nil {
			return fmt.Errorf("persist status of mailing list %s: %w", list.ID, err)
		}
	}

	log.Info("transition succeeded")
	e.recordTransition(status, "success")
	report.Succeeded++
	return nil
}

// settledStatus 待处理状态成功后的稳定状态
func settledStatus(status domain.MailingListStatus) domain.MailingListStatus {
	if status == domain.MailingListStatusDisablePending {
		return domain.MailingListStatusDisabled
	}
	return domain.MailingListStatusOK
}

func (e *Engine) recordTransition(status domain.MailingListStatus, result string) {
	if e.metrics != nil {
		e.metrics.RecordTransition(string(status), result)
	}
}

func (e *Engine) finish(report *Report, start time.Time, err error) {
	report.Duration = time.Since(start)
	if e.metrics == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
		e.metrics.RecordError("reconcile", "loop")
	}
	e.metrics.RecordReconcileRun(result, report.Pending, report.Duration)
}
