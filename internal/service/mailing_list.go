package service

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"listsync/backend/internal/domain"
	"listsync/backend/internal/storage"
)

var (
	// ErrInvalidTransition 当前状态不允许该请求
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNothingToUpdate 更新请求没有任何字段
	ErrNothingToUpdate = errors.New("nothing to update")
)

// Sealer 密封管理员密码
type Sealer interface {
	Seal(plaintext string) (string, error)
}

// MailingListService 邮件列表请求服务
//
// 服务只负责校验请求并把列表置为对应的待处理状态，
// 实际的外部变更全部由协调循环完成。
type MailingListService struct {
	store  domain.Store
	sealer Sealer
	log    *zap.Logger
}

// NewMailingListService 创建邮件列表服务
func NewMailingListService(store domain.Store, sealer Sealer, log *zap.Logger) *MailingListService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MailingListService{store: store, sealer: sealer, log: log}
}

// CreateMailingListInput 创建邮件列表输入
type CreateMailingListInput struct {
	DomainID   uint   `json:"-"` // 从路径参数获取
	Name       string `json:"name" binding:"required,max=64"`
	AdminEmail string `json:"adminEmail" binding:"required,email"`
	Password   string `json:"password" binding:"required"`
}

// UpdateMailingListInput 更新管理员信息输入，空字段保持不变
type UpdateMailingListInput struct {
	AdminEmail string `json:"adminEmail" binding:"omitempty,email"`
	Password   string `json:"password"`
}

// Create 创建邮件列表
//
// 参数:
//   - input: 创建输入
//
// 返回值:
//   - *domain.MailingList: 处于 create-pending 状态的列表
//   - error: 校验失败、域名不存在或同名列表已存在
func (s *MailingListService) Create(input CreateMailingListInput) (*domain.MailingList, error) {
	name := strings.ToLower(strings.TrimSpace(input.Name))
	if err := domain.ValidateListName(name); err != nil {
		return nil, err
	}
	if err := domain.ValidateEmail(input.AdminEmail); err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	hosted, err := s.store.GetHostedDomain(input.DomainID)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetMailingListByName(hosted.ID, name); err == nil {
		return nil, storage.ErrMailingListExists
	} else if !errors.Is(err, storage.ErrMailingListNotFound) {
		return nil, err
	}

	sealed, err := s.sealer.Seal(input.Password)
	if err != nil {
		return nil, fmt.Errorf("seal admin password: %w", err)
	}

	list := &domain.MailingList{
		DomainID:      hosted.ID,
		DomainName:    hosted.Name,
		Name:          name,
		AdminEmail:    input.AdminEmail,
		AdminPassword: sealed,
		Status:        domain.MailingListStatusCreatePending,
	}
	if err := s.store.SaveMailingList(list); err != nil {
		return nil, err
	}

	s.log.Info("mailing list requested",
		zap.String("list_id", list.ID),
		zap.String("list", list.Name),
		zap.String("domain", list.DomainName),
	)
	return list, nil
}

// Get 获取邮件列表
func (s *MailingListService) Get(id string) (*domain.MailingList, error) {
	return s.store.GetMailingList(id)
}

// List 列出邮件列表
func (s *MailingListService) List(filter domain.MailingListFilter) ([]*domain.MailingList, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, fmt.Errorf("unknown status %q", *filter.Status)
	}
	return s.store.ListMailingLists(filter)
}

// Update 修改管理员邮箱或密码，仅允许 ok 状态的列表
func (s *MailingListService) Update(id string, input UpdateMailingListInput) (*domain.MailingList, error) {
	if input.AdminEmail == "" && input.Password == "" {
		return nil, ErrNothingToUpdate
	}

	list, err := s.store.GetMailingList(id)
	if err != nil {
		return nil, err
	}
	if list.Status != domain.MailingListStatusOK {
		return nil, fmt.Errorf("%w: update from %s", ErrInvalidTransition, list.Status)
	}

	if input.AdminEmail != "" {
		if err := domain.ValidateEmail(input.AdminEmail); err != nil {
			return nil, err
		}
		list.AdminEmail = input.AdminEmail
	}
	if input.Password != "" {
		if err := domain.ValidatePassword(input.Password); err != nil {
			return nil, err
		}
		sealed, err := s.sealer.Seal(input.Password)
		if err != nil {
			return nil, fmt.Errorf("seal admin password: %w", err)
		}
		list.AdminPassword = sealed
	}

	list.Status = domain.MailingListStatusUpdatePending
	list.LastError = nil
	list.FailedStatus = ""
	if err := s.store.SaveMailingList(list); err != nil {
		return nil, err
	}

	s.log.Info("mailing list update requested", zap.String("list_id", list.ID))
	return list, nil
}

// Enable 请求启用已停用的列表
func (s *MailingListService) Enable(id string) (*domain.MailingList, error) {
	return s.request(id, domain.MailingListStatusEnablePending, domain.MailingListStatusDisabled)
}

// Disable 请求停用列表
func (s *MailingListService) Disable(id string) (*domain.MailingList, error) {
	return s.request(id, domain.MailingListStatusDisablePending, domain.MailingListStatusOK)
}

// Delete 请求删除列表
func (s *MailingListService) Delete(id string) (*domain.MailingList, error) {
	return s.request(id, domain.MailingListStatusDeletePending,
		domain.MailingListStatusOK,
		domain.MailingListStatusDisabled,
		domain.MailingListStatusFailed,
	)
}

// Retry 把失败的列表重新置为失败前的待处理状态
func (s *MailingListService) Retry(id string) (*domain.MailingList, error) {
	list, err := s.store.GetMailingList(id)
	if err != nil {
		return nil, err
	}
	if list.Status != domain.MailingListStatusFailed || !list.FailedStatus.IsPending() {
		return nil, fmt.Errorf("%w: retry from %s", ErrInvalidTransition, list.Status)
	}

	return s.setStatus(list, list.FailedStatus)
}

func (s *MailingListService) request(id string, target domain.MailingListStatus, from ...domain.MailingListStatus) (*domain.MailingList, error) {
	list, err := s.store.GetMailingList(id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, status := range from {
		if list.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, target, list.Status)
	}

	return s.setStatus(list, target)
}

func (s *MailingListService) setStatus(list *domain.MailingList, status domain.MailingListStatus) (*domain.MailingList, error) {
	if err := s.store.UpdateMailingListStatus(list.ID, domain.MailingListStatusUpdate{Status: status}); err != nil {
		return nil, err
	}

	s.log.Info("mailing list status requested",
		zap.String("list_id", list.ID),
		zap.String("from", string(list.Status)),
		zap.String("to", string(status)),
	)

	list.Status = status
	list.LastError = nil
	list.FailedStatus = ""
	return list, nil
}
