package domain

import (
	"fmt"
	"time"
)

// MailingListStatus 邮件列表状态
//
// 待处理状态（*-pending）充当协调循环的工作队列，其余为稳定状态。
type MailingListStatus string

const (
	// MailingListStatusCreatePending 等待创建
	MailingListStatusCreatePending MailingListStatus = "create-pending"
	// MailingListStatusUpdatePending 等待更新管理员信息
	MailingListStatusUpdatePending MailingListStatus = "update-pending"
	// MailingListStatusEnablePending 等待启用
	MailingListStatusEnablePending MailingListStatus = "enable-pending"
	// MailingListStatusDisablePending 等待停用
	MailingListStatusDisablePending MailingListStatus = "disable-pending"
	// MailingListStatusDeletePending 等待删除
	MailingListStatusDeletePending MailingListStatus = "delete-pending"
	// MailingListStatusOK 已生效
	MailingListStatusOK MailingListStatus = "ok"
	// MailingListStatusDisabled 已停用
	MailingListStatusDisabled MailingListStatus = "disabled"
	// MailingListStatusFailed 处理失败，等待人工介入
	MailingListStatusFailed MailingListStatus = "failed"
)

// PendingMailingListStatuses 协调循环拉取的全部待处理状态
var PendingMailingListStatuses = []MailingListStatus{
	MailingListStatusCreatePending,
	MailingListStatusUpdatePending,
	MailingListStatusEnablePending,
	MailingListStatusDisablePending,
	MailingListStatusDeletePending,
}

// IsPending 判断状态是否处于待处理队列中
func (s MailingListStatus) IsPending() bool {
	for _, pending := range PendingMailingListStatuses {
		if s == pending {
			return true
		}
	}
	return false
}

// IsValid 判断状态是否为已定义的枚举值
func (s MailingListStatus) IsValid() bool {
	switch s {
	case MailingListStatusOK, MailingListStatusDisabled, MailingListStatusFailed:
		return true
	}
	return s.IsPending()
}

// ListAddressSuffixes 每个邮件列表需要路由的地址后缀（空串为列表本身）
var ListAddressSuffixes = []string{
	"",
	"-admin",
	"-bounces",
	"-confirm",
	"-join",
	"-leave",
	"-owner",
	"-request",
	"-subscribe",
	"-unsubscribe",
}

// ListHostPrefix 列表公开主机名前缀
const ListHostPrefix = "lists."

// MailingList 托管域名下的邮件列表
type MailingList struct {
	ID            string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	DomainID      uint              `json:"domainId" gorm:"not null;uniqueIndex:idx_mailing_lists_domain_name"`
	DomainName    string            `json:"domainName" gorm:"type:varchar(253);not null"`
	Name          string            `json:"name" gorm:"type:varchar(64);not null;uniqueIndex:idx_mailing_lists_domain_name"`
	AdminEmail    string            `json:"adminEmail" gorm:"type:varchar(254);not null"`
	AdminPassword string            `json:"-" gorm:"type:text;not null"` // 密封后的密文，只写入列表管理器
	Status        MailingListStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	LastError     *string           `json:"lastError,omitempty" gorm:"type:text"`
	FailedStatus  MailingListStatus `json:"failedStatus,omitempty" gorm:"type:varchar(20)"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// TableName 指定表名
func (MailingList) TableName() string {
	return "mailing_lists"
}

// PublicHostname 列表信息站点与 DNS 记录使用的主机名
func (m *MailingList) PublicHostname() string {
	return ListHostPrefix + m.DomainName
}

// Addresses 返回需要写入路由表的全部地址变体
func (m *MailingList) Addresses() []string {
	addresses := make([]string, 0, len(ListAddressSuffixes))
	for _, suffix := range ListAddressSuffixes {
		addresses = append(addresses, fmt.Sprintf("%s%s@%s", m.Name, suffix, m.DomainName))
	}
	return addresses
}

// MailingListStatusUpdate 协调循环对单个实体的一次状态写入
type MailingListStatusUpdate struct {
	Status       MailingListStatus
	LastError    *string
	FailedStatus MailingListStatus
}

// MailingListFilter 列表查询条件
type MailingListFilter struct {
	DomainID *uint
	Status   *MailingListStatus
}
