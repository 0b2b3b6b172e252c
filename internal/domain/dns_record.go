package domain

import "time"

// DNSRecordOwner DNS 记录所有者标识
type DNSRecordOwner string

// DNSRecordOwnerMailingList 由邮件列表子系统创建的记录
const DNSRecordOwnerMailingList DNSRecordOwner = "mailing_list"

// DNSRecord 托管域名下的一条资源记录
//
// OwnedBy 明确记录创建者，删除时只会匹配本子系统拥有的记录。
type DNSRecord struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	DomainID    uint           `json:"domainId" gorm:"not null;index:idx_dns_records_owner"`
	Name        string         `json:"name" gorm:"type:varchar(255);not null"`
	Class       string         `json:"class" gorm:"type:varchar(8);not null;default:'IN'"`
	Type        string         `json:"type" gorm:"type:varchar(16);not null"`
	Data        string         `json:"data" gorm:"type:text;not null"`
	TTL         uint32         `json:"ttl" gorm:"not null;default:3600"`
	OwnedBy     DNSRecordOwner `json:"ownedBy" gorm:"type:varchar(32);not null;index:idx_dns_records_owner"`
	OwnerListID *string        `json:"ownerListId,omitempty" gorm:"type:varchar(36);index"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// TableName 指定表名
func (DNSRecord) TableName() string {
	return "dns_records"
}
