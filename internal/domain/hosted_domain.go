package domain

import "time"

// HostedDomain 控制面板托管的域名
//
// 域名本身由控制面板维护，本系统只负责在 DNS 记录变更后标记区域需要重建。
type HostedDomain struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(253);uniqueIndex;not null"`
	DNSDirty  bool      `json:"dnsDirty" gorm:"default:false;index"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (HostedDomain) TableName() string {
	return "hosted_domains"
}
