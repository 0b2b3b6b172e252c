package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"listsync/backend/internal/config"
	"listsync/backend/internal/domain"
	"listsync/backend/internal/storage"
)

// Store 基于 GORM 的关系型存储实现（PostgreSQL / MySQL）
type Store struct {
	db *gorm.DB
}

// NewStore 根据数据库配置创建存储实例并迁移表结构
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &Store{db: db}

	// 自动迁移数据库表
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewStoreWithDB 使用已建立的 GORM 连接创建存储实例，不执行迁移
func NewStoreWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent), // 静默模式
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.HostedDomain{},
		&domain.MailingList{},
		&domain.DNSRecord{},
	)
}

// ========== Hosted Domain Repository ==========

// SaveHostedDomain 保存托管域名
func (s *Store) SaveHostedDomain(d *domain.HostedDomain) error {
	return s.db.Save(d).Error
}

// GetHostedDomain 根据 ID 获取托管域名
func (s *Store) GetHostedDomain(id uint) (*domain.HostedDomain, error) {
	var hosted domain.HostedDomain
	err := s.db.Where("id = ?", id).First(&hosted).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrHostedDomainNotFound
		}
		return nil, err
	}
	return &hosted, nil
}

// ========== Mailing List Repository ==========

// SaveMailingList 保存邮件列表，ID 为空时视为新建
func (s *Store) SaveMailingList(list *domain.MailingList) error {
	var err error
	if list.ID == "" {
		list.ID = uuid.New().String()
		err = s.db.Create(list).Error
	} else {
		err = s.db.Save(list).Error
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrMailingListExists
	}
	return err
}

// GetMailingList 根据 ID 获取邮件列表
func (s *Store) GetMailingList(id string) (*domain.MailingList, error) {
	var list domain.MailingList
	err := s.db.Where("id = ?", id).First(&list).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMailingListNotFound
		}
		return nil, err
	}
	return &list, nil
}

// GetMailingListByName 根据域名和列表名获取邮件列表
func (s *Store) GetMailingListByName(domainID uint, name string) (*domain.MailingList, error) {
	var list domain.MailingList
	err := s.db.Where("domain_id = ? AND name = ?", domainID, name).First(&list).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMailingListNotFound
		}
		return nil, err
	}
	return &list, nil
}

// ListMailingLists 按条件列出邮件列表
func (s *Store) ListMailingLists(filter domain.MailingListFilter) ([]*domain.MailingList, error) {
	query := s.db.Model(&domain.MailingList{})
	if filter.DomainID != nil {
		query = query.Where("domain_id = ?", *filter.DomainID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}

	var lists []*domain.MailingList
	if err := query.Order("created_at, id").Find(&lists).Error; err != nil {
		return nil, err
	}
	return lists, nil
}

// ListPendingMailingLists 一次性读取全部待处理的邮件列表
func (s *Store) ListPendingMailingLists() ([]*domain.MailingList, error) {
	statuses := make([]string, 0, len(domain.PendingMailingListStatuses))
	for _, status := range domain.PendingMailingListStatuses {
		statuses = append(statuses, string(status))
	}

	var lists []*domain.MailingList
	err := s.db.Where("status IN ?", statuses).Order("created_at, id").Find(&lists).Error
	if err != nil {
		return nil, err
	}
	return lists, nil
}

// UpdateMailingListStatus 写入一次状态变更
func (s *Store) UpdateMailingListStatus(id string, update domain.MailingListStatusUpdate) error {
	result := s.db.Model(&domain.MailingList{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        string(update.Status),
		"last_error":    update.LastError,
		"failed_status": string(update.FailedStatus),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrMailingListNotFound
	}
	return nil
}

// DeleteMailingList 删除邮件列表
func (s *Store) DeleteMailingList(id string) error {
	result := s.db.Where("id = ?", id).Delete(&domain.MailingList{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrMailingListNotFound
	}
	return nil
}

// ========== DNS Record Repository ==========

// ReplaceOwnedDNSRecords 在同一事务内删除属主旧记录、写入新记录并标记区域待重建
func (s *Store) ReplaceOwnedDNSRecords(record *domain.DNSRecord) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("domain_id = ? AND owned_by = ?", record.DomainID, string(record.OwnedBy)).
			Delete(&domain.DNSRecord{}).Error; err != nil {
			return err
		}

		if err := tx.Create(record).Error; err != nil {
			return err
		}

		return markDomainDirty(tx, record.DomainID)
	})
}

// RemoveOwnedDNSRecords 在同一事务内删除属主的全部记录并标记区域待重建，返回被删除的记录
func (s *Store) RemoveOwnedDNSRecords(domainID uint, owner domain.DNSRecordOwner) ([]domain.DNSRecord, error) {
	var removed []domain.DNSRecord

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("domain_id = ? AND owned_by = ?", domainID, string(owner)).
			Find(&removed).Error; err != nil {
			return err
		}

		if len(removed) > 0 {
			if err := tx.Where("domain_id = ? AND owned_by = ?", domainID, string(owner)).
				Delete(&domain.DNSRecord{}).Error; err != nil {
				return err
			}
		}

		return markDomainDirty(tx, domainID)
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// ListDNSRecords 列出域名下的全部记录
func (s *Store) ListDNSRecords(domainID uint) ([]domain.DNSRecord, error) {
	var records []domain.DNSRecord
	if err := s.db.Where("domain_id = ?", domainID).Order("id").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func markDomainDirty(tx *gorm.DB, domainID uint) error {
	result := tx.Model(&domain.HostedDomain{}).Where("id = ?", domainID).Update("dns_dirty", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrHostedDomainNotFound
	}
	return nil
}

// Health 检查数据库连接
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
