package memory

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"listsync/backend/internal/domain"
	"listsync/backend/internal/storage"
)

// Store 使用内存保存托管域名、邮件列表与 DNS 记录，主要用于开发验证和测试。
type Store struct {
	mu sync.RWMutex

	domains      map[uint]*domain.HostedDomain
	nextDomainID uint

	lists     map[string]*domain.MailingList // listID -> list
	byName    map[string]string              // "domainID/name" -> listID
	listOrder []string                       // 插入顺序，决定待处理列表的读取顺序

	records      []domain.DNSRecord
	nextRecordID uint
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		domains:      make(map[uint]*domain.HostedDomain),
		nextDomainID: 1,
		lists:        make(map[string]*domain.MailingList),
		byName:       make(map[string]string),
		nextRecordID: 1,
	}
}

// ========== Hosted Domain Repository ==========

// SaveHostedDomain 保存托管域名，ID 为零时自动分配。
func (s *Store) SaveHostedDomain(d *domain.HostedDomain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == 0 {
		d.ID = s.nextDomainID
	}
	if d.ID >= s.nextDomainID {
		s.nextDomainID = d.ID + 1
	}
	d.UpdatedAt = time.Now().UTC()

	clone := *d
	s.domains[d.ID] = &clone
	return nil
}

// GetHostedDomain 根据 ID 获取托管域名。
func (s *Store) GetHostedDomain(id uint) (*domain.HostedDomain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.domains[id]
	if !ok {
		return nil, storage.ErrHostedDomainNotFound
	}
	clone := *d
	return &clone, nil
}

// ========== Mailing List Repository ==========

// SaveMailingList 保存邮件列表，同一域名下的列表名必须唯一。
func (s *Store) SaveMailingList(list *domain.MailingList) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if list.ID == "" {
		list.ID = uuid.New().String()
	}

	key := nameKey(list.DomainID, list.Name)
	if existingID, ok := s.byName[key]; ok && existingID != list.ID {
		return storage.ErrMailingListExists
	}

	now := time.Now().UTC()
	if list.CreatedAt.IsZero() {
		list.CreatedAt = now
	}
	list.UpdatedAt = now

	if previous, ok := s.lists[list.ID]; ok {
		delete(s.byName, nameKey(previous.DomainID, previous.Name))
	} else {
		s.listOrder = append(s.listOrder, list.ID)
	}

	s.lists[list.ID] = cloneList(list)
	s.byName[key] = list.ID
	return nil
}

// GetMailingList 根据 ID 获取邮件列表。
func (s *Store) GetMailingList(id string) (*domain.MailingList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.lists[id]
	if !ok {
		return nil, storage.ErrMailingListNotFound
	}
	return cloneList(list), nil
}

// GetMailingListByName 根据域名和列表名获取邮件列表。
func (s *Store) GetMailingListByName(domainID uint, name string) (*domain.MailingList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[nameKey(domainID, name)]
	if !ok {
		return nil, storage.ErrMailingListNotFound
	}
	return cloneList(s.lists[id]), nil
}

// ListMailingLists 按条件列出邮件列表，结果按创建顺序排列。
func (s *Store) ListMailingLists(filter domain.MailingListFilter) ([]*domain.MailingList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.MailingList, 0)
	for _, id := range s.listOrder {
		list := s.lists[id]
		if filter.DomainID != nil && list.DomainID != *filter.DomainID {
			continue
		}
		if filter.Status != nil && list.Status != *filter.Status {
			continue
		}
		result = append(result, cloneList(list))
	}
	return result, nil
}

// ListPendingMailingLists 一次性读取全部待处理的邮件列表。
func (s *Store) ListPendingMailingLists() ([]*domain.MailingList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.MailingList, 0)
	for _, id := range s.listOrder {
		list := s.lists[id]
		if list.Status.IsPending() {
			result = append(result, cloneList(list))
		}
	}
	return result, nil
}

// UpdateMailingListStatus 写入一次状态变更。
func (s *Store) UpdateMailingListStatus(id string, update domain.MailingListStatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.lists[id]
	if !ok {
		return storage.ErrMailingListNotFound
	}

	list.Status = update.Status
	list.LastError = copyString(update.LastError)
	list.FailedStatus = update.FailedStatus
	list.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteMailingList 删除邮件列表。
func (s *Store) DeleteMailingList(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.lists[id]
	if !ok {
		return storage.ErrMailingListNotFound
	}

	delete(s.byName, nameKey(list.DomainID, list.Name))
	delete(s.lists, id)
	for i, existing := range s.listOrder {
		if existing == id {
			s.listOrder = append(s.listOrder[:i], s.listOrder[i+1:]...)
			break
		}
	}
	return nil
}

// ========== DNS Record Repository ==========

// ReplaceOwnedDNSRecords 删除同一属主在该域名下的记录后写入新记录，并标记域名区域待重建。
func (s *Store) ReplaceOwnedDNSRecords(record *domain.DNSRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hosted, ok := s.domains[record.DomainID]
	if !ok {
		return storage.ErrHostedDomainNotFound
	}

	s.removeOwnedLocked(record.DomainID, record.OwnedBy)

	record.ID = s.nextRecordID
	s.nextRecordID++
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	stored := *record
	stored.OwnerListID = copyString(record.OwnerListID)
	s.records = append(s.records, stored)

	hosted.DNSDirty = true
	hosted.UpdatedAt = time.Now().UTC()
	return nil
}

// RemoveOwnedDNSRecords 删除同一属主在该域名下的全部记录，返回被删除的记录。
func (s *Store) RemoveOwnedDNSRecords(domainID uint, owner domain.DNSRecordOwner) ([]domain.DNSRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hosted, ok := s.domains[domainID]
	if !ok {
		return nil, storage.ErrHostedDomainNotFound
	}

	removed := s.removeOwnedLocked(domainID, owner)
	hosted.DNSDirty = true
	hosted.UpdatedAt = time.Now().UTC()
	return removed, nil
}

// ListDNSRecords 列出域名下的全部记录。
func (s *Store) ListDNSRecords(domainID uint) ([]domain.DNSRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DNSRecord, 0)
	for _, record := range s.records {
		if record.DomainID == domainID {
			result = append(result, record)
		}
	}
	return result, nil
}

func (s *Store) removeOwnedLocked(domainID uint, owner domain.DNSRecordOwner) []domain.DNSRecord {
	kept := s.records[:0]
	var removed []domain.DNSRecord
	for _, record := range s.records {
		if record.DomainID == domainID && record.OwnedBy == owner {
			removed = append(removed, record)
			continue
		}
		kept = append(kept, record)
	}
	s.records = kept
	return removed
}

// Health 内存存储始终可用。
func (s *Store) Health() error {
	return nil
}

// Close 内存存储无需释放资源。
func (s *Store) Close() error {
	return nil
}

func nameKey(domainID uint, name string) string {
	return strconv.FormatUint(uint64(domainID), 10) + "/" + name
}

func cloneList(list *domain.MailingList) *domain.MailingList {
	clone := *list
	clone.LastError = copyString(list.LastError)
	return &clone
}

func copyString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
