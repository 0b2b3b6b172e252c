package domain

// Store 聚合所有存储接口
type Store interface {
	// ========== Hosted Domain Repository ==========
	SaveHostedDomain(domain *HostedDomain) error
	GetHostedDomain(id uint) (*HostedDomain, error)

	// ========== Mailing List Repository ==========
	SaveMailingList(list *MailingList) error
	GetMailingList(id string) (*MailingList, error)
	GetMailingListByName(domainID uint, name string) (*MailingList, error)
	ListMailingLists(filter MailingListFilter) ([]*MailingList, error)
	ListPendingMailingLists() ([]*MailingList, error)
	UpdateMailingListStatus(id string, update MailingListStatusUpdate) error
	DeleteMailingList(id string) error

	// ========== DNS Record Repository ==========
	ReplaceOwnedDNSRecords(record *DNSRecord) error
	RemoveOwnedDNSRecords(domainID uint, owner DNSRecordOwner) ([]DNSRecord, error)
	ListDNSRecords(domainID uint) ([]DNSRecord, error)

	Health() error
	Close() error
}
