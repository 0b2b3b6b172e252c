package publish

import (
	"context"
	"fmt"
	"net"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"listsync/backend/internal/config"
	"listsync/backend/internal/domain"
)

// RecordStore DNS 记录的持久化接口
type RecordStore interface {
	ReplaceOwnedDNSRecords(record *domain.DNSRecord) error
	RemoveOwnedDNSRecords(domainID uint, owner domain.DNSRecordOwner) ([]domain.DNSRecord, error)
}

// RecordPublisher 将列表主机名发布为本子系统拥有的 DNS 记录
type RecordPublisher struct {
	store RecordStore
	ip    string
	ttl   uint32
	log   *zap.Logger
}

// NewRecordPublisher 创建 DNS 记录发布器，记录指向 cfg.PublishIP()
func NewRecordPublisher(cfg *config.Config, store RecordStore, log *zap.Logger) *RecordPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &RecordPublisher{
		store: store,
		ip:    cfg.PublishIP(),
		ttl:   cfg.DNS.TTL,
		log:   log,
	}
}

// BuildRecord 为列表构造地址记录；IPv4 生成 A 记录，IPv6 生成 AAAA 记录
func BuildRecord(list *domain.MailingList, ip string, ttl uint32) (*domain.DNSRecord, error) {
	name := dns.Fqdn(list.PublicHostname())
	if _, ok := dns.IsDomainName(name); !ok {
		return nil, fmt.Errorf("invalid record name %q", name)
	}

	addr := net.ParseIP(ip)
	if addr == nil {
		return nil, fmt.Errorf("invalid record address %q", ip)
	}

	header := dns.RR_Header{Name: name, Class: dns.ClassINET, Ttl: ttl}
	var rr dns.RR
	if v4 := addr.To4(); v4 != nil {
		header.Rrtype = dns.TypeA
		rr = &dns.A{Hdr: header, A: v4}
	} else {
		header.Rrtype = dns.TypeAAAA
		rr = &dns.AAAA{Hdr: header, AAAA: addr}
	}

	listID := list.ID
	return &domain.DNSRecord{
		DomainID:    list.DomainID,
		Name:        rr.Header().Name,
		Class:       dns.ClassToString[rr.Header().Class],
		Type:        dns.TypeToString[rr.Header().Rrtype],
		Data:        addr.String(),
		TTL:         rr.Header().Ttl,
		OwnedBy:     domain.DNSRecordOwnerMailingList,
		OwnerListID: &listID,
	}, nil
}

// Record 列表当前配置下应发布的记录
func (p *RecordPublisher) Record(list *domain.MailingList) (*domain.DNSRecord, error) {
	return BuildRecord(list, p.ip, p.ttl)
}

// Publish 替换该域名下本子系统的记录并标记区域待重建
func (p *RecordPublisher) Publish(_ context.Context, list *domain.MailingList) (*domain.DNSRecord, error) {
	record, err := p.Record(list)
	if err != nil {
		return nil, err
	}

	if err := p.store.ReplaceOwnedDNSRecords(record); err != nil {
		return nil, fmt.Errorf("publish dns record %s: %w", record.Name, err)
	}

	p.log.Info("dns record published",
		zap.String("name", record.Name),
		zap.String("type", record.Type),
		zap.String("data", record.Data),
	)
	return record, nil
}

// Unpublish 删除该域名下本子系统的全部记录并标记区域待重建
func (p *RecordPublisher) Unpublish(_ context.Context, list *domain.MailingList) ([]domain.DNSRecord, error) {
	removed, err := p.store.RemoveOwnedDNSRecords(list.DomainID, domain.DNSRecordOwnerMailingList)
	if err != nil {
		return nil, fmt.Errorf("remove dns records for %s: %w", list.DomainName, err)
	}

	p.log.Info("dns records removed", zap.String("domain", list.DomainName), zap.Int("count", len(removed)))
	return removed, nil
}
