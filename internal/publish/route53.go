package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
	"go.uber.org/zap"

	"listsync/backend/internal/domain"
)

// Route53API Route53 客户端中用到的方法
type Route53API interface {
	ChangeResourceRecordSets(ctx context.Context, params *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

// DNSPublisher DNS 记录发布接口
type DNSPublisher interface {
	Publish(ctx context.Context, list *domain.MailingList) (*domain.DNSRecord, error)
	Unpublish(ctx context.Context, list *domain.MailingList) ([]domain.DNSRecord, error)
}

// RecordSource 数据库侧的发布器，同时能给出列表应有的记录
type RecordSource interface {
	DNSPublisher
	Record(list *domain.MailingList) (*domain.DNSRecord, error)
}

// NewRoute53Client 使用默认凭证链创建 Route53 客户端
func NewRoute53Client(ctx context.Context, region string) (*route53.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return route53.NewFromConfig(awsCfg), nil
}

// Route53Mirror 在数据库变更之后把同样的记录同步到 Route53 托管区域
type Route53Mirror struct {
	next   RecordSource
	client Route53API
	zoneID string
	log    *zap.Logger
}

// NewRoute53Mirror 包装一个 DNS 发布器
func NewRoute53Mirror(next RecordSource, client Route53API, zoneID string, log *zap.Logger) *Route53Mirror {
	if log == nil {
		log = zap.NewNop()
	}
	return &Route53Mirror{next: next, client: client, zoneID: zoneID, log: log}
}

// Publish 写入数据库后 UPSERT 到 Route53
func (m *Route53Mirror) Publish(ctx context.Context, list *domain.MailingList) (*domain.DNSRecord, error) {
	record, err := m.next.Publish(ctx, list)
	if err != nil {
		return nil, err
	}

	if err := m.change(ctx, r53types.ChangeActionUpsert, []domain.DNSRecord{*record}); err != nil {
		return nil, err
	}
	return record, nil
}

// Unpublish 从数据库删除后在 Route53 中删除同样的记录，记录已不存在视为成功
//
// 数据库中已没有记录时（上一次 Route53 删除失败后重试），按当前配置构造的记录删除。
func (m *Route53Mirror) Unpublish(ctx context.Context, list *domain.MailingList) ([]domain.DNSRecord, error) {
	removed, err := m.next.Unpublish(ctx, list)
	if err != nil {
		return nil, err
	}

	targets := removed
	if len(targets) == 0 {
		expected, err := m.next.Record(list)
		if err != nil {
			return nil, err
		}
		targets = []domain.DNSRecord{*expected}
	}

	err = m.change(ctx, r53types.ChangeActionDelete, targets)
	if err != nil && !isRecordNotFound(err) {
		return nil, err
	}
	return removed, nil
}

func (m *Route53Mirror) change(ctx context.Context, action r53types.ChangeAction, records []domain.DNSRecord) error {
	changes := make([]r53types.Change, 0, len(records))
	for _, record := range records {
		changes = append(changes, r53types.Change{
			Action: action,
			ResourceRecordSet: &r53types.ResourceRecordSet{
				Name: aws.String(record.Name),
				Type: r53types.RRType(record.Type),
				TTL:  aws.Int64(int64(record.TTL)),
				ResourceRecords: []r53types.ResourceRecord{
					{Value: aws.String(record.Data)},
				},
			},
		})
	}

	_, err := m.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(m.zoneID),
		ChangeBatch: &r53types.ChangeBatch{
			Changes: changes,
			Comment: aws.String("listsync mailing list records"),
		},
	})
	if err != nil {
		return fmt.Errorf("route53 %s: %w", action, err)
	}

	m.log.Info("route53 records changed", zap.String("action", string(action)), zap.Int("count", len(changes)))
	return nil
}

func isRecordNotFound(err error) bool {
	var invalid *r53types.InvalidChangeBatch
	if !errors.As(err, &invalid) {
		return false
	}
	if strings.Contains(invalid.ErrorMessage(), "not found") {
		return true
	}
	for _, message := range invalid.Messages {
		if strings.Contains(message, "not found") {
			return true
		}
	}
	return false
}
