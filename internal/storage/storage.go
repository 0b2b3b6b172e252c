package storage

import (
	"errors"

	"listsync/backend/internal/domain"
)

var (
	// ErrMailingListNotFound 邮件列表未找到错误
	ErrMailingListNotFound = errors.New("mailing list not found")
	// ErrMailingListExists 同一域名下列表名已存在
	ErrMailingListExists = errors.New("mailing list already exists")
	// ErrHostedDomainNotFound 托管域名未找到错误
	ErrHostedDomainNotFound = errors.New("hosted domain not found")
)

// Store 定义完整的存储接口。
type Store = domain.Store
