package domain

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrEmailTooLong       = errors.New("email address too long")
	ErrInvalidDomain      = errors.New("invalid domain format")
	ErrDomainTooLong      = errors.New("domain too long (max 253 chars)")
	ErrInvalidListName    = errors.New("invalid mailing list name")
	ErrListNameTooLong    = errors.New("mailing list name too long (max 64 chars)")
	ErrListNameReserved   = errors.New("mailing list name ends with a reserved suffix")
	ErrPasswordTooShort   = errors.New("password too short (min 8 chars)")
	ErrPasswordTooLong    = errors.New("password too long (max 128 chars)")
	ErrPasswordWhitespace = errors.New("password must not contain whitespace")
)

// 验证常量
const (
	MaxEmailLength    = 254
	MaxDomainLength   = 253
	MaxListNameLength = 64
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var (
	// 列表名：小写字母数字开头，允许 . _ -
	listNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

	// 邮箱本地部分
	localPartRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._+-]*$`)

	// 域名验证（支持子域名）
	domainRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?(\.[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?)+$`)
)

// ValidateListName 验证邮件列表名称
//
// 列表名会拼接成路由地址，所以不能以保留的地址后缀结尾，
// 否则会与其他列表的地址变体冲突。
func ValidateListName(name string) error {
	if name == "" || !listNameRegex.MatchString(name) {
		return ErrInvalidListName
	}
	if len(name) > MaxListNameLength {
		return ErrListNameTooLong
	}
	for _, suffix := range ListAddressSuffixes {
		if suffix != "" && strings.HasSuffix(name, suffix) {
			return ErrListNameReserved
		}
	}
	return nil
}

// ValidateEmail 验证管理员邮箱
func ValidateEmail(email string) error {
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return ErrInvalidEmail
	}
	if !localPartRegex.MatchString(email[:at]) {
		return ErrInvalidEmail
	}
	if err := ValidateDomainName(email[at+1:]); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateDomainName 验证域名
func ValidateDomainName(domain string) error {
	if domain == "" {
		return ErrInvalidDomain
	}
	if len(domain) > MaxDomainLength {
		return ErrDomainTooLong
	}
	if !domainRegex.MatchString(domain) {
		return ErrInvalidDomain
	}
	for _, label := range strings.Split(domain, ".") {
		if len(label) > 63 {
			return ErrInvalidDomain
		}
	}
	return nil
}

// ValidatePassword 验证管理员密码
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	if strings.ContainsAny(password, " \t\r\n") {
		return ErrPasswordWhitespace
	}
	return nil
}
