package config

import (
	"encoding/base64"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务与本机网络参数
type ServerConfig struct {
	Host     string // 监听地址，默认 "0.0.0.0"
	Port     int    // 监听端口，默认 8080
	IP       string // 服务器 IP，虚拟主机监听该地址
	PublicIP string // 公网 IP，DNS 记录优先使用；留空则使用 IP
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到控制台
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// JWTConfig 定义 API 认证配置
type JWTConfig struct {
	Secret string        // JWT 签名密钥，留空时 API 服务拒绝启动
	Issuer string        // JWT 签发者标识，默认 "listsync"
	TTL    time.Duration // 签发令牌的有效期，默认 24 小时
}

// SecretConfig 定义敏感字段加密配置
type SecretConfig struct {
	Key []byte // 32 字节密钥，用于密封列表管理员密码
}

// MailmanConfig 定义列表管理器（Mailman）配置
type MailmanConfig struct {
	BinDir         string        // 命令目录，默认 /usr/lib/mailman/bin
	ListsDir       string        // 启用中的列表目录
	DisabledDir    string        // 停用列表目录
	CommandTimeout time.Duration // 单条命令超时，默认 2 分钟
}

// PostfixConfig 定义邮件传输表配置
type PostfixConfig struct {
	TransportMap    string // transport 映射文件
	MailboxesMap    string // mailboxes 映射文件
	TransportTarget string // 列表地址的投递目标，默认 "mailman:"
	DiscardTarget   string // mailboxes 表中的丢弃目标，默认 "/dev/null"
	PostmapBin      string // 重建映射的命令，默认 "postmap"
	Service         string // 服务名，默认 "postfix"
}

// WebConfig 定义 Web 前端（Apache）配置
type WebConfig struct {
	SitesDir         string // 站点定义目录
	TemplateFile     string // 自定义虚拟主机模板，留空使用内置模板
	EnsiteBin        string // 启用站点命令
	DissiteBin       string // 停用站点命令
	Service          string // 服务名，默认 "apache2"
	SystemUserPrefix string // 系统用户前缀，默认 "vu"
	SystemUserMinUID int    // 系统用户起始 UID，默认 2000
}

// DNSConfig 定义 DNS 记录发布配置
type DNSConfig struct {
	TTL         uint32 // 记录 TTL，默认 3600
	Provider    string // "database" 或 "route53"
	Route53Zone string // Route53 托管区域 ID
	AWSRegion   string // AWS 区域
}

// ActionsConfig 定义重建/重启信号的存放与执行配置
type ActionsConfig struct {
	Backend        string // "memory" 或 "redis"
	RedisKey       string // Redis 集合键名
	Apply          bool   // 协调结束后是否立即执行
	ServiceManager string // 服务管理命令，默认 "systemctl"
}

// MetricsConfig 定义监控配置
type MetricsConfig struct {
	PushgatewayURL string // 单次运行时推送指标的地址，留空不推送
}

// APIConfig 定义 API 行为配置
type APIConfig struct {
	ReconcileInterval time.Duration // 两次手动触发协调的最小间隔
	AllowedOrigins    []string      // CORS 允许的来源
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Secret   SecretConfig
	Mailman  MailmanConfig
	Postfix  PostfixConfig
	Web      WebConfig
	DNS      DNSConfig
	Actions  ActionsConfig
	Metrics  MetricsConfig
	API      APIConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: LISTSYNC_，例如 LISTSYNC_SERVER_IP, LISTSYNC_SECRET_KEY
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("listsync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	connMaxLifetime, err := time.ParseDuration(v.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	commandTimeout, err := time.ParseDuration(v.GetString("mailman.command_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid mailman.command_timeout: %w", err)
	}

	reconcileInterval, err := time.ParseDuration(v.GetString("api.reconcile_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid api.reconcile_interval: %w", err)
	}

	serverIP := strings.TrimSpace(v.GetString("server.ip"))
	if _, err := netip.ParseAddr(serverIP); err != nil {
		return nil, fmt.Errorf("invalid server.ip %q: %w", serverIP, err)
	}

	publicIP := strings.TrimSpace(v.GetString("server.public_ip"))
	if publicIP != "" {
		if _, err := netip.ParseAddr(publicIP); err != nil {
			return nil, fmt.Errorf("invalid server.public_ip %q: %w", publicIP, err)
		}
	}

	secretKey, err := decodeSecretKey(v.GetString("secret.key"))
	if err != nil {
		return nil, err
	}

	tokenTTL, err := time.ParseDuration(v.GetString("jwt.ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid jwt.ttl: %w", err)
	}

	jwtSecret := v.GetString("jwt.secret")
	if jwtSecret != "" && len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	dbType := strings.ToLower(v.GetString("database.type"))
	if dbType != "" && dbType != "mysql" && dbType != "postgres" {
		return nil, fmt.Errorf("unsupported database.type %q (supported: mysql, postgres)", dbType)
	}

	provider := strings.ToLower(v.GetString("dns.provider"))
	if provider != "database" && provider != "route53" {
		return nil, fmt.Errorf("unsupported dns.provider %q (supported: database, route53)", provider)
	}
	if provider == "route53" && v.GetString("dns.route53_zone") == "" {
		return nil, fmt.Errorf("dns.route53_zone is required when dns.provider is route53")
	}

	backend := strings.ToLower(v.GetString("actions.backend"))
	if backend != "memory" && backend != "redis" {
		return nil, fmt.Errorf("unsupported actions.backend %q (supported: memory, redis)", backend)
	}

	origins := parseList(v.GetString("api.allowed_origins"))
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:     v.GetString("server.host"),
			Port:     v.GetInt("server.port"),
			IP:       serverIP,
			PublicIP: publicIP,
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
		},
		Database: DatabaseConfig{
			Type:            dbType,
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: jwtSecret,
			Issuer: v.GetString("jwt.issuer"),
			TTL:    tokenTTL,
		},
		Secret: SecretConfig{
			Key: secretKey,
		},
		Mailman: MailmanConfig{
			BinDir:         v.GetString("mailman.bin_dir"),
			ListsDir:       v.GetString("mailman.lists_dir"),
			DisabledDir:    v.GetString("mailman.disabled_dir"),
			CommandTimeout: commandTimeout,
		},
		Postfix: PostfixConfig{
			TransportMap:    v.GetString("postfix.transport_map"),
			MailboxesMap:    v.GetString("postfix.mailboxes_map"),
			TransportTarget: v.GetString("postfix.transport_target"),
			DiscardTarget:   v.GetString("postfix.discard_target"),
			PostmapBin:      v.GetString("postfix.postmap_bin"),
			Service:         v.GetString("postfix.service"),
		},
		Web: WebConfig{
			SitesDir:         v.GetString("web.sites_dir"),
			TemplateFile:     v.GetString("web.template_file"),
			EnsiteBin:        v.GetString("web.ensite_bin"),
			DissiteBin:       v.GetString("web.dissite_bin"),
			Service:          v.GetString("web.service"),
			SystemUserPrefix: v.GetString("web.system_user_prefix"),
			SystemUserMinUID: v.GetInt("web.system_user_min_uid"),
		},
		DNS: DNSConfig{
			TTL:         v.GetUint32("dns.ttl"),
			Provider:    provider,
			Route53Zone: v.GetString("dns.route53_zone"),
			AWSRegion:   v.GetString("dns.aws_region"),
		},
		Actions: ActionsConfig{
			Backend:        backend,
			RedisKey:       v.GetString("actions.redis_key"),
			Apply:          v.GetBool("actions.apply"),
			ServiceManager: v.GetString("actions.service_manager"),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: v.GetString("metrics.pushgateway_url"),
		},
		API: APIConfig{
			ReconcileInterval: reconcileInterval,
			AllowedOrigins:    origins,
		},
	}

	return cfg, nil
}

// PublishIP 返回 DNS 记录应指向的地址
//
// 配置了合法的公网地址时优先使用，否则回退到服务器地址。
func (c *Config) PublishIP() string {
	if c.Server.PublicIP != "" {
		if addr, err := netip.ParseAddr(c.Server.PublicIP); err == nil && isPublic(addr) {
			return addr.String()
		}
	}
	return c.Server.IP
}

func isPublic(addr netip.Addr) bool {
	return addr.IsGlobalUnicast() && !addr.IsPrivate() && !addr.IsLoopback()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.ip", "127.0.0.1")
	v.SetDefault("server.public_ip", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("database.type", "") // 默认为空，使用内存存储
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "listsync")
	v.SetDefault("jwt.ttl", "24h")
	v.SetDefault("secret.key", "")
	v.SetDefault("mailman.bin_dir", "/usr/lib/mailman/bin")
	v.SetDefault("mailman.lists_dir", "/var/lib/mailman/lists")
	v.SetDefault("mailman.disabled_dir", "/var/lib/mailman/lists.disabled")
	v.SetDefault("mailman.command_timeout", "2m")
	v.SetDefault("postfix.transport_map", "/etc/postfix/transport")
	v.SetDefault("postfix.mailboxes_map", "/etc/postfix/mailboxes")
	v.SetDefault("postfix.transport_target", "mailman:")
	v.SetDefault("postfix.discard_target", "/dev/null")
	v.SetDefault("postfix.postmap_bin", "postmap")
	v.SetDefault("postfix.service", "postfix")
	v.SetDefault("web.sites_dir", "/etc/apache2/sites-available")
	v.SetDefault("web.template_file", "")
	v.SetDefault("web.ensite_bin", "a2ensite")
	v.SetDefault("web.dissite_bin", "a2dissite")
	v.SetDefault("web.service", "apache2")
	v.SetDefault("web.system_user_prefix", "vu")
	v.SetDefault("web.system_user_min_uid", 2000)
	v.SetDefault("dns.ttl", 3600)
	v.SetDefault("dns.provider", "database")
	v.SetDefault("dns.route53_zone", "")
	v.SetDefault("dns.aws_region", "us-east-1")
	v.SetDefault("actions.backend", "memory")
	v.SetDefault("actions.redis_key", "listsync:actions")
	v.SetDefault("actions.apply", true)
	v.SetDefault("actions.service_manager", "systemctl")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("api.reconcile_interval", "5s")
	v.SetDefault("api.allowed_origins", "*")
}

// decodeSecretKey 解析 base64 编码的 32 字节密钥
func decodeSecretKey(value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("SECURITY ERROR: secret key is required. Please set LISTSYNC_SECRET_KEY (base64, 32 bytes)")
	}
	key, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid secret.key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid secret.key: expected 32 bytes, got %d", len(key))
	}
	return key, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 文件不存在时静默跳过；已存在的环境变量优先级更高。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
