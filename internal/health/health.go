// Package health 提供存活与就绪检查。
package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"listsync/backend/internal/storage"
)

const checkTimeout = 5 * time.Second

// Pinger 可探测连通性的外部依赖（Redis 等）
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Store
	redis  Pinger
	dirs   map[string]string
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
//
// redis 为 nil 时不注册 Redis 检查；dirs 为必须存在的目录（名称 -> 路径），
// 例如列表目录和站点定义目录。
func NewHealthChecker(store storage.Store, redis Pinger, dirs map[string]string, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}

	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		redis:  redis,
		dirs:   dirs,
		logger: logger,
	}

	hc.addChecks()
	return hc
}

// addChecks 添加健康检查
func (hc *HealthChecker) addChecks() {
	hc.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(1000))

	// 数据库连接检查
	hc.health.AddReadinessCheck("database", healthcheck.Timeout(hc.store.Health, checkTimeout))

	// Redis 连接检查（如果启用）
	if hc.redis != nil {
		hc.health.AddReadinessCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
			defer cancel()
			return hc.redis.Ping(ctx)
		})
	}

	for name, path := range hc.dirs {
		hc.health.AddReadinessCheck(name, DirectoryCheck(path))
	}
}

// Handler 返回健康检查处理器
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// CheckHealth 执行一次检查并返回各项结果
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string)

	if err := hc.store.Health(); err != nil {
		results["database"] = fmt.Sprintf("ERROR: %v", err)
		hc.logger.Warn("database health check failed", zap.Error(err))
	} else {
		results["database"] = "OK"
	}

	if hc.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		if err := hc.redis.Ping(ctx); err != nil {
			results["redis"] = fmt.Sprintf("ERROR: %v", err)
		} else {
			results["redis"] = "OK"
		}
	} else {
		results["redis"] = "NOT_AVAILABLE"
	}

	for name, path := range hc.dirs {
		if err := DirectoryCheck(path)(); err != nil {
			results[name] = fmt.Sprintf("ERROR: %v", err)
		} else {
			results[name] = "OK"
		}
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)
	return results
}

// DirectoryCheck 目录必须存在
func DirectoryCheck(path string) healthcheck.Check {
	return func() error {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", path)
		}
		return nil
	}
}
