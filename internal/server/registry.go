package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/query-hub/query-hub/internal/cache"
	"github.com/query-hub/query-hub/internal/config"
	"github.com/query-hub/query-hub/internal/query"
	"github.com/query-hub/query-hub/internal/source"
)

// SourceRoute 将数据源配置与装配好的连接器链聚合在一起，
// 供路由层直接复用，避免每个请求重复构造。
type SourceRoute struct {
	// Config 是用户在 config.toml 中声明的 Source 字段副本，避免外部修改。
	Config config.SourceConfig
	// ListenPort 记录当前 CLI 监听端口，方便日志输出。
	ListenPort int
	// CacheTTL 是对当前数据源生效的 TTL，未覆盖时等于全局值。
	CacheTTL time.Duration
	// Connector 是对外暴露的查询入口；启用缓存时即 Cache 本身。
	Connector query.Connector
	// Cache 是缓存装饰器，CacheFormat 为 none 时为 nil。
	Cache *cache.Connector
	// CacheDir 是该数据源的缓存目录，供诊断输出。
	CacheDir string
}

// CacheEnabled 表示该路由是否带缓存装饰。
func (r *SourceRoute) CacheEnabled() bool {
	return r.Cache != nil
}

// SourceRegistry 提供数据源名到 SourceRoute 的查询能力。
type SourceRegistry struct {
	routes  map[string]*SourceRoute
	ordered []*SourceRoute
}

// NewSourceRegistry 根据配置装配全部数据源的连接器链。
// 调用方应在启动阶段创建一次并复用。
func NewSourceRegistry(cfg *config.Config, logger *logrus.Logger) (*SourceRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	env := source.Env{
		Client:         source.NewUpstreamClient(cfg.Global.UpstreamTimeout.DurationValue()),
		MaxRetries:     cfg.Global.MaxRetries,
		InitialBackoff: cfg.Global.InitialBackoff.DurationValue(),
	}

	registry := &SourceRegistry{
		routes: make(map[string]*SourceRoute, len(cfg.Sources)),
	}

	for _, src := range cfg.Sources {
		normalizedName := normalizeName(src.Name)
		if normalizedName == "" {
			return nil, fmt.Errorf("invalid name for source %s", src.Name)
		}
		if _, exists := registry.routes[normalizedName]; exists {
			return nil, fmt.Errorf("duplicate source mapping detected for %s", normalizedName)
		}

		route, err := buildSourceRoute(cfg, src, env, logger)
		if err != nil {
			return nil, err
		}

		registry.routes[normalizedName] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// Lookup 根据数据源名查找 SourceRoute。
func (r *SourceRegistry) Lookup(name string) (*SourceRoute, bool) {
	if r == nil {
		return nil, false
	}

	normalized := normalizeName(name)
	if normalized == "" {
		return nil, false
	}

	route, ok := r.routes[normalized]
	return route, ok
}

// List 返回当前注册的 SourceRoute 列表（按配置定义的顺序），供诊断输出。
func (r *SourceRegistry) List() []SourceRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}

	result := make([]SourceRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}

func buildSourceRoute(cfg *config.Config, src config.SourceConfig, env source.Env, logger *logrus.Logger) (*SourceRoute, error) {
	base, err := source.New(src, env)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}

	route := &SourceRoute{
		Config:     src,
		ListenPort: cfg.Global.ListenPort,
		CacheTTL:   cfg.EffectiveCacheTTL(src),
		Connector:  base,
	}
	if !src.CacheEnabled() {
		return route, nil
	}

	storage, err := cache.NewPresetStorage(src.CacheFormat, cache.FileStorageOptions{
		Root:      cfg.Global.StoragePath,
		Namespace: src.Namespace,
		TTL:       route.CacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}

	cached, err := cache.New(base, storage, logger)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}

	route.Connector = cached
	route.Cache = cached
	route.CacheDir = storage.Dir()
	return route, nil
}

func normalizeName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
