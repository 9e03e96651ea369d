package source

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/query-hub/query-hub/internal/config"
	"github.com/query-hub/query-hub/internal/query"
)

// Env 汇集构造连接器所需的共享运行时资源，由进程启动时装配。
type Env struct {
	Client         *http.Client
	MaxRetries     int
	InitialBackoff time.Duration
}

// Factory 按数据源配置构造连接器实例。
type Factory func(cfg config.SourceConfig, env Env) (query.Connector, error)

// ErrUnknownSource 表示配置引用了未注册的数据源类型。
var ErrUnknownSource = errors.New("unknown source type")

var globalRegistry = newRegistry()

type registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func newRegistry() *registry {
	return &registry{factories: make(map[string]Factory)}
}

// Register 将连接器工厂加入全局注册表，重复键会返回错误。
func Register(key string, factory Factory) error {
	return globalRegistry.register(key, factory)
}

// MustRegister 在注册失败时 panic，适合 init() 中调用。
func MustRegister(key string, factory Factory) {
	if err := Register(key, factory); err != nil {
		panic(err)
	}
}

// Resolve 返回指定类型键的连接器工厂。
func Resolve(key string) (Factory, bool) {
	return globalRegistry.resolve(key)
}

// Keys 返回所有已注册类型的键值，供调试或诊断使用。
func Keys() []string {
	return globalRegistry.keys()
}

// New 按配置中的 Type 构造连接器。
func New(cfg config.SourceConfig, env Env) (query.Connector, error) {
	factory, ok := Resolve(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, cfg.Type)
	}
	return factory(cfg, env)
}

func (r *registry) normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(key string, factory Factory) error {
	normalized := r.normalizeKey(key)
	if normalized == "" {
		return fmt.Errorf("source type key is required")
	}
	if factory == nil {
		return fmt.Errorf("source type %s: factory is required", normalized)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[normalized]; exists {
		return fmt.Errorf("source type %s already registered", normalized)
	}
	r.factories[normalized] = factory
	return nil
}

func (r *registry) resolve(key string) (Factory, bool) {
	if key == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[r.normalizeKey(key)]
	return factory, ok
}

func (r *registry) keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.factories))
	for key := range r.factories {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
