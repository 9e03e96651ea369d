package cache

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/query-hub/query-hub/internal/query"
)

// CachableFunc 决定某个成功的读结果是否值得落盘，
// 是排除空结果、错误占位等响应的唯一扩展点。
type CachableFunc func(q query.Query, entries query.Entries) bool

// Option 调整编排器的可选行为。
type Option func(*Connector)

// WithCachable 覆盖默认的"缓存所有读结果"策略。
func WithCachable(fn CachableFunc) Option {
	return func(c *Connector) {
		if fn != nil {
			c.cachable = fn
		}
	}
}

// Connector 是透明的读穿/写穿缓存装饰器：查询先询问存储，未命中或
// 读取失败时委托给被包装的 child，成功的读结果随后机会性落盘。
// 存储层的任何故障只会让系统退化为"总是询问 child、从不持久化"，
// 绝不会让调用方的请求出错。
type Connector struct {
	child    query.Connector
	storage  Storage
	logger   *logrus.Logger
	cachable CachableFunc
}

var _ query.Connector = (*Connector)(nil)

// New 构造缓存装饰器，child 与 storage 均为必填。
func New(child query.Connector, storage Storage, logger *logrus.Logger, opts ...Option) (*Connector, error) {
	if child == nil {
		return nil, errors.New("child connector required")
	}
	if storage == nil {
		return nil, errors.New("storage required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Connector{
		child:   child,
		storage: storage,
		logger:  logger,
		cachable: func(query.Query, query.Entries) bool {
			return true
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Query 按"命中读取 → 未命中委托 → 读结果落盘"的顺序处理查询。
// child 返回的错误原样上抛，缓存从不掩盖连接器自身的失败。
func (c *Connector) Query(ctx context.Context, q query.Query) (query.Entries, error) {
	entries, hit := c.read(q)
	if !hit {
		var err error
		entries, err = c.child.Query(ctx, q)
		if err != nil {
			return nil, err
		}
	}

	if q.Action == query.ActionRead && c.cachable(q, entries) {
		c.write(q, entries)
	}
	return entries, nil
}

// read 是存储读取的 fail-soft 边界：任何失败都折叠为未命中。
func (c *Connector) read(q query.Query) (query.Entries, bool) {
	if !c.storage.IsCached(q) {
		return nil, false
	}

	entries, err := c.storage.Read(q)
	if err != nil {
		if !errors.Is(err, ErrNotCached) {
			c.logger.WithError(err).WithField("query", q.Key()).Warn("cache_read_failed")
		}
		return nil, false
	}

	c.logger.WithField("query", q.Key()).Debug("cache_hit")
	return entries, true
}

// write 是存储写入的 fail-soft 边界：失败只记录，调用方结果不受影响。
func (c *Connector) write(q query.Query, entries query.Entries) {
	if err := c.storage.Write(q, entries); err != nil {
		c.logger.WithError(err).WithField("query", q.Key()).Warn("cache_write_failed")
	}
}

// ClearQuery 删除单个查询的缓存条目；存储未提供失效能力时为 no-op。
func (c *Connector) ClearQuery(q query.Query) error {
	if inv, ok := c.storage.(Invalidator); ok {
		return inv.ClearQuery(q)
	}
	return nil
}

// ClearAll 清空当前存储管理的全部缓存；存储未提供失效能力时为 no-op。
func (c *Connector) ClearAll() error {
	if inv, ok := c.storage.(Invalidator); ok {
		return inv.ClearAll()
	}
	return nil
}
