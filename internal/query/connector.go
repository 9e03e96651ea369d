package query

import "context"

// Connector 是能够响应查询的组件。实现可以再包装其它 Connector
// 组成链条，组合细节对调用方不可见。
type Connector interface {
	Query(ctx context.Context, q Query) (Entries, error)
}

// ConnectorFunc 将普通函数适配成 Connector，便于测试注入。
type ConnectorFunc func(ctx context.Context, q Query) (Entries, error)

// Query makes ConnectorFunc satisfy Connector.
func (f ConnectorFunc) Query(ctx context.Context, q Query) (Entries, error) {
	return f(ctx, q)
}
