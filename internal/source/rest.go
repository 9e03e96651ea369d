package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/query-hub/query-hub/internal/config"
	"github.com/query-hub/query-hub/internal/query"
)

// RESTConnector 把读查询翻译为上游 REST API 的 GET 请求：
// 对象名映射为路径段，过滤条件映射为查询参数，属性投影通过
// fields 参数下推。瞬时故障按指数退避重试，相同查询的并发
// 请求通过 singleflight 合并为一次上游往返。
type RESTConnector struct {
	base           *url.URL
	client         *http.Client
	maxRetries     int
	initialBackoff time.Duration
	group          singleflight.Group
}

var _ query.Connector = (*RESTConnector)(nil)

// NewRESTConnector 创建 REST 连接器，upstream 必须是合法的 http(s) 地址。
func NewRESTConnector(upstream string, env Env) (*RESTConnector, error) {
	base, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("解析上游地址失败: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("上游仅支持 http/https: %s", upstream)
	}

	client := env.Client
	if client == nil {
		client = NewUpstreamClient(0)
	}
	backoff := env.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	return &RESTConnector{
		base:           base,
		client:         client,
		maxRetries:     env.MaxRetries,
		initialBackoff: backoff,
	}, nil
}

// Query 回答读查询；REST 数据源不代理写操作。
func (c *RESTConnector) Query(ctx context.Context, q query.Query) (query.Entries, error) {
	if q.Action != query.ActionRead {
		return nil, fmt.Errorf("%w: rest source is read-only (%s)", query.ErrUnsupportedAction, q.Action)
	}

	// 相同查询的并发未命中只打一次上游。
	result, err, _ := c.group.Do(q.Key(), func() (interface{}, error) {
		return c.fetch(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return result.(query.Entries), nil
}

// fetch 执行带重试的上游往返。4xx 不重试，5xx 与传输错误按
// 指数退避重试，等待期间尊重 ctx 取消。
func (c *RESTConnector) fetch(ctx context.Context, q query.Query) (query.Entries, error) {
	endpoint := c.endpoint(q)
	backoff := c.initialBackoff

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		entries, retryable, err := c.doRequest(ctx, endpoint)
		if err == nil {
			return entries, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}

	return nil, fmt.Errorf("上游请求重试 %d 次后仍失败: %w", c.maxRetries, lastErr)
}

func (c *RESTConnector) doRequest(ctx context.Context, endpoint string) (query.Entries, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("上游返回 %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		io.Copy(io.Discard, resp.Body)
		return nil, false, fmt.Errorf("上游返回 %d", resp.StatusCode)
	}

	entries, err := decodeEntries(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("解析上游响应失败: %w", err)
	}
	return entries, false, nil
}

// endpoint 把查询映射为上游 URL：对象名作为路径段，
// 过滤条件作为查询参数，属性投影折叠为 fields 参数。
func (c *RESTConnector) endpoint(q query.Query) string {
	u := c.base.JoinPath(q.Object)

	params := url.Values{}
	for key, value := range q.Filters {
		params.Set(key, value)
	}
	if len(q.Attributes) > 0 {
		params.Set("fields", strings.Join(q.Attributes, ","))
	}
	u.RawQuery = params.Encode()
	return u.String()
}

// decodeEntries 接受对象数组或单个对象两种响应形态。
func decodeEntries(r io.Reader) (query.Entries, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var entries query.Entries
	if err := json.Unmarshal(raw, &entries); err == nil {
		return entries, nil
	}

	var single query.Entry
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return query.Entries{single}, nil
}

func init() {
	MustRegister("rest", func(cfg config.SourceConfig, env Env) (query.Connector, error) {
		return NewRESTConnector(cfg.Upstream, env)
	})
}
