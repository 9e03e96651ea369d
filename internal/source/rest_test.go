package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/query-hub/query-hub/internal/query"
)

func testEnv(client *http.Client) Env {
	return Env{
		Client:         client,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
	}
}

func TestRESTConnectorFetchesEntries(t *testing.T) {
	var gotPath, gotQuery atomic.Value
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		gotQuery.Store(r.URL.Query().Encode())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 1, "title": "hello"}]`))
	}))
	defer upstream.Close()

	conn, err := NewRESTConnector(upstream.URL, testEnv(upstream.Client()))
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}

	q := query.Query{
		Action:     query.ActionRead,
		Object:     "articles",
		Attributes: []string{"id", "title"},
		Filters:    map[string]string{"author": "ann"},
	}
	entries, err := conn.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	if len(entries) != 1 || entries[0]["title"] != "hello" {
		t.Fatalf("响应解析不符: %v", entries)
	}

	if gotPath.Load() != "/articles" {
		t.Fatalf("对象应映射为路径段, got %v", gotPath.Load())
	}
	if gotQuery.Load() != "author=ann&fields=id%2Ctitle" {
		t.Fatalf("过滤与投影应下推为查询参数, got %v", gotQuery.Load())
	}
}

func TestRESTConnectorSingleObjectResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"id": 7}`))
	}))
	defer upstream.Close()

	conn, err := NewRESTConnector(upstream.URL, testEnv(upstream.Client()))
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}

	entries, err := conn.Query(context.Background(), query.Query{Action: query.ActionRead, Object: "articles"})
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	if len(entries) != 1 || entries[0]["id"] != float64(7) {
		t.Fatalf("单对象响应应包装为单条目列表: %v", entries)
	}
}

func TestRESTConnectorRetriesServerErrors(t *testing.T) {
	var hits int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"ok": true}]`))
	}))
	defer upstream.Close()

	conn, err := NewRESTConnector(upstream.URL, testEnv(upstream.Client()))
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}

	entries, err := conn.Query(context.Background(), query.Query{Action: query.ActionRead, Object: "articles"})
	if err != nil {
		t.Fatalf("5xx 在重试窗口内恢复不应报错: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("应返回恢复后的结果: %v", entries)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("应重试至成功, hits=%d", got)
	}
}

func TestRESTConnectorDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer upstream.Close()

	conn, err := NewRESTConnector(upstream.URL, testEnv(upstream.Client()))
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}

	if _, err := conn.Query(context.Background(), query.Query{Action: query.ActionRead, Object: "articles"}); err == nil {
		t.Fatalf("4xx 应直接上抛")
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("4xx 不应重试, hits=%d", got)
	}
}

func TestRESTConnectorExhaustsRetries(t *testing.T) {
	var hits int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	conn, err := NewRESTConnector(upstream.URL, testEnv(upstream.Client()))
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}

	if _, err := conn.Query(context.Background(), query.Query{Action: query.ActionRead, Object: "articles"}); err == nil {
		t.Fatalf("重试耗尽后应报错")
	}
	// MaxRetries=2 → 首次 + 两次重试。
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("重试次数不符, hits=%d", got)
	}
}

func TestRESTConnectorHonorsContextDuringBackoff(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	env := testEnv(upstream.Client())
	env.InitialBackoff = time.Minute
	conn, err := NewRESTConnector(upstream.URL, env)
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = conn.Query(ctx, query.Query{Action: query.ActionRead, Object: "articles"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("退避等待应被 ctx 中断, got %v", err)
	}
}

func TestRESTConnectorRejectsWrites(t *testing.T) {
	conn, err := NewRESTConnector("https://api.example.com", Env{})
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}

	_, err = conn.Query(context.Background(), query.Query{Action: query.ActionDelete, Object: "articles"})
	if !errors.Is(err, query.ErrUnsupportedAction) {
		t.Fatalf("写操作应返回 ErrUnsupportedAction, got %v", err)
	}
}

func TestNewRESTConnectorRejectsBadUpstream(t *testing.T) {
	if _, err := NewRESTConnector("ftp://example.com", Env{}); err == nil {
		t.Fatalf("非 http(s) 上游应报错")
	}
}
