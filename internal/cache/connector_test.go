package cache

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/query-hub/query-hub/internal/query"
)

// stubChild counts delegations and returns a fixed answer.
type stubChild struct {
	calls   int
	entries query.Entries
	err     error
}

func (s *stubChild) Query(_ context.Context, _ query.Query) (query.Entries, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.entries, nil
}

// stubStorage is an in-memory Storage with injectable failures.
// 故意不实现 Invalidator，用于验证失效操作的 no-op 路径。
type stubStorage struct {
	data     map[string]query.Entries
	readErr  error
	writeErr error
	writes   int
}

func newStubStorage() *stubStorage {
	return &stubStorage{data: map[string]query.Entries{}}
}

func (s *stubStorage) IsCached(q query.Query) bool {
	_, ok := s.data[q.Key()]
	return ok
}

func (s *stubStorage) Read(q query.Query) (query.Entries, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	entries, ok := s.data[q.Key()]
	if !ok {
		return nil, ErrNotCached
	}
	return entries, nil
}

func (s *stubStorage) Write(q query.Query, entries query.Entries) error {
	s.writes++
	if s.writeErr != nil {
		return s.writeErr
	}
	s.data[q.Key()] = entries
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestConnectorReadThrough(t *testing.T) {
	child := &stubChild{entries: query.Entries{{"id": float64(1)}}}
	storage := newStubStorage()
	c, err := New(child, storage, quietLogger())
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}

	q := query.Query{Action: query.ActionRead, Object: "articles"}

	// 首次查询委托 child 并落盘。
	got, err := c.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	if len(got) != 1 || child.calls != 1 {
		t.Fatalf("首次查询应委托一次, got calls=%d", child.calls)
	}
	if !storage.IsCached(q) {
		t.Fatalf("读结果应已落盘")
	}

	// 再次查询命中缓存，child 不再被调用。
	got, err = c.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	if child.calls != 1 {
		t.Fatalf("命中后不应再委托, calls=%d", child.calls)
	}
	if got[0]["id"] != float64(1) {
		t.Fatalf("命中结果不一致: %v", got)
	}
}

func TestConnectorStorageReadFailSoft(t *testing.T) {
	child := &stubChild{entries: query.Entries{{"id": float64(1)}}}
	storage := newStubStorage()
	q := query.Query{Action: query.ActionRead, Object: "articles"}
	storage.data[q.Key()] = query.Entries{{"stale": true}}
	storage.readErr = errors.New("disk exploded")

	c, err := New(child, storage, quietLogger())
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}

	got, err := c.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("存储读失败不应上抛: %v", err)
	}
	if child.calls != 1 {
		t.Fatalf("读失败应折叠为未命中并委托 child, calls=%d", child.calls)
	}
	if got[0]["id"] != float64(1) {
		t.Fatalf("应返回 child 的结果: %v", got)
	}
}

func TestConnectorStorageWriteFailSoft(t *testing.T) {
	child := &stubChild{entries: query.Entries{{"id": float64(1)}}}
	storage := newStubStorage()
	storage.writeErr = errors.New("disk full")

	c, err := New(child, storage, quietLogger())
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}

	q := query.Query{Action: query.ActionRead, Object: "articles"}
	got, err := c.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("存储写失败不应上抛: %v", err)
	}
	if got[0]["id"] != float64(1) {
		t.Fatalf("调用方结果不应受写失败影响: %v", got)
	}
	if storage.writes != 1 {
		t.Fatalf("应尝试过一次写入, writes=%d", storage.writes)
	}
}

func TestConnectorChildErrorPropagates(t *testing.T) {
	childErr := errors.New("upstream down")
	child := &stubChild{err: childErr}
	storage := newStubStorage()

	c, err := New(child, storage, quietLogger())
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}

	q := query.Query{Action: query.ActionRead, Object: "articles"}
	if _, err := c.Query(context.Background(), q); !errors.Is(err, childErr) {
		t.Fatalf("child 错误应原样上抛, got %v", err)
	}
	if storage.writes != 0 {
		t.Fatalf("委托失败后不应写缓存, writes=%d", storage.writes)
	}
}

func TestConnectorNonReadNotCached(t *testing.T) {
	child := &stubChild{entries: query.Entries{{"ok": true}}}
	storage := newStubStorage()

	c, err := New(child, storage, quietLogger())
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}

	for _, action := range []query.Action{query.ActionCreate, query.ActionUpdate, query.ActionDelete} {
		q := query.Query{Action: action, Object: "articles"}
		if _, err := c.Query(context.Background(), q); err != nil {
			t.Fatalf("%s query error: %v", action, err)
		}
	}
	if storage.writes != 0 {
		t.Fatalf("非读操作不应落盘, writes=%d", storage.writes)
	}
}

func TestConnectorCachablePredicate(t *testing.T) {
	child := &stubChild{entries: query.Entries{}}
	storage := newStubStorage()

	// 空结果不落盘。
	c, err := New(child, storage, quietLogger(), WithCachable(func(_ query.Query, entries query.Entries) bool {
		return len(entries) > 0
	}))
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}

	q := query.Query{Action: query.ActionRead, Object: "articles"}
	if _, err := c.Query(context.Background(), q); err != nil {
		t.Fatalf("query error: %v", err)
	}
	if storage.writes != 0 {
		t.Fatalf("谓词为 false 时不应落盘, writes=%d", storage.writes)
	}

	child.entries = query.Entries{{"id": float64(1)}}
	if _, err := c.Query(context.Background(), q); err != nil {
		t.Fatalf("query error: %v", err)
	}
	if storage.writes != 1 {
		t.Fatalf("谓词为 true 时应落盘, writes=%d", storage.writes)
	}
}

func TestConnectorRequiresChildAndStorage(t *testing.T) {
	if _, err := New(nil, newStubStorage(), quietLogger()); err == nil {
		t.Fatalf("缺少 child 应报错")
	}
	if _, err := New(&stubChild{}, nil, quietLogger()); err == nil {
		t.Fatalf("缺少 storage 应报错")
	}
}

func TestConnectorInvalidationNoopWithoutCapability(t *testing.T) {
	child := &stubChild{entries: query.Entries{{"id": float64(1)}}}
	// stubStorage 不实现 Invalidator。
	c, err := New(child, newStubStorage(), quietLogger())
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}

	q := query.Query{Action: query.ActionRead, Object: "articles"}
	if err := c.ClearQuery(q); err != nil {
		t.Fatalf("无失效能力时 ClearQuery 应为 no-op: %v", err)
	}
	if err := c.ClearAll(); err != nil {
		t.Fatalf("无失效能力时 ClearAll 应为 no-op: %v", err)
	}
}

func TestConnectorInvalidationWithFileStorage(t *testing.T) {
	child := &stubChild{entries: query.Entries{{"id": float64(1)}}}
	storage := newTestStorage(t, 0, nil)
	c, err := New(child, storage, quietLogger())
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}

	q := query.Query{Action: query.ActionRead, Object: "articles"}
	if _, err := c.Query(context.Background(), q); err != nil {
		t.Fatalf("query error: %v", err)
	}
	if !storage.IsCached(q) {
		t.Fatalf("读结果应已落盘")
	}

	if err := c.ClearQuery(q); err != nil {
		t.Fatalf("clear query: %v", err)
	}
	if storage.IsCached(q) {
		t.Fatalf("失效后不应命中")
	}

	// 失效后下一次查询重新委托并重新落盘。
	if _, err := c.Query(context.Background(), q); err != nil {
		t.Fatalf("query error: %v", err)
	}
	if child.calls != 2 {
		t.Fatalf("失效后应重新委托, calls=%d", child.calls)
	}
	if !storage.IsCached(q) {
		t.Fatalf("重新查询后应再次落盘")
	}
}
