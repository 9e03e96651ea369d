package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/query-hub/query-hub/internal/query"
)

// ErrNotCached 表示当前查询没有可用的缓存条目（文件不存在或已过期）。
var ErrNotCached = errors.New("query not cached")

// Storage 是缓存编排器要求的最小能力契约。实现缺少任一方法将无法
// 通过编译，取代原先运行时才暴露的"未实现"错误。
type Storage interface {
	// IsCached 当且仅当存在可用（新鲜）的缓存条目时为 true。
	IsCached(q query.Query) bool
	// Read 返回缓存条目；未命中时返回 ErrNotCached，
	// 解码/IO 错误原样上抛，由编排器处理。
	Read(q query.Query) (query.Entries, error)
	// Write 持久化条目，失败上抛。
	Write(q query.Query, entries query.Entries) error
}

// Invalidator 是可选的失效能力，存储实现可以选择不提供。
type Invalidator interface {
	// ClearQuery 删除单个查询的条目，不存在时为 no-op。
	ClearQuery(q query.Query) error
	// ClearAll 清空该存储管理的全部条目，不存在时为 no-op。
	ClearAll() error
}

// FileStorageOptions 在构造时一次性固定文件存储的全部行为，此后不可变。
type FileStorageOptions struct {
	// Root 是缓存根目录，由调用方显式给出（进程启动时解析一次），
	// 不存在隐式的 home 目录默认值。
	Root string
	// Namespace 是 Root 下的子目录名，由调用方显式提供，
	// 不再从被包装连接器的运行时类型名推导。
	Namespace string
	// Serializer 与 Extension 决定条目的编解码与文件后缀。
	Serializer Serializer
	Extension  string
	// TTL 为 NoExpiry（负值）时关闭过期；为零时使用 DefaultTTL。
	TTL time.Duration
	// Now 允许测试注入时钟，缺省为 time.Now。
	Now func() time.Time
}

// FileStorage 把每个查询键映射为一个缓存文件；文件系统目录即索引，
// 没有额外的清单或元数据文件。
type FileStorage struct {
	dir        string
	serializer Serializer
	extension  string
	ttl        time.Duration
	now        func() time.Time
}

var (
	_ Storage     = (*FileStorage)(nil)
	_ Invalidator = (*FileStorage)(nil)
)

// NewFileStorage 创建文件存储，并立即确保缓存目录存在且可写。
// 目录不可写属于配置错误，在这里直接失败，而不是留到某次写入时。
func NewFileStorage(opts FileStorageOptions) (*FileStorage, error) {
	if opts.Root == "" {
		return nil, errors.New("cache root required")
	}
	if opts.Serializer == nil {
		return nil, errors.New("serializer required")
	}

	abs, err := filepath.Abs(filepath.Join(opts.Root, opts.Namespace))
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if err := checkWritableDir(abs); err != nil {
		return nil, err
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &FileStorage{
		dir:        abs,
		serializer: opts.Serializer,
		extension:  opts.Extension,
		ttl:        ttl,
		now:        now,
	}, nil
}

// Dir 返回实际使用的缓存目录，供日志与诊断输出。
func (s *FileStorage) Dir() string {
	return s.dir
}

// entryPath 把查询键映射为缓存文件路径。映射是确定性的，不处理碰撞：
// Query.Key 的成分均已转义，键中不会出现路径分隔符。
func (s *FileStorage) entryPath(q query.Query) string {
	return filepath.Join(s.dir, q.Key()+s.extension)
}

// IsCached 当且仅当条目文件存在且按 TTL 判定仍然新鲜时为 true。
// 该谓词是缓存条目可用性的唯一判据。
func (s *FileStorage) IsCached(q query.Query) bool {
	info, err := os.Stat(s.entryPath(q))
	if err != nil || info.IsDir() {
		return false
	}
	return IsFresh(info.ModTime(), s.now(), s.ttl)
}

// Read 返回缓存的条目。未命中时返回 ErrNotCached 且不打开文件；
// 打开后的解码与 IO 错误原样上抛，由编排器的 fail-soft 边界处理。
func (s *FileStorage) Read(q query.Query) (query.Entries, error) {
	if !s.IsCached(q) {
		return nil, ErrNotCached
	}

	f, err := os.Open(s.entryPath(q))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// IsCached 与 Open 之间条目被并发删除，按未命中处理。
			return nil, ErrNotCached
		}
		return nil, err
	}
	defer f.Close()

	entries, err := s.serializer.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return entries, nil
}

// Write 以临时文件 + rename 原子落盘，同一路径的后续写入直接覆盖。
func (s *FileStorage) Write(q query.Query, entries query.Entries) error {
	filePath := s.entryPath(q)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	err = s.serializer.Encode(tempFile, entries)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return fmt.Errorf("encode cache entry: %w", err)
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

// ClearQuery 删除单个条目文件，不存在时为 no-op。
func (s *FileStorage) ClearQuery(q query.Query) error {
	if err := os.Remove(s.entryPath(q)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ClearAll 递归删除整个命名空间目录，不存在时为 no-op。
func (s *FileStorage) ClearAll() error {
	return os.RemoveAll(s.dir)
}

// checkWritableDir 通过写入并删除探针文件验证目录可写。
func checkWritableDir(dir string) error {
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("cache dir not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}
