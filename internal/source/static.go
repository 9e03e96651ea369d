package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/query-hub/query-hub/internal/config"
	"github.com/query-hub/query-hub/internal/query"
)

// StaticConnector 从本地 JSON 数据文件回答只读查询。文件按对象名分组：
//
//	{"articles": [{...}, ...], "books": [...]}
//
// 每次查询重新读取文件，修改立即可见；配合缓存层时以缓存副本为准。
type StaticConnector struct {
	path string
}

var _ query.Connector = (*StaticConnector)(nil)

// NewStaticConnector 创建静态文件连接器，并在构造时确认数据文件可读。
func NewStaticConnector(path string) (*StaticConnector, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析数据文件路径失败: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("数据文件不可用: %w", err)
	}
	return &StaticConnector{path: abs}, nil
}

// Query 回答读查询；静态数据源不支持写操作。
func (c *StaticConnector) Query(_ context.Context, q query.Query) (query.Entries, error) {
	if q.Action != query.ActionRead {
		return nil, fmt.Errorf("%w: static source is read-only (%s)", query.ErrUnsupportedAction, q.Action)
	}

	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("读取数据文件失败: %w", err)
	}

	var dataset map[string]query.Entries
	if err := json.Unmarshal(raw, &dataset); err != nil {
		return nil, fmt.Errorf("解析数据文件失败: %w", err)
	}

	return reshape(dataset[q.Object], q), nil
}

// reshape 按查询的过滤条件与属性投影裁剪条目。
// 过滤按字符串化后的等值比较，与上游传参的语义一致。
func reshape(entries query.Entries, q query.Query) query.Entries {
	result := make(query.Entries, 0, len(entries))
	for _, entry := range entries {
		if !matches(entry, q.Filters) {
			continue
		}
		result = append(result, project(entry, q.Attributes))
	}
	return result
}

func matches(entry query.Entry, filters map[string]string) bool {
	for key, want := range filters {
		value, ok := entry[key]
		if !ok {
			return false
		}
		if stringify(value) != want {
			return false
		}
	}
	return true
}

func project(entry query.Entry, attributes []string) query.Entry {
	if len(attributes) == 0 {
		return entry
	}
	projected := make(query.Entry, len(attributes))
	for _, attr := range attributes {
		if value, ok := entry[attr]; ok {
			projected[attr] = value
		}
	}
	return projected
}

// stringify 归一化 JSON 解码值，使 1 与 1.0 比较一致。
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func init() {
	MustRegister("static", func(cfg config.SourceConfig, _ Env) (query.Connector, error) {
		return NewStaticConnector(cfg.Path)
	})
}
