package cache

import (
	"io"

	"github.com/query-hub/query-hub/internal/query"
)

// Serializer 定义缓存条目的编解码策略。新增格式时注册一个新实现
// （见 RegisterPreset），而不是派生新的存储类型。
type Serializer interface {
	// Encode 将条目写入 w。
	Encode(w io.Writer, entries query.Entries) error
	// Decode 从 r 还原条目。
	Decode(r io.Reader) (query.Entries, error)
}
