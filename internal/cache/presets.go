package cache

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/query-hub/query-hub/internal/query"
)

// JSONSerializer 以结构化文本保存条目，内容限定为 JSON 可表示的值。
type JSONSerializer struct{}

// Encode 将条目编码为 JSON 写入 w。
func (JSONSerializer) Encode(w io.Writer, entries query.Entries) error {
	return json.NewEncoder(w).Encode(entries)
}

// Decode 从 r 解析 JSON 条目。
func (JSONSerializer) Decode(r io.Reader) (query.Entries, error) {
	var entries query.Entries
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GobSerializer 以不透明二进制保存条目，可往返任意已注册的 Go 值图。
type GobSerializer struct{}

// Encode 将条目编码为 gob 流写入 w。
func (GobSerializer) Encode(w io.Writer, entries query.Entries) error {
	return gob.NewEncoder(w).Encode(entries)
}

// Decode 从 r 解析 gob 条目。
func (GobSerializer) Decode(r io.Reader) (query.Entries, error) {
	var entries query.Entries
	if err := gob.NewDecoder(r).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Preset 把一个序列化器与文件扩展名绑定为可按键选择的缓存格式。
type Preset struct {
	Key        string
	Serializer Serializer
	Extension  string
}

var (
	presetMu sync.RWMutex
	presets  = make(map[string]Preset)
)

// RegisterPreset 将格式加入注册表，重复键返回错误。
func RegisterPreset(p Preset) error {
	key := strings.ToLower(strings.TrimSpace(p.Key))
	if key == "" {
		return fmt.Errorf("preset key is required")
	}
	if p.Serializer == nil {
		return fmt.Errorf("preset %s: serializer is required", key)
	}
	p.Key = key

	presetMu.Lock()
	defer presetMu.Unlock()

	if _, exists := presets[key]; exists {
		return fmt.Errorf("preset %s already registered", key)
	}
	presets[key] = p
	return nil
}

// MustRegisterPreset 在注册失败时 panic，适合 init() 中调用。
func MustRegisterPreset(p Preset) {
	if err := RegisterPreset(p); err != nil {
		panic(err)
	}
}

// ResolvePreset 返回指定键的格式。
func ResolvePreset(key string) (Preset, bool) {
	presetMu.RLock()
	defer presetMu.RUnlock()

	p, ok := presets[strings.ToLower(strings.TrimSpace(key))]
	return p, ok
}

// PresetKeys 返回所有已注册格式的键值，按字典序排序，供配置校验与诊断。
func PresetKeys() []string {
	presetMu.RLock()
	defer presetMu.RUnlock()

	keys := make([]string, 0, len(presets))
	for key := range presets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// NewPresetStorage 按格式键构造预置的文件存储，覆盖 opts 中的
// Serializer/Extension 字段。
func NewPresetStorage(key string, opts FileStorageOptions) (*FileStorage, error) {
	preset, ok := ResolvePreset(key)
	if !ok {
		return nil, fmt.Errorf("cache format %s not registered", key)
	}
	opts.Serializer = preset.Serializer
	opts.Extension = preset.Extension
	return NewFileStorage(opts)
}

// NewJSONStorage 返回结构化文本格式的预置文件存储。
func NewJSONStorage(opts FileStorageOptions) (*FileStorage, error) {
	return NewPresetStorage("json", opts)
}

// NewGobStorage 返回不透明二进制格式的预置文件存储。
func NewGobStorage(opts FileStorageOptions) (*FileStorage, error) {
	return NewPresetStorage("gob", opts)
}

func init() {
	// JSON 解码产生的动态类型需要提前注册，gob 才能编码 interface 值。
	gob.Register(map[string]any{})
	gob.Register([]any{})

	MustRegisterPreset(Preset{Key: "json", Serializer: JSONSerializer{}, Extension: ".json"})
	MustRegisterPreset(Preset{Key: "gob", Serializer: GobSerializer{}, Extension: ".gob"})
}
