package query

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Action 表示查询的动作类型，缓存层只对读动作的结果落盘。
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ErrUnsupportedAction 表示连接器不支持当前查询的动作类型。
var ErrUnsupportedAction = errors.New("unsupported query action")

// ParseAction 归一化外部输入的动作名，空串按读动作处理。
func ParseAction(raw string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ActionRead:
		return ActionRead, nil
	case ActionCreate:
		return ActionCreate, nil
	case ActionUpdate:
		return ActionUpdate, nil
	case ActionDelete:
		return ActionDelete, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAction, raw)
	}
}

// Entry 是连接器返回的一条记录，字段名到值的映射。
type Entry = map[string]any

// Entries 是所有连接器统一的响应形态。
type Entries []Entry

// Query 描述一次数据请求。值语义，构造后不应再修改。
type Query struct {
	// Action 区分读与其它动作，只有读结果会进入缓存。
	Action Action
	// Object 是被查询的逻辑集合名。
	Object string
	// Attributes 是投影字段，空表示返回全部字段。书写顺序不影响语义。
	Attributes []string
	// Filters 是字段到期望值的等值过滤条件。书写顺序不影响语义。
	Filters map[string]string
}

// Key 返回查询的规范化字符串形式，直接作为缓存键使用。
//
// 约束（使用方依赖的假设）：语义不同的查询必须产生不同的 Key。
// 为此所有成分在拼接前都经过 QueryEscape，分隔符不可能出现在
// 成分内部；属性与过滤键按字典序排序，书写顺序不影响结果。
// 核心不防御人为构造的碰撞。
func (q Query) Key() string {
	attrs := make([]string, 0, len(q.Attributes))
	for _, attr := range q.Attributes {
		attrs = append(attrs, url.QueryEscape(attr))
	}
	sort.Strings(attrs)

	filters := make([]string, 0, len(q.Filters))
	for field, value := range q.Filters {
		filters = append(filters, url.QueryEscape(field)+"="+url.QueryEscape(value))
	}
	sort.Strings(filters)

	var b strings.Builder
	b.WriteString(url.QueryEscape(string(q.Action)))
	b.WriteByte(':')
	b.WriteString(url.QueryEscape(q.Object))
	b.WriteByte(':')
	b.WriteString(strings.Join(attrs, ","))
	b.WriteByte(':')
	b.WriteString(strings.Join(filters, "&"))
	return b.String()
}

// String 与 Key 一致，便于日志输出。
func (q Query) String() string {
	return q.Key()
}
