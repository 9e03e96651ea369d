package cache

import "time"

const (
	// NoExpiry 表示条目永不过期，关闭基于时间的失效。
	NoExpiry time.Duration = -1

	// DefaultTTL 是未显式配置时的缓存有效期。
	DefaultTTL = 72 * time.Hour
)

// IsFresh 判定 modTime 时刻写入的条目在 now 时刻、按 ttl 计算是否仍然有效。
// ttl 为负（NoExpiry）时恒为 true。纯函数，时钟由调用方注入，便于单测。
func IsFresh(modTime, now time.Time, ttl time.Duration) bool {
	if ttl < 0 {
		return true
	}
	return now.Sub(modTime) < ttl
}
