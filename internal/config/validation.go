package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var supportedSourceTypes = map[string]struct{}{
	"static": {},
	"rest":   {},
}

const supportedSourceTypeList = "static|rest"

var supportedCacheFormats = map[string]struct{}{
	"json": {},
	"gob":  {},
	"none": {},
}

const supportedCacheFormatList = "json|gob|none"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.CacheTTL.DurationValue() == 0 {
		return newFieldError("Global.CacheTTL", "必须为正值，或负值表示永不过期")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	if len(c.Sources) == 0 {
		return errors.New("至少需要配置一个 Source")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Sources {
		src := &c.Sources[i]
		if src.Name == "" {
			return newFieldError("Source[].Name", "不能为空")
		}
		if _, exists := seenNames[src.Name]; exists {
			return newFieldError(sourceField(src.Name, "Name"), "重复")
		}
		seenNames[src.Name] = struct{}{}

		if err := validateName(src.Name); err != nil {
			return fmt.Errorf("%s: %w", sourceField(src.Name, "Name"), err)
		}

		if src.Type == "" {
			return newFieldError(sourceField(src.Name, "Type"), "不能为空")
		}
		if _, ok := supportedSourceTypes[src.Type]; !ok {
			return newFieldError(sourceField(src.Name, "Type"), "仅支持 "+supportedSourceTypeList)
		}

		if _, ok := supportedCacheFormats[src.CacheFormat]; !ok {
			return newFieldError(sourceField(src.Name, "CacheFormat"), "仅支持 "+supportedCacheFormatList)
		}

		switch src.Type {
		case "static":
			if src.Path == "" {
				return newFieldError(sourceField(src.Name, "Path"), "static 类型必须提供数据文件路径")
			}
		case "rest":
			if err := validateUpstream(src.Upstream); err != nil {
				return fmt.Errorf("%s: %w", sourceField(src.Name, "Upstream"), err)
			}
		}
	}

	return nil
}

// validateName 限制数据源名可安全用于 URL 路径与缓存目录名。
func validateName(name string) error {
	if strings.ContainsAny(name, "/\\ ") {
		return errors.New("不允许包含路径分隔符或空格")
	}
	if strings.HasPrefix(name, ".") {
		return errors.New("不允许以 . 开头")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}

// EffectiveCacheTTL 返回特定数据源生效的 TTL，未覆盖时回退至全局值。
// 负值表示永不过期，原样透传给存储层。
func (c *Config) EffectiveCacheTTL(s SourceConfig) time.Duration {
	if s.CacheTTL.DurationValue() != 0 {
		return s.CacheTTL.DurationValue()
	}
	return c.Global.CacheTTL.DurationValue()
}
