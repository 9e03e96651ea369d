package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// QueryFields 提供数据源/对象/命中状态字段，供查询请求日志复用。
func QueryFields(source, object, action string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"source":    source,
		"object":    object,
		"op":        action,
		"cache_hit": cacheHit,
	}
}
