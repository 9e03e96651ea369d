package routes

import (
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/query-hub/query-hub/internal/cache"
	"github.com/query-hub/query-hub/internal/server"
	"github.com/query-hub/query-hub/internal/source"
)

// RegisterSourceRoutes 暴露 /-/sources 诊断接口，供 SRE 查询数据源与缓存绑定关系。
func RegisterSourceRoutes(app *fiber.App, registry *server.SourceRegistry) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/sources", func(c fiber.Ctx) error {
		payload := fiber.Map{
			"sources":       encodeSources(registry.List()),
			"source_types":  source.Keys(),
			"cache_formats": cache.PresetKeys(),
		}
		return c.JSON(payload)
	})

	app.Get("/-/sources/:name", func(c fiber.Ctx) error {
		name := strings.ToLower(strings.TrimSpace(c.Params("name")))
		if name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "source_name_required"})
		}
		route, ok := registry.Lookup(name)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "source_not_found"})
		}
		return c.JSON(encodeSource(*route))
	})
}

type sourcePayload struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Upstream     string `json:"upstream,omitempty"`
	Path         string `json:"path,omitempty"`
	CacheEnabled bool   `json:"cache_enabled"`
	CacheFormat  string `json:"cache_format,omitempty"`
	Namespace    string `json:"namespace,omitempty"`
	CacheDir     string `json:"cache_dir,omitempty"`
	TTLSeconds   int64  `json:"ttl_seconds,omitempty"`
	NoExpiry     bool   `json:"no_expiry,omitempty"`
	Port         int    `json:"port"`
}

func encodeSources(routes []server.SourceRoute) []sourcePayload {
	if len(routes) == 0 {
		return nil
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Config.Name < routes[j].Config.Name
	})
	result := make([]sourcePayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, encodeSource(route))
	}
	return result
}

func encodeSource(route server.SourceRoute) sourcePayload {
	item := sourcePayload{
		Name:         route.Config.Name,
		Type:         route.Config.Type,
		Upstream:     route.Config.Upstream,
		Path:         route.Config.Path,
		CacheEnabled: route.CacheEnabled(),
		Port:         route.ListenPort,
	}
	if !route.CacheEnabled() {
		return item
	}

	item.CacheFormat = route.Config.CacheFormat
	item.Namespace = route.Config.Namespace
	item.CacheDir = route.CacheDir
	if route.CacheTTL < 0 {
		item.NoExpiry = true
	} else {
		item.TTLSeconds = int64(route.CacheTTL / time.Second)
	}
	return item
}
