package routes

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/query-hub/query-hub/internal/logging"
	"github.com/query-hub/query-hub/internal/query"
	"github.com/query-hub/query-hub/internal/server"
)

// queryPayload 是查询接口的请求体形态。
type queryPayload struct {
	Action     string            `json:"action"`
	Object     string            `json:"object"`
	Attributes []string          `json:"attributes"`
	Filters    map[string]string `json:"filters"`
}

// RegisterQueryRoutes 挂载查询与缓存失效接口。
func RegisterQueryRoutes(app *fiber.App, registry *server.SourceRegistry, logger *logrus.Logger) {
	if app == nil || registry == nil {
		return
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	app.Post("/api/sources/:name/query", func(c fiber.Ctx) error {
		route, ok := lookupRoute(c, registry, logger)
		if !ok {
			return renderSourceUnmapped(c)
		}

		q, err := decodeQuery(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		ctx := requestContext(c)
		entries, err := route.Connector.Query(ctx, q)
		if err != nil {
			if errors.Is(err, query.ErrUnsupportedAction) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
			logger.WithError(err).WithFields(logging.QueryFields(route.Config.Name, q.Object, string(q.Action), false)).
				Warn("query_failed")
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_error"})
		}

		return c.JSON(fiber.Map{
			"source":  route.Config.Name,
			"count":   len(entries),
			"entries": entries,
		})
	})

	app.Post("/api/sources/:name/cache/evict", func(c fiber.Ctx) error {
		route, ok := lookupRoute(c, registry, logger)
		if !ok {
			return renderSourceUnmapped(c)
		}
		if !route.CacheEnabled() {
			return renderCacheDisabled(c, route)
		}

		q, err := decodeQuery(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		if err := route.Cache.ClearQuery(q); err != nil {
			logger.WithError(err).WithField("source", route.Config.Name).Warn("cache_evict_failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "evict_failed"})
		}

		return c.JSON(fiber.Map{
			"source":  route.Config.Name,
			"evicted": q.Key(),
		})
	})

	app.Delete("/api/sources/:name/cache", func(c fiber.Ctx) error {
		route, ok := lookupRoute(c, registry, logger)
		if !ok {
			return renderSourceUnmapped(c)
		}
		if !route.CacheEnabled() {
			return renderCacheDisabled(c, route)
		}

		if err := route.Cache.ClearAll(); err != nil {
			logger.WithError(err).WithField("source", route.Config.Name).Warn("cache_clear_failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "clear_failed"})
		}

		return c.JSON(fiber.Map{
			"source":  route.Config.Name,
			"cleared": true,
		})
	})
}

// decodeQuery 解析请求体并归一化动作；空体表示读取对象全集。
func decodeQuery(c fiber.Ctx) (query.Query, error) {
	var payload queryPayload
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return query.Query{}, errors.New("invalid_request_body")
		}
	}

	action, err := query.ParseAction(payload.Action)
	if err != nil {
		return query.Query{}, err
	}
	if payload.Object == "" {
		return query.Query{}, errors.New("object_required")
	}

	return query.Query{
		Action:     action,
		Object:     payload.Object,
		Attributes: payload.Attributes,
		Filters:    payload.Filters,
	}, nil
}

func lookupRoute(c fiber.Ctx, registry *server.SourceRegistry, logger *logrus.Logger) (*server.SourceRoute, bool) {
	name := c.Params("name")
	route, ok := registry.Lookup(name)
	if !ok {
		logger.WithFields(logrus.Fields{
			"action": "source_lookup",
			"source": name,
		}).Warn("source unmapped")
		return nil, false
	}
	return route, true
}

func renderSourceUnmapped(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "source_unmapped",
	})
}

func renderCacheDisabled(c fiber.Ctx, route *server.SourceRoute) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":  "cache_disabled",
		"source": route.Config.Name,
	})
}

// requestContext 提取请求上下文；Fiber 在个别测试场景下可能返回 nil。
func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
