package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/proxy"
	"go.uber.org/zap"
)

// ProxiedPrefixes are served by the external application backend.
var ProxiedPrefixes = []string{
	"/api/projects",
	"/api/blogs",
	"/api/testimonials",
	"/api/careers",
	"/api/applications",
}

type BackendProxy struct {
	baseURL string
	logger  *zap.Logger
}

func NewBackendProxy(baseURL string, log *zap.Logger) *BackendProxy {
	return &BackendProxy{baseURL: baseURL, logger: log}
}

// Forward relays the request, path and query included, to the backend.
func (p *BackendProxy) Forward(c *fiber.Ctx) error {
	if p.baseURL == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"message": "Application backend is not configured",
		})
	}

	if err := proxy.Do(c, p.baseURL+c.OriginalURL()); err != nil {
		p.logger.Error("Proxy request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": "Application backend is unavailable",
		})
	}
	c.Response().Header.Del(fiber.HeaderServer)
	return nil
}
