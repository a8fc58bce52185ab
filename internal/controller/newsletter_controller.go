package controller

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"galvan_backend/internal/repository"
	"galvan_backend/internal/service"
)

const MsgInvalidInput = "Invalid input format"

type Newsletter interface {
	Subscribe(ctx context.Context, in service.SubscribeInput) service.Result
	Unsubscribe(ctx context.Context, token string) service.Result
	ListSubscribers(ctx context.Context, filter repository.SubscriberFilter) service.Result
	Stats(ctx context.Context) service.Result
	Export(ctx context.Context) (*service.Export, error)
}

type NewsletterController struct {
	newsletter Newsletter
	logger     *zap.Logger
}

func NewNewsletterController(newsletter Newsletter, log *zap.Logger) *NewsletterController {
	return &NewsletterController{newsletter: newsletter, logger: log}
}

func (nc *NewsletterController) Subscribe(c *fiber.Ctx) error {
	var input service.SubscribeInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, MsgInvalidInput)
	}
	return respond(c, nc.newsletter.Subscribe(c.UserContext(), input), fiber.StatusCreated)
}

// Unsubscribe accepts the token from the query string (email links) or a
// JSON body (the site's confirmation form).
func (nc *NewsletterController) Unsubscribe(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" && c.Method() == fiber.MethodPost {
		var body struct {
			Token string `json:"token"`
		}
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, MsgInvalidInput)
		}
		token = body.Token
	}
	return respond(c, nc.newsletter.Unsubscribe(c.UserContext(), token), fiber.StatusOK)
}

func (nc *NewsletterController) GetSubscribers(c *fiber.Ctx) error {
	filter := repository.SubscriberFilter{
		Pagination: pagination(c),
		Search:     strings.TrimSpace(c.Query("search")),
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "active must be true or false")
		}
		filter.Active = &active
	}
	return respond(c, nc.newsletter.ListSubscribers(c.UserContext(), filter), fiber.StatusOK)
}

func (nc *NewsletterController) GetStats(c *fiber.Ctx) error {
	return respond(c, nc.newsletter.Stats(c.UserContext()), fiber.StatusOK)
}

func (nc *NewsletterController) ExportSubscribers(c *fiber.Ctx) error {
	export, err := nc.newsletter.Export(c.UserContext())
	if err != nil {
		nc.logger.Error("Failed to export subscribers", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(service.Result{Message: service.MsgInternal})
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, export.Filename))
	if export.URL != "" {
		c.Set("X-Export-URL", export.URL)
	}
	return c.Send(export.Data)
}
