package controller

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"galvan_backend/internal/service"
)

type Templates interface {
	List(ctx context.Context, activeOnly bool) service.Result
	Get(ctx context.Context, id uint) service.Result
	Create(ctx context.Context, in service.TemplateInput) service.Result
	Update(ctx context.Context, id uint, in service.TemplateInput) service.Result
	Delete(ctx context.Context, id uint) service.Result
}

type TemplateController struct {
	templates Templates
}

func NewTemplateController(templates Templates) *TemplateController {
	return &TemplateController{templates: templates}
}

func (tc *TemplateController) List(c *fiber.Ctx) error {
	return respond(c, tc.templates.List(c.UserContext(), c.QueryBool("active", false)), fiber.StatusOK)
}

func (tc *TemplateController) Get(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return badRequest(c, "Invalid template ID")
	}
	return respond(c, tc.templates.Get(c.UserContext(), id), fiber.StatusOK)
}

func (tc *TemplateController) Create(c *fiber.Ctx) error {
	var input service.TemplateInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, MsgInvalidInput)
	}
	return respond(c, tc.templates.Create(c.UserContext(), input), fiber.StatusCreated)
}

func (tc *TemplateController) Update(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return badRequest(c, "Invalid template ID")
	}
	var input service.TemplateInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, MsgInvalidInput)
	}
	return respond(c, tc.templates.Update(c.UserContext(), id, input), fiber.StatusOK)
}

func (tc *TemplateController) Delete(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return badRequest(c, "Invalid template ID")
	}
	return respond(c, tc.templates.Delete(c.UserContext(), id), fiber.StatusOK)
}
