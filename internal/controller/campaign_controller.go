package controller

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"galvan_backend/internal/model"
	"galvan_backend/internal/repository"
	"galvan_backend/internal/service"
)

type Campaigns interface {
	Create(ctx context.Context, in service.CreateCampaignInput) service.Result
	List(ctx context.Context, filter repository.CampaignFilter) service.Result
	Get(ctx context.Context, id uint) service.Result
	Send(ctx context.Context, id uint) service.Result
}

type CampaignController struct {
	campaigns Campaigns
}

func NewCampaignController(campaigns Campaigns) *CampaignController {
	return &CampaignController{campaigns: campaigns}
}

func (cc *CampaignController) Create(c *fiber.Ctx) error {
	var input service.CreateCampaignInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, MsgInvalidInput)
	}
	return respond(c, cc.campaigns.Create(c.UserContext(), input), fiber.StatusCreated)
}

func (cc *CampaignController) List(c *fiber.Ctx) error {
	filter := repository.CampaignFilter{
		Pagination: pagination(c),
		Status:     model.CampaignStatus(c.Query("status")),
	}
	return respond(c, cc.campaigns.List(c.UserContext(), filter), fiber.StatusOK)
}

func (cc *CampaignController) Get(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return badRequest(c, "Invalid campaign ID")
	}
	return respond(c, cc.campaigns.Get(c.UserContext(), id), fiber.StatusOK)
}

// Send runs the fan-out inside the request. Large lists are better left to
// the scheduler by creating the campaign with scheduledAt.
func (cc *CampaignController) Send(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return badRequest(c, "Invalid campaign ID")
	}
	return respond(c, cc.campaigns.Send(c.UserContext(), id), fiber.StatusOK)
}
