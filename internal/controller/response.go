package controller

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"galvan_backend/internal/repository"
	"galvan_backend/internal/service"
)

func statusFor(reason service.Reason) int {
	switch reason {
	case service.ReasonInvalid:
		return fiber.StatusBadRequest
	case service.ReasonNotFound:
		return fiber.StatusNotFound
	case service.ReasonConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// respond writes res as JSON, picking the HTTP status from its Reason.
func respond(c *fiber.Ctx, res service.Result, okStatus int) error {
	if !res.Success {
		return c.Status(statusFor(res.Reason)).JSON(res)
	}
	return c.Status(okStatus).JSON(res)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(service.Result{Message: message})
}

func paramID(c *fiber.Ctx) (uint, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func pagination(c *fiber.Ctx) repository.Pagination {
	return repository.Pagination{
		Page:  c.QueryInt("page", 1),
		Limit: c.QueryInt("limit", repository.DefaultPageSize),
	}
}
