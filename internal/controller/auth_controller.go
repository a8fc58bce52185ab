package controller

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"galvan_backend/internal/model"
	"galvan_backend/internal/repository"
	"galvan_backend/pkg/config"
	"galvan_backend/pkg/logger"
	"galvan_backend/pkg/utils/jwt"
)

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthController signs in the single admin account configured through
// ADMIN_EMAIL and ADMIN_PASSWORD_HASH.
type AuthController struct {
	admin   config.AuthConfig
	tokens  *jwt.Manager
	history repository.LoginHistoryRepository
	logger  *zap.Logger
}

func NewAuthController(admin config.AuthConfig, tokens *jwt.Manager, history repository.LoginHistoryRepository, log *zap.Logger) *AuthController {
	return &AuthController{admin: admin, tokens: tokens, history: history, logger: log}
}

func (ac *AuthController) Login(c *fiber.Ctx) error {
	input := new(LoginInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, MsgInvalidInput)
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))

	ok := ac.admin.AdminEmail != "" && ac.admin.AdminPasswordHash != "" && email == ac.admin.AdminEmail &&
		bcrypt.CompareHashAndPassword([]byte(ac.admin.AdminPasswordHash), []byte(input.Password)) == nil
	ac.recordLogin(c.UserContext(), email, c.Get(fiber.HeaderUserAgent), c.IP(), ok)

	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid credentials",
		})
	}

	token, err := ac.tokens.GenerateToken(email, jwt.RoleAdmin)
	if err != nil {
		ac.logger.Error("Could not generate token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Could not generate token",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Login successful",
		"token":   token,
	})
}

func (ac *AuthController) recordLogin(ctx context.Context, email, device, ip string, success bool) {
	if len(device) > 255 {
		device = device[:255]
	}
	entry := &model.LoginHistory{Email: email, Device: device, IP: ip, Success: success}
	if err := ac.history.Record(ctx, entry); err != nil {
		ac.logger.Warn("Failed to record login", logger.Email(email), zap.Error(err))
	}
	if !success {
		ac.logger.Warn("Failed admin login", logger.Email(email), zap.String("ip", ip))
	}
}

// Me echoes the authenticated admin.
func (ac *AuthController) Me(c *fiber.Ctx) error {
	claims, _ := c.Locals("user").(*jwt.Claims)
	if claims == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Authentication required",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "",
		"data": fiber.Map{
			"email": claims.Email,
			"role":  claims.Role,
		},
	})
}
