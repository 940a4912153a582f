package handlers

import (
	"errors"

	"consora/internal/repositories"
	"consora/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type OperatorHandler struct {
	operators repositories.OperatorRepository
}

func NewOperatorHandler(operators repositories.OperatorRepository) *OperatorHandler {
	return &OperatorHandler{operators: operators}
}

// GetOperator returns an operator's public rate card.
func (h *OperatorHandler) GetOperator(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return utils.BadRequest(c, "invalid operator id")
	}

	operator, err := h.operators.GetByID(c.Context(), uint(id))
	if err != nil {
		if errors.Is(err, repositories.ErrOperatorNotFound) {
			return utils.NotFound(c, "operator not found")
		}
		return utils.InternalError(c, "failed to get operator")
	}

	return utils.Success(c, fiber.Map{
		"operator": operator,
	})
}

// SetAvailability flips the authenticated operator's online flag.
// Going offline never touches sessions already in progress.
func (h *OperatorHandler) SetAvailability(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input struct {
		Online bool `json:"online"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "invalid request format")
	}

	operator, err := h.operators.GetByUserID(c.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrOperatorNotFound) {
			return utils.NotFound(c, "no operator profile for user")
		}
		return utils.InternalError(c, "failed to get operator")
	}

	if err := h.operators.SetOnline(c.Context(), operator.ID, input.Online); err != nil {
		return utils.InternalError(c, "failed to update availability")
	}

	return utils.Success(c, fiber.Map{
		"operator_id": operator.ID,
		"online":      input.Online,
	})
}
