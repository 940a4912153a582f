package handlers

import (
	"log"
	"time"

	"consora/internal/services/billing"
	"consora/internal/utils"

	"github.com/gofiber/fiber/v2"
)

// BillingHandler exposes the sweep trigger for external schedulers. The
// route is guarded by middleware.InternalSecret; a sweep racing the
// background loop is harmless because ticks only bill unbilled time.
type BillingHandler struct {
	sweeper *billing.Sweeper
}

func NewBillingHandler(sweeper *billing.Sweeper) *BillingHandler {
	return &BillingHandler{sweeper: sweeper}
}

// Sweep ticks every active session once and reports per-session results.
func (h *BillingHandler) Sweep(c *fiber.Ctx) error {
	summary, err := h.sweeper.Sweep(c.Context(), time.Now())
	if err != nil {
		log.Printf("billing sweep: %v", err)
		return utils.InternalError(c, "sweep failed")
	}
	return utils.Success(c, summary)
}
