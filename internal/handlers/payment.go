package handlers

import (
	"errors"
	"log"

	"consora/internal/metrics"
	"consora/internal/models"
	"consora/internal/services/payment"
	"consora/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type PaymentHandler struct {
	payments payment.Service
}

func NewPaymentHandler(payments payment.Service) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Webhook receives payment-processor events. The signature is verified
// over the exact raw body bytes, so the payload must not be parsed or
// re-serialized before the check.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	payload := c.Body()
	signature := c.Get("Stripe-Signature")

	if err := h.payments.HandleWebhook(c.Context(), payload, signature); err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			metrics.RecordWebhook(models.ProviderPayment, "rejected")
			return utils.BadRequest(c, "invalid signature")
		}
		log.Printf("payment webhook: %v", err)
		metrics.RecordWebhook(models.ProviderPayment, "error")
		return utils.InternalError(c, "failed to process event")
	}

	metrics.RecordWebhook(models.ProviderPayment, "processed")
	return utils.Success(c, fiber.Map{"received": true})
}
