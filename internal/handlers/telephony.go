package handlers

import (
	"errors"
	"log"
	"strconv"

	"consora/internal/metrics"
	"consora/internal/models"
	"consora/internal/services/telephony"
	"consora/internal/utils"

	"github.com/gofiber/fiber/v2"
)

// TelephonyHandler terminates the provider's webhook surface. Every
// request passes the signature gate before its payload is trusted: the
// provider signs the full callback URL plus the sorted form parameters
// with the shared auth token.
type TelephonyHandler struct {
	bridge telephony.Service
	// publicBaseURL is the externally visible origin the provider signed
	// against, e.g. "https://api.example.com". Signatures are computed
	// over the public URL, not whatever host header a proxy rewrote.
	publicBaseURL string
}

func NewTelephonyHandler(bridge telephony.Service, publicBaseURL string) *TelephonyHandler {
	return &TelephonyHandler{bridge: bridge, publicBaseURL: publicBaseURL}
}

// verify reconstructs the signed URL and checks the provider signature.
func (h *TelephonyHandler) verify(c *fiber.Ctx) (map[string]string, bool) {
	params := make(map[string]string)
	args := c.Request().PostArgs()
	args.VisitAll(func(key, value []byte) {
		params[string(key)] = string(value)
	})

	url := h.publicBaseURL + c.OriginalURL()
	signature := c.Get("X-Twilio-Signature")
	return params, h.bridge.Validator().Validate(url, params, signature)
}

// Status receives call-lifecycle events (initiated, ringing, answered,
// completed, failed...). Replayed deliveries are acknowledged without
// effect.
func (h *TelephonyHandler) Status(c *fiber.Ctx) error {
	params, ok := h.verify(c)
	if !ok {
		metrics.RecordWebhook(models.ProviderTelephony, "rejected")
		return utils.Unauthorized(c, "invalid signature")
	}

	callSID := params["CallSid"]
	if callSID == "" {
		metrics.RecordWebhook(models.ProviderTelephony, "malformed")
		return utils.BadRequest(c, "missing CallSid")
	}

	duration := 0
	if v := params["CallDuration"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			duration = n
		}
	}

	evt := telephony.StatusEvent{
		EventID:         eventID(params),
		CallSID:         callSID,
		Status:          params["CallStatus"],
		DurationSeconds: duration,
		Raw:             rawEvent(params),
	}

	if err := h.bridge.HandleStatus(c.Context(), evt); err != nil {
		if errors.Is(err, telephony.ErrUnknownCall) {
			// Not ours; acknowledge so the provider stops retrying.
			metrics.RecordWebhook(models.ProviderTelephony, "unknown_call")
			return utils.Success(c, fiber.Map{"received": true})
		}
		log.Printf("telephony status %s: %v", callSID, err)
		metrics.RecordWebhook(models.ProviderTelephony, "error")
		return utils.InternalError(c, "failed to process event")
	}

	metrics.RecordWebhook(models.ProviderTelephony, "processed")
	return utils.Success(c, fiber.Map{"received": true})
}

// Voice answers the provider's call-control request with the document
// that greets the client and dials the operator's masked number.
func (h *TelephonyHandler) Voice(c *fiber.Ctx) error {
	params, ok := h.verify(c)
	if !ok {
		return utils.Unauthorized(c, "invalid signature")
	}

	sessionID, err := strconv.Atoi(c.Query("session_id", params["session_id"]))
	if err != nil || sessionID <= 0 {
		return utils.BadRequest(c, "missing session_id")
	}

	doc, err := h.bridge.Answer(c.Context(), uint(sessionID))
	if err != nil {
		log.Printf("telephony voice for session %d: %v", sessionID, err)
		return utils.InternalError(c, "failed to build call document")
	}

	c.Set(fiber.HeaderContentType, "text/xml")
	return c.SendString(doc)
}

// Recording stores the recording URL on the call record when the
// provider finishes processing it.
func (h *TelephonyHandler) Recording(c *fiber.Ctx) error {
	params, ok := h.verify(c)
	if !ok {
		metrics.RecordWebhook(models.ProviderTelephony, "rejected")
		return utils.Unauthorized(c, "invalid signature")
	}

	callSID := params["CallSid"]
	recordingURL := params["RecordingUrl"]
	if callSID == "" || recordingURL == "" {
		return utils.BadRequest(c, "missing CallSid or RecordingUrl")
	}

	evt := telephony.RecordingEvent{
		EventID:      params["RecordingSid"],
		CallSID:      callSID,
		RecordingURL: recordingURL,
		Raw:          rawEvent(params),
	}

	if err := h.bridge.HandleRecording(c.Context(), evt); err != nil {
		log.Printf("telephony recording %s: %v", callSID, err)
		return utils.InternalError(c, "failed to process recording")
	}

	return utils.Success(c, fiber.Map{"received": true})
}

// eventID builds the replay-protection key for a status delivery. The
// provider does not assign ids to status callbacks, so the call id plus
// the reported status is the natural key: each lifecycle state fires
// once per call.
func eventID(params map[string]string) string {
	return params["CallSid"] + ":" + params["CallStatus"]
}

func rawEvent(params map[string]string) models.JSON {
	raw := make(models.JSON, len(params))
	for k, v := range params {
		raw[k] = v
	}
	return raw
}
