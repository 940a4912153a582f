package handlers

import (
	"errors"
	"log"
	"time"

	"consora/internal/models"
	"consora/internal/repositories"
	"consora/internal/services/session"
	"consora/internal/services/telephony"
	"consora/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type SessionHandler struct {
	sessions  session.Service
	calls     telephony.Service
	operators repositories.OperatorRepository
}

func NewSessionHandler(sessions session.Service, calls telephony.Service, operators repositories.OperatorRepository) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		calls:     calls,
		operators: operators,
	}
}

// CreateSession starts a consultation with an operator. For the call
// channel the outbound leg is placed immediately; chat and written
// sessions wait for the activation signal from their own transport.
func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input struct {
		OperatorID uint   `json:"operator_id"`
		Channel    string `json:"channel"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "invalid request format")
	}
	if input.OperatorID == 0 {
		return utils.BadRequest(c, "operator_id is required")
	}

	sess, err := h.sessions.Create(c.Context(), claims.UserID, input.OperatorID, input.Channel)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidChannel):
			return utils.BadRequest(c, "unknown consultation channel")
		case errors.Is(err, session.ErrOperatorUnavailable):
			return utils.Conflict(c, "operator is not available on this channel")
		default:
			return utils.InternalError(c, "failed to create session")
		}
	}

	if sess.Channel == models.ChannelCall {
		callSID, err := h.calls.PlaceCall(c.Context(), sess.ID)
		if err != nil {
			log.Printf("session %d: failed to place call: %v", sess.ID, err)
			if abortErr := h.sessions.Abort(c.Context(), sess.ID, models.EndReasonConnectionFailed, time.Now()); abortErr != nil {
				log.Printf("session %d: failed to cancel after dial error: %v", sess.ID, abortErr)
			}
			return utils.InternalError(c, "failed to place call")
		}
		sess.CallSID = &callSID
	}

	return utils.Respond(c, fiber.StatusCreated, fiber.Map{
		"session": sess,
	})
}

// ActivateSession starts metering: the operator accepted the
// consultation. Call sessions activate from the telephony status
// webhook instead, so this endpoint is for chat and written channels.
func (h *SessionHandler) ActivateSession(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return utils.BadRequest(c, "invalid session id")
	}

	sess, err := h.sessions.Get(c.Context(), uint(id))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return utils.NotFound(c, "session not found")
		}
		return utils.InternalError(c, "failed to get session")
	}

	if err := h.authorizeParty(c, claims.UserID, claims.Role, sess); err != nil {
		return utils.Forbidden(c, "not a party to this session")
	}

	if err := h.sessions.Activate(c.Context(), uint(id)); err != nil {
		if errors.Is(err, session.ErrSessionNotActive) {
			return utils.Conflict(c, "session already ended")
		}
		return utils.InternalError(c, "failed to activate session")
	}

	// Re-read: a written consultation may have been flat-charged, or
	// terminated on an empty wallet, inside Activate.
	sess, err = h.sessions.Get(c.Context(), uint(id))
	if err != nil {
		return utils.InternalError(c, "failed to get session")
	}
	if sess.Status == models.SessionStatusInsufficientFunds {
		return utils.PaymentRequired(c, "insufficient balance")
	}

	return utils.Success(c, fiber.Map{
		"session": sess,
	})
}

// GetSession returns a session visible to one of its parties.
func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return utils.BadRequest(c, "invalid session id")
	}

	sess, err := h.sessions.Get(c.Context(), uint(id))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return utils.NotFound(c, "session not found")
		}
		return utils.InternalError(c, "failed to get session")
	}

	if err := h.authorizeParty(c, claims.UserID, claims.Role, sess); err != nil {
		return utils.Forbidden(c, "not a party to this session")
	}

	return utils.Success(c, fiber.Map{
		"session": sess,
	})
}

// EndSession ends an active session at the caller's request, returning
// the settled session. Ending an already-terminal session returns its
// frozen state unchanged.
func (h *SessionHandler) EndSession(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return utils.BadRequest(c, "invalid session id")
	}

	sess, err := h.sessions.Get(c.Context(), uint(id))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return utils.NotFound(c, "session not found")
		}
		return utils.InternalError(c, "failed to get session")
	}

	if err := h.authorizeParty(c, claims.UserID, claims.Role, sess); err != nil {
		return utils.Forbidden(c, "not a party to this session")
	}

	ended, err := h.sessions.End(c.Context(), uint(id), models.EndReasonClientRequest, time.Now())
	if err != nil {
		return utils.InternalError(c, "failed to end session")
	}

	return utils.Success(c, fiber.Map{
		"session": ended,
	})
}

// authorizeParty allows the session's client, its operator's user, or an
// admin.
func (h *SessionHandler) authorizeParty(c *fiber.Ctx, userID uint, role string, sess *models.ConsultationSession) error {
	if role == models.RoleAdmin || sess.ClientID == userID {
		return nil
	}
	operator, err := h.operators.GetByID(c.Context(), sess.OperatorID)
	if err == nil && operator.UserID == userID {
		return nil
	}
	return session.ErrNotSessionParty
}
