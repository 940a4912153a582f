package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"consora/internal/metrics"
	"consora/internal/models"
	"consora/internal/repositories"
	"consora/internal/services/rate"

	"github.com/shopspring/decimal"
)

type service struct {
	repo      repositories.SessionRepository
	operators repositories.OperatorRepository
	rates     rate.Resolver
	cache     WalletCache
	feeRate   decimal.Decimal
	now       func() time.Time
}

// NewService creates the session state machine service.
func NewService(repo repositories.SessionRepository, operators repositories.OperatorRepository, rates rate.Resolver, cfg Config) Service {
	if repo == nil {
		panic("session repository is required")
	}
	if operators == nil {
		panic("operator repository is required")
	}
	if rates == nil {
		panic("rate resolver is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PlatformFeeRate.IsNegative() || cfg.PlatformFeeRate.GreaterThan(decimal.NewFromInt(1)) {
		panic("platform fee rate must be within [0,1]")
	}
	return &service{
		repo:      repo,
		operators: operators,
		rates:     rates,
		cache:     cfg.WalletCache,
		feeRate:   cfg.PlatformFeeRate,
		now:       cfg.Now,
	}
}

func (s *service) Create(ctx context.Context, clientID, operatorID uint, channel string) (*models.ConsultationSession, error) {
	switch channel {
	case models.ChannelChat, models.ChannelCall, models.ChannelWritten:
	default:
		return nil, ErrInvalidChannel
	}

	operator, err := s.operators.GetByID(ctx, operatorID)
	if err != nil {
		if errors.Is(err, repositories.ErrOperatorNotFound) {
			return nil, ErrOperatorUnavailable
		}
		return nil, fmt.Errorf("failed to look up operator: %w", err)
	}
	if !operator.Online || !operator.ChannelEnabled(channel) {
		return nil, ErrOperatorUnavailable
	}

	frozen, err := s.rates.Rate(ctx, operatorID, channel)
	if err != nil {
		if errors.Is(err, rate.ErrNoRate) {
			return nil, ErrOperatorUnavailable
		}
		return nil, fmt.Errorf("failed to resolve rate: %w", err)
	}

	sess := &models.ConsultationSession{
		ClientID:      clientID,
		OperatorID:    operatorID,
		Channel:       channel,
		RatePerMinute: frozen,
		Status:        models.SessionStatusPending,
		Cost:          decimal.Zero,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

func (s *service) Get(ctx context.Context, id uint) (*models.ConsultationSession, error) {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

func (s *service) GetByCallSID(ctx context.Context, callSID string) (*models.ConsultationSession, error) {
	sess, err := s.repo.GetByCallSID(ctx, callSID)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

func (s *service) Activate(ctx context.Context, id uint) error {
	var out *models.ConsultationSession
	err := s.repo.UpdateLocked(ctx, id, func(sess *models.ConsultationSession, wallets repositories.WalletRepository) error {
		out = sess
		if sess.Status == models.SessionStatusActive {
			return nil
		}
		if sess.IsTerminal() {
			return ErrSessionNotActive
		}

		now := s.now().UTC()
		sess.Status = models.SessionStatusActive
		sess.StartedAt = &now
		sess.LastBilledAt = &now

		// Written consultations bill one flat charge up front instead of
		// per-minute ticks.
		if sess.Channel == models.ChannelWritten {
			insufficient, err := s.debitClient(ctx, sess, wallets, sess.RatePerMinute,
				fmt.Sprintf("written consultation #%d", sess.ID))
			if err != nil {
				return err
			}
			if insufficient {
				return s.terminate(ctx, sess, wallets, models.SessionStatusInsufficientFunds, models.EndReasonFundsExhausted, now)
			}
			sess.Cost = sess.RatePerMinute
		}
		return nil
	})
	if err == nil {
		s.invalidateWallets(ctx, out)
	}
	return s.mapErr(err)
}

func (s *service) AttachCall(ctx context.Context, id uint, callSID string) error {
	err := s.repo.UpdateLocked(ctx, id, func(sess *models.ConsultationSession, _ repositories.WalletRepository) error {
		if sess.IsTerminal() {
			return ErrSessionNotActive
		}
		sess.CallSID = &callSID
		return nil
	})
	return s.mapErr(err)
}

func (s *service) Tick(ctx context.Context, id uint, now time.Time) error {
	var out *models.ConsultationSession
	err := s.repo.UpdateLocked(ctx, id, func(sess *models.ConsultationSession, wallets repositories.WalletRepository) error {
		out = sess
		if sess.Status != models.SessionStatusActive {
			return ErrSessionNotActive
		}
		insufficient, err := s.billTo(ctx, sess, wallets, now.UTC())
		if err != nil {
			return err
		}
		if insufficient {
			return s.terminate(ctx, sess, wallets, models.SessionStatusInsufficientFunds, models.EndReasonFundsExhausted, now.UTC())
		}
		return nil
	})
	if err == nil {
		s.invalidateWallets(ctx, out)
	}
	return s.mapErr(err)
}

func (s *service) End(ctx context.Context, id uint, reason string, now time.Time) (*models.ConsultationSession, error) {
	var out *models.ConsultationSession
	err := s.repo.UpdateLocked(ctx, id, func(sess *models.ConsultationSession, wallets repositories.WalletRepository) error {
		out = sess
		if sess.IsTerminal() {
			// The tick/end race loser lands here: already final, no-op.
			return nil
		}

		at := now.UTC()
		if sess.Status == models.SessionStatusPending {
			sess.Status = models.SessionStatusCancelled
			sess.EndedAt = &at
			sess.EndReason = reason
			metrics.RecordSessionEnd(sess.Channel, sess.Status)
			return nil
		}

		insufficient, err := s.billTo(ctx, sess, wallets, at)
		if err != nil {
			return err
		}
		if insufficient {
			return s.terminate(ctx, sess, wallets, models.SessionStatusInsufficientFunds, models.EndReasonFundsExhausted, at)
		}
		return s.terminate(ctx, sess, wallets, models.SessionStatusCompleted, reason, at)
	})
	if err != nil {
		return nil, s.mapErr(err)
	}
	s.invalidateWallets(ctx, out)
	return out, nil
}

// EndWithProviderDuration recomputes the final cost from the provider's
// duration figure, which is authoritative over the tick-time
// approximation: overage already ticked is refunded, shortfall is
// debited (clamped to the remaining balance).
func (s *service) EndWithProviderDuration(ctx context.Context, id uint, reason string, providerSeconds int, now time.Time) (*models.ConsultationSession, error) {
	var out *models.ConsultationSession
	err := s.repo.UpdateLocked(ctx, id, func(sess *models.ConsultationSession, wallets repositories.WalletRepository) error {
		out = sess
		if sess.IsTerminal() {
			return nil
		}

		at := now.UTC()
		finalCost := chargeFor(sess.RatePerMinute, minutesFromSeconds(providerSeconds))
		delta := finalCost.Sub(sess.Cost)

		switch {
		case delta.Sign() > 0:
			insufficient, err := s.debitClient(ctx, sess, wallets, delta,
				fmt.Sprintf("consultation #%d final reconciliation", sess.ID))
			if err != nil {
				return err
			}
			if insufficient {
				// Collect no more than the wallet covered.
				finalCost = sess.Cost
			}
		case delta.Sign() < 0:
			ref := fmt.Sprintf("session-%d-reconciliation", sess.ID)
			w, err := wallets.GetByUserID(ctx, sess.ClientID)
			if err != nil {
				return err
			}
			_, err = wallets.Credit(ctx, repositories.LedgerEntry{
				WalletID:    w.ID,
				Amount:      delta.Neg(),
				Kind:        models.TransactionKindRefund,
				Description: fmt.Sprintf("consultation #%d duration reconciliation", sess.ID),
				Reference:   &ref,
				SessionID:   &sess.ID,
			})
			if err != nil && !errors.Is(err, repositories.ErrDuplicateReference) {
				return err
			}
		}

		sess.Cost = finalCost
		sess.DurationSeconds = providerSeconds
		return s.terminate(ctx, sess, wallets, models.SessionStatusCompleted, reason, at)
	})
	if err != nil {
		return nil, s.mapErr(err)
	}
	s.invalidateWallets(ctx, out)
	return out, nil
}

func (s *service) Abort(ctx context.Context, id uint, reason string, now time.Time) error {
	var out *models.ConsultationSession
	err := s.repo.UpdateLocked(ctx, id, func(sess *models.ConsultationSession, wallets repositories.WalletRepository) error {
		out = sess
		if sess.IsTerminal() {
			return nil
		}
		at := now.UTC()
		return s.terminate(ctx, sess, wallets, models.SessionStatusFailed, reason, at)
	})
	if err == nil {
		s.invalidateWallets(ctx, out)
	}
	return s.mapErr(err)
}

// billTo charges the unbilled elapsed time rounded up to whole minutes
// and advances the billed-through watermark by the rounded amount. The
// next tick therefore starts from an already-paid-for point in time and
// a catch-up never re-bills a partial minute. Reports insufficient=true
// without mutating cost when the wallet cannot cover the increment.
func (s *service) billTo(ctx context.Context, sess *models.ConsultationSession, wallets repositories.WalletRepository, now time.Time) (insufficient bool, err error) {
	// Written consultations are billed once, at activation; the elapsed
	// time between question and answer is never metered.
	if sess.Channel == models.ChannelWritten {
		return false, nil
	}
	if sess.LastBilledAt == nil {
		return false, nil
	}
	minutes := billedMinutes(now.Sub(*sess.LastBilledAt))
	if minutes == 0 {
		return false, nil
	}

	amount := chargeFor(sess.RatePerMinute, minutes)
	insufficient, err = s.debitClient(ctx, sess, wallets, amount,
		fmt.Sprintf("consultation #%d: %d min @ %s/min", sess.ID, minutes, sess.RatePerMinute.StringFixed(2)))
	if err != nil || insufficient {
		return insufficient, err
	}

	sess.Cost = sess.Cost.Add(amount)
	billedThrough := sess.LastBilledAt.Add(time.Duration(minutes) * time.Minute)
	sess.LastBilledAt = &billedThrough
	if sess.StartedAt != nil {
		if d := int(now.Sub(*sess.StartedAt).Seconds()); d > sess.DurationSeconds {
			sess.DurationSeconds = d
		}
	}
	return false, nil
}

func (s *service) debitClient(ctx context.Context, sess *models.ConsultationSession, wallets repositories.WalletRepository, amount decimal.Decimal, description string) (insufficient bool, err error) {
	w, err := wallets.GetByUserID(ctx, sess.ClientID)
	if err != nil {
		return false, fmt.Errorf("failed to load client wallet: %w", err)
	}
	_, err = wallets.Debit(ctx, repositories.LedgerEntry{
		WalletID:    w.ID,
		Amount:      amount,
		Kind:        models.TransactionKindConsultationCharge,
		Description: description,
		SessionID:   &sess.ID,
	})
	if errors.Is(err, repositories.ErrInsufficientBalance) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// terminate freezes the session in a terminal state and settles the
// operator's earning inside the same database transaction as the final
// billing pass.
func (s *service) terminate(ctx context.Context, sess *models.ConsultationSession, wallets repositories.WalletRepository, status, reason string, now time.Time) error {
	sess.Status = status
	sess.EndedAt = &now
	sess.EndReason = reason
	if sess.DurationSeconds == 0 && sess.StartedAt != nil {
		if d := int(now.Sub(*sess.StartedAt).Seconds()); d > 0 {
			sess.DurationSeconds = d
		}
	}
	metrics.RecordSessionEnd(sess.Channel, status)
	return s.settleEarning(ctx, sess, wallets)
}

func (s *service) settleEarning(ctx context.Context, sess *models.ConsultationSession, wallets repositories.WalletRepository) error {
	if sess.Cost.Sign() <= 0 {
		return nil
	}

	earning := sess.Cost.Mul(decimal.NewFromInt(1).Sub(s.feeRate)).Round(2)
	sess.OperatorEarning = earning
	if earning.Sign() <= 0 {
		return nil
	}

	operator, err := s.operators.GetByID(ctx, sess.OperatorID)
	if err != nil {
		return fmt.Errorf("failed to load operator for settlement: %w", err)
	}

	w, err := wallets.GetByUserID(ctx, operator.UserID)
	if errors.Is(err, repositories.ErrWalletNotFound) {
		w = &models.Wallet{UserID: operator.UserID, Balance: decimal.Zero, Currency: "EUR"}
		if err := wallets.Create(ctx, w); err != nil {
			return fmt.Errorf("failed to create operator wallet: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to load operator wallet: %w", err)
	}

	ref := fmt.Sprintf("session-%d-earning", sess.ID)
	_, err = wallets.Credit(ctx, repositories.LedgerEntry{
		WalletID:    w.ID,
		Amount:      earning,
		Kind:        models.TransactionKindPayout,
		Description: fmt.Sprintf("earnings for consultation #%d", sess.ID),
		Reference:   &ref,
		SessionID:   &sess.ID,
	})
	if err != nil && !errors.Is(err, repositories.ErrDuplicateReference) {
		return fmt.Errorf("failed to credit operator earning: %w", err)
	}
	return nil
}

// invalidateWallets drops the cached balances a committed billing pass
// may have changed. The cache is read-through, so dropping a key that
// was not touched only costs a reload.
func (s *service) invalidateWallets(ctx context.Context, sess *models.ConsultationSession) {
	if s.cache == nil || sess == nil {
		return
	}
	s.cache.InvalidateWallet(ctx, sess.ClientID)
	if sess.OperatorEarning.Sign() > 0 {
		if operator, err := s.operators.GetByID(ctx, sess.OperatorID); err == nil {
			s.cache.InvalidateWallet(ctx, operator.UserID)
		}
	}
}

func (s *service) mapErr(err error) error {
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return ErrSessionNotFound
	}
	return err
}
