package telephony

import (
	"context"
	"strings"
	"testing"
	"time"

	"consora/internal/models"
	"consora/internal/repositories"
	"consora/internal/services/session"
	"consora/internal/services/wallet"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSessions records the transitions the bridge requested.
type stubSessions struct {
	bySID      map[string]*models.ConsultationSession
	byID       map[uint]*models.ConsultationSession
	activated  []uint
	ended      []uint
	endedWith  map[uint]int
	aborted    []uint
	attachedTo map[uint]string
}

func newStubSessions(sessions ...*models.ConsultationSession) *stubSessions {
	s := &stubSessions{
		bySID:      make(map[string]*models.ConsultationSession),
		byID:       make(map[uint]*models.ConsultationSession),
		endedWith:  make(map[uint]int),
		attachedTo: make(map[uint]string),
	}
	for _, sess := range sessions {
		s.byID[sess.ID] = sess
		if sess.CallSID != nil {
			s.bySID[*sess.CallSID] = sess
		}
	}
	return s
}

func (s *stubSessions) Create(context.Context, uint, uint, string) (*models.ConsultationSession, error) {
	return nil, nil
}

func (s *stubSessions) Get(_ context.Context, id uint) (*models.ConsultationSession, error) {
	sess, ok := s.byID[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return sess, nil
}

func (s *stubSessions) GetByCallSID(_ context.Context, callSID string) (*models.ConsultationSession, error) {
	sess, ok := s.bySID[callSID]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return sess, nil
}

func (s *stubSessions) Activate(_ context.Context, id uint) error {
	s.activated = append(s.activated, id)
	return nil
}

func (s *stubSessions) AttachCall(_ context.Context, id uint, callSID string) error {
	s.attachedTo[id] = callSID
	return nil
}

func (s *stubSessions) Tick(context.Context, uint, time.Time) error { return nil }

func (s *stubSessions) End(_ context.Context, id uint, _ string, _ time.Time) (*models.ConsultationSession, error) {
	s.ended = append(s.ended, id)
	return s.byID[id], nil
}

func (s *stubSessions) EndWithProviderDuration(_ context.Context, id uint, _ string, seconds int, _ time.Time) (*models.ConsultationSession, error) {
	s.endedWith[id] = seconds
	return s.byID[id], nil
}

func (s *stubSessions) Abort(_ context.Context, id uint, _ string, _ time.Time) error {
	s.aborted = append(s.aborted, id)
	return nil
}

// stubWallets serves fixed balances for Answer's pre-connect check.
type stubWallets struct {
	balances map[uint]string
}

func (w *stubWallets) CreateWallet(context.Context, uint, string) (*models.Wallet, error) {
	return nil, nil
}

func (w *stubWallets) GetWallet(_ context.Context, userID uint) (*models.Wallet, error) {
	balance, ok := w.balances[userID]
	if !ok {
		return nil, wallet.ErrWalletNotFound
	}
	return &models.Wallet{UserID: userID, Balance: decimal.RequireFromString(balance)}, nil
}

func (w *stubWallets) GetByID(context.Context, uint) (*models.Wallet, error) {
	return nil, wallet.ErrWalletNotFound
}

func (w *stubWallets) Debit(context.Context, wallet.EntryRequest) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (w *stubWallets) Credit(context.Context, wallet.EntryRequest) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (w *stubWallets) Transactions(context.Context, uint, int, int) ([]models.Transaction, error) {
	return nil, nil
}

type stubOperators struct {
	operators map[uint]*models.Operator
}

func (r *stubOperators) Create(context.Context, *models.Operator) error { return nil }
func (r *stubOperators) GetByID(_ context.Context, id uint) (*models.Operator, error) {
	o, ok := r.operators[id]
	if !ok {
		return nil, repositories.ErrOperatorNotFound
	}
	return o, nil
}
func (r *stubOperators) GetByUserID(context.Context, uint) (*models.Operator, error) {
	return nil, repositories.ErrOperatorNotFound
}
func (r *stubOperators) SetOnline(context.Context, uint, bool) error { return nil }

// stubEvents implements replay protection in memory.
type stubEvents struct {
	seen     map[string]bool
	records  []models.ProviderEvent
	calls    map[string]*models.CallRecord
	statuses map[string]string
}

func newStubEvents() *stubEvents {
	return &stubEvents{
		seen:     make(map[string]bool),
		calls:    make(map[string]*models.CallRecord),
		statuses: make(map[string]string),
	}
}

func (e *stubEvents) Record(_ context.Context, event *models.ProviderEvent) error {
	key := event.Provider + ":" + event.EventID
	if e.seen[key] {
		return repositories.ErrDuplicateEvent
	}
	e.seen[key] = true
	e.records = append(e.records, *event)
	return nil
}

func (e *stubEvents) Seen(_ context.Context, provider, eventID string) (bool, error) {
	return e.seen[provider+":"+eventID], nil
}

func (e *stubEvents) CreateCallRecord(_ context.Context, record *models.CallRecord) error {
	e.calls[record.CallSID] = record
	return nil
}

func (e *stubEvents) GetCallBySID(_ context.Context, callSID string) (*models.CallRecord, error) {
	record, ok := e.calls[callSID]
	if !ok {
		return nil, repositories.ErrCallRecordNotFound
	}
	return record, nil
}

func (e *stubEvents) UpdateCallStatus(_ context.Context, callSID, status string) error {
	if _, ok := e.calls[callSID]; !ok {
		return repositories.ErrCallRecordNotFound
	}
	e.statuses[callSID] = status
	return nil
}

func (e *stubEvents) SetRecordingURL(_ context.Context, callSID, url string) error {
	record, ok := e.calls[callSID]
	if !ok {
		return repositories.ErrCallRecordNotFound
	}
	record.RecordingURL = url
	return nil
}

type allowAllValidator struct{}

func (allowAllValidator) Validate(string, map[string]string, string) bool { return true }

type stubDialer struct {
	sid      string
	lastTo   string
	lastFrom string
	lastURL  string
}

func (d *stubDialer) CreateCall(to, from, voiceURL, _ string) (string, error) {
	d.lastTo, d.lastFrom, d.lastURL = to, from, voiceURL
	return d.sid, nil
}

func callSession(id uint, sid string) *models.ConsultationSession {
	return &models.ConsultationSession{
		ID:            id,
		ClientID:      10,
		OperatorID:    1,
		Channel:       models.ChannelCall,
		Status:        models.SessionStatusActive,
		RatePerMinute: decimal.RequireFromString("1.20"),
		CallSID:       &sid,
	}
}

func newBridge(sessions *stubSessions, wallets *stubWallets, events *stubEvents, dialer Dialer) Service {
	operators := &stubOperators{operators: map[uint]*models.Operator{
		1: {ID: 1, UserID: 100, Online: true, CallEnabled: true, PhoneNumber: "+33123456789"},
	}}
	return NewService(sessions, wallets, operators, events, allowAllValidator{}, dialer, Config{
		PlatformNumber:    "+33700000000",
		VoiceURL:          "https://api.example.com/webhooks/telephony/voice",
		StatusCallbackURL: "https://api.example.com/webhooks/telephony/status",
	})
}

func TestHandleStatusTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("in-progress activates the session", func(t *testing.T) {
		sessions := newStubSessions(callSession(1, "CA123"))
		events := newStubEvents()
		bridge := newBridge(sessions, &stubWallets{}, events, nil)

		err := bridge.HandleStatus(ctx, StatusEvent{EventID: "CA123:in-progress", CallSID: "CA123", Status: StatusInProgress})
		require.NoError(t, err)
		assert.Equal(t, []uint{1}, sessions.activated)
	})

	t.Run("completed settles with the provider duration", func(t *testing.T) {
		sessions := newStubSessions(callSession(1, "CA123"))
		bridge := newBridge(sessions, &stubWallets{}, newStubEvents(), nil)

		err := bridge.HandleStatus(ctx, StatusEvent{
			EventID: "CA123:completed", CallSID: "CA123", Status: StatusCompleted, DurationSeconds: 125,
		})
		require.NoError(t, err)
		assert.Equal(t, 125, sessions.endedWith[1])
	})

	t.Run("busy aborts the session", func(t *testing.T) {
		sessions := newStubSessions(callSession(1, "CA123"))
		bridge := newBridge(sessions, &stubWallets{}, newStubEvents(), nil)

		err := bridge.HandleStatus(ctx, StatusEvent{EventID: "CA123:busy", CallSID: "CA123", Status: StatusBusy})
		require.NoError(t, err)
		assert.Equal(t, []uint{1}, sessions.aborted)
	})

	t.Run("ringing is informational", func(t *testing.T) {
		sessions := newStubSessions(callSession(1, "CA123"))
		bridge := newBridge(sessions, &stubWallets{}, newStubEvents(), nil)

		err := bridge.HandleStatus(ctx, StatusEvent{EventID: "CA123:ringing", CallSID: "CA123", Status: StatusRinging})
		require.NoError(t, err)
		assert.Empty(t, sessions.activated)
		assert.Empty(t, sessions.aborted)
	})

	t.Run("unknown call is acknowledged without effect", func(t *testing.T) {
		sessions := newStubSessions()
		bridge := newBridge(sessions, &stubWallets{}, newStubEvents(), nil)

		err := bridge.HandleStatus(ctx, StatusEvent{EventID: "CA999:completed", CallSID: "CA999", Status: StatusCompleted})
		require.NoError(t, err)
		assert.Empty(t, sessions.endedWith)
	})
}

func TestHandleStatusReplay(t *testing.T) {
	ctx := context.Background()
	sessions := newStubSessions(callSession(1, "CA123"))
	bridge := newBridge(sessions, &stubWallets{}, newStubEvents(), nil)

	evt := StatusEvent{EventID: "CA123:completed", CallSID: "CA123", Status: StatusCompleted, DurationSeconds: 125}
	require.NoError(t, bridge.HandleStatus(ctx, evt))
	require.NoError(t, bridge.HandleStatus(ctx, evt))

	// The redelivery is accepted but the transition ran once.
	assert.Len(t, sessions.endedWith, 1)
}

func TestPlaceCall(t *testing.T) {
	ctx := context.Background()

	t.Run("dials the operator and links the call", func(t *testing.T) {
		sess := &models.ConsultationSession{
			ID: 1, ClientID: 10, OperatorID: 1, Channel: models.ChannelCall,
			Status: models.SessionStatusPending, RatePerMinute: decimal.RequireFromString("1.20"),
		}
		sessions := newStubSessions(sess)
		events := newStubEvents()
		dialer := &stubDialer{sid: "CA777"}
		bridge := newBridge(sessions, &stubWallets{}, events, dialer)

		callSID, err := bridge.PlaceCall(ctx, 1)
		require.NoError(t, err)

		assert.Equal(t, "CA777", callSID)
		assert.Equal(t, "+33123456789", dialer.lastTo)
		assert.Equal(t, "+33700000000", dialer.lastFrom)
		assert.Contains(t, dialer.lastURL, "session_id=1")
		assert.Equal(t, "CA777", sessions.attachedTo[1])
		require.Contains(t, events.calls, "CA777")
		assert.Equal(t, uint(1), events.calls["CA777"].SessionID)
	})

	t.Run("rejects a non-call session", func(t *testing.T) {
		sess := &models.ConsultationSession{ID: 1, Channel: models.ChannelChat}
		bridge := newBridge(newStubSessions(sess), &stubWallets{}, newStubEvents(), &stubDialer{sid: "CA1"})

		_, err := bridge.PlaceCall(ctx, 1)
		assert.ErrorIs(t, err, ErrNotCallChannel)
	})
}

func TestAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("connects a funded caller to the masked number", func(t *testing.T) {
		sessions := newStubSessions(callSession(1, "CA123"))
		wallets := &stubWallets{balances: map[uint]string{10: "10.00"}}
		bridge := newBridge(sessions, wallets, newStubEvents(), nil)

		doc, err := bridge.Answer(ctx, 1)
		require.NoError(t, err)
		assert.Contains(t, doc, "<Dial")
		assert.Contains(t, doc, "+33123456789")
		assert.Contains(t, doc, "record-from-answer")
	})

	t.Run("low balance gets the top-up notice", func(t *testing.T) {
		sessions := newStubSessions(callSession(1, "CA123"))
		wallets := &stubWallets{balances: map[uint]string{10: "0.50"}}
		bridge := newBridge(sessions, wallets, newStubEvents(), nil)

		doc, err := bridge.Answer(ctx, 1)
		require.NoError(t, err)
		assert.Contains(t, doc, "<Hangup")
		assert.True(t, strings.Contains(doc, "balance"), "doc: %s", doc)
	})

	t.Run("terminal session hangs up", func(t *testing.T) {
		sess := callSession(1, "CA123")
		sess.Status = models.SessionStatusCompleted
		bridge := newBridge(newStubSessions(sess), &stubWallets{}, newStubEvents(), nil)

		doc, err := bridge.Answer(ctx, 1)
		require.NoError(t, err)
		assert.Contains(t, doc, "<Hangup")
		assert.NotContains(t, doc, "<Dial")
	})
}

func TestHandleRecording(t *testing.T) {
	ctx := context.Background()
	sessions := newStubSessions(callSession(1, "CA123"))
	events := newStubEvents()
	require.NoError(t, events.CreateCallRecord(ctx, &models.CallRecord{SessionID: 1, CallSID: "CA123"}))
	bridge := newBridge(sessions, &stubWallets{}, events, nil)

	evt := RecordingEvent{EventID: "RE1", CallSID: "CA123", RecordingURL: "https://recordings.example.com/RE1"}
	require.NoError(t, bridge.HandleRecording(ctx, evt))
	assert.Equal(t, "https://recordings.example.com/RE1", events.calls["CA123"].RecordingURL)

	// Replay keeps the stored URL and stays silent.
	require.NoError(t, bridge.HandleRecording(ctx, evt))
}
