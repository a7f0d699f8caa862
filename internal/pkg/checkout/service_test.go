package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tillworks/till/app/models"
)

// fakeRepository is an in-memory Repository with the same single-writer
// guarantees the database gives the real one.
type fakeRepository struct {
	mu       sync.Mutex
	sessions map[uint]*models.PaymentSession
	sales    map[uint]*models.Sale
	events   []models.TerminalWebhookEvent

	nextSessionID uint
	nextSaleID    uint
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		sessions: make(map[uint]*models.PaymentSession),
		sales:    make(map[uint]*models.Sale),
	}
}

func (f *fakeRepository) CreateSession(session *models.PaymentSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSessionID++
	session.ID = f.nextSessionID
	if session.Status == "" {
		session.Status = models.PaymentStatusPending
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	cp := *session
	f.sessions[session.ID] = &cp
	return nil
}

func (f *fakeRepository) GetSession(id uint) (*models.PaymentSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *session
	return &cp, nil
}

func (f *fakeRepository) FindPendingSession(tenantID uint, invoice string) (*models.PaymentSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.PaymentSession
	for _, s := range f.sessions {
		if s.TenantID != tenantID || s.InvoiceNumber != invoice || s.Status != models.PaymentStatusPending {
			continue
		}
		if best == nil || s.StartedAt.After(best.StartedAt) || (s.StartedAt.Equal(best.StartedAt) && s.ID > best.ID) {
			best = s
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *best
	return &cp, nil
}

func (f *fakeRepository) FindSessionByReqTxnID(reqTxnID string) (*models.PaymentSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.PaymentSession
	for _, s := range f.sessions {
		if s.ReqTxnID != reqTxnID {
			continue
		}
		if best == nil || s.StartedAt.After(best.StartedAt) || (s.StartedAt.Equal(best.StartedAt) && s.ID > best.ID) {
			best = s
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *best
	return &cp, nil
}

func (f *fakeRepository) FindLatestSessionByInvoice(tenantID uint, invoice string) (*models.PaymentSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.PaymentSession
	for _, s := range f.sessions {
		if s.InvoiceNumber != invoice {
			continue
		}
		if tenantID != 0 && s.TenantID != tenantID {
			continue
		}
		if best == nil || s.StartedAt.After(best.StartedAt) || (s.StartedAt.Equal(best.StartedAt) && s.ID > best.ID) {
			best = s
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *best
	return &cp, nil
}

func (f *fakeRepository) StampSaleID(sessionID, saleID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if session.SaleID == nil {
		id := saleID
		session.SaleID = &id
		return true, nil
	}
	if *session.SaleID == saleID {
		return false, nil
	}
	return false, fmt.Errorf("session %d: %w", sessionID, ErrSaleConflict)
}

func (f *fakeRepository) CreateSaleAndStamp(sessionID uint, sale *models.Sale) (uint, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return 0, false, gorm.ErrRecordNotFound
	}
	if session.SaleID != nil {
		return *session.SaleID, false, nil
	}
	f.nextSaleID++
	sale.ID = f.nextSaleID
	cp := *sale
	f.sales[sale.ID] = &cp
	id := sale.ID
	session.SaleID = &id
	return sale.ID, true, nil
}

func (f *fakeRepository) TransitionStatus(sessionID uint, newStatus string, rawPayload string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if session.Status == models.PaymentStatusPending {
		session.Status = newStatus
		session.LastPayload = rawPayload
		return true, nil
	}
	if session.Status == newStatus {
		return false, nil
	}
	return false, fmt.Errorf("session %d is %s, refusing %s: %w",
		sessionID, session.Status, newStatus, ErrStatusConflict)
}

func (f *fakeRepository) GetSale(id uint) (*models.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sale, ok := f.sales[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sale
	return &cp, nil
}

func (f *fakeRepository) AppendWebhookEvent(event *models.TerminalWebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event.ID = uint(len(f.events) + 1)
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeRepository) RecentWebhookEvents(limit int) ([]models.TerminalWebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.events) {
		limit = len(f.events)
	}
	out := make([]models.TerminalWebhookEvent, 0, limit)
	for i := len(f.events) - 1; i >= len(f.events)-limit; i-- {
		out = append(out, f.events[i])
	}
	return out, nil
}

func (f *fakeRepository) saleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sales)
}

func testSnapshot() *models.PosSnapshot {
	return &models.PosSnapshot{
		Items: []models.PosSnapshotItem{
			{Name: "Americano", SKU: "COF-01", Quantity: 2, UnitPrice: 3.50, LineTotal: 7.00},
			{Name: "Croissant", SKU: "BAK-02", Quantity: 1, UnitPrice: 35.50, LineTotal: 35.50},
		},
		Subtotal:      42.50,
		DiscountTotal: 0,
		TaxTotal:      0,
		Total:         42.50,
		CapturedAt:    time.Now(),
	}
}

func startTestSession(t *testing.T, svc *Service, tenantID uint, invoice, reqTxnID string) *models.PaymentSession {
	t.Helper()
	session, err := svc.StartSession(tenantID, invoice, reqTxnID, testSnapshot())
	require.NoError(t, err)
	return session
}

func TestStartSession_Validation(t *testing.T) {
	svc := NewService(newFakeRepository())

	_, err := svc.StartSession(0, "INV-1", "", testSnapshot())
	assert.Error(t, err)

	_, err = svc.StartSession(7, "", "", testSnapshot())
	assert.Error(t, err)

	_, err = svc.StartSession(7, "INV-1", "", nil)
	assert.ErrorIs(t, err, ErrMissingSnapshot)
}

func TestFinalize_NoPendingSession(t *testing.T) {
	svc := NewService(newFakeRepository())

	_, err := svc.Finalize(7, "INV-404")
	assert.ErrorIs(t, err, ErrNoPendingSession)
}

func TestFinalize_MaterializesSaleOnce(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	session := startTestSession(t, svc, 7, "INV-1001", "a1b2c3")

	saleID, err := svc.Finalize(7, "INV-1001")
	require.NoError(t, err)
	require.NotZero(t, saleID)

	sale, err := repo.GetSale(saleID)
	require.NoError(t, err)
	assert.Equal(t, uint(7), sale.TenantID)
	assert.Equal(t, "INV-1001", sale.InvoiceNumber)
	assert.Equal(t, 42.50, sale.Total)
	assert.Equal(t, 42.50, sale.Subtotal)
	assert.Equal(t, models.PaymentMethodCardTerminal, sale.PaymentMethod)
	assert.NotEmpty(t, sale.UUID)

	var items []models.PosSnapshotItem
	require.NoError(t, json.Unmarshal([]byte(sale.ItemsJSON), &items))
	assert.Len(t, items, 2)

	// Finalize resolves the sale, not the session status. The terminal
	// confirmation reconciles that later.
	fresh, err := repo.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, fresh.Status)
	require.NotNil(t, fresh.SaleID)
	assert.Equal(t, saleID, *fresh.SaleID)

	// Repeating the finalize returns the same sale and creates nothing new.
	again, err := svc.Finalize(7, "INV-1001")
	require.NoError(t, err)
	assert.Equal(t, saleID, again)
	assert.Equal(t, 1, repo.saleCount())
}

func TestMaterialize_ConcurrentCallersAgreeOnOneSale(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	session := startTestSession(t, svc, 7, "INV-2000", "")

	const callers = 16
	ids := make([]uint, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fresh, err := repo.GetSession(session.ID)
			if err != nil {
				t.Errorf("session reload: %v", err)
				return
			}
			id, _, err := svc.Materialize(fresh)
			if err != nil {
				t.Errorf("materialize: %v", err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, repo.saleCount())
	for i := 1; i < callers; i++ {
		assert.Equal(t, ids[0], ids[i])
	}
}

func TestMaterialize_MissingSnapshot(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	session := &models.PaymentSession{
		TenantID:      7,
		InvoiceNumber: "INV-3000",
		Status:        models.PaymentStatusPending,
	}
	require.NoError(t, repo.CreateSession(session))

	_, _, err := svc.Materialize(session)
	assert.ErrorIs(t, err, ErrMissingSnapshot)
	assert.Zero(t, repo.saleCount())
}

func TestProcessTerminalEvent_ApprovedByReqTxnID(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	session := startTestSession(t, svc, 7, "INV-1001", "a1b2c3")

	raw := []byte(`{"req_txn_id":"a1b2c3","state":"APPROVED","amount":42.50}`)
	require.NoError(t, svc.ProcessTerminalEvent(raw))

	fresh, err := repo.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, fresh.Status)
	require.NotNil(t, fresh.SaleID)

	sale, err := repo.GetSale(*fresh.SaleID)
	require.NoError(t, err)
	assert.Equal(t, 42.50, sale.Total)

	events, err := repo.RecentWebhookEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(StateApproved), events[0].NormalizedState)
	assert.Equal(t, "a1b2c3", events[0].ReqTxnID)
}

func TestProcessTerminalEvent_ApprovedByInvoiceFallback(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	session := startTestSession(t, svc, 7, "INV-1001", "")

	// No transaction id anywhere in the payload; only the invoice correlates.
	raw := []byte(`{"invoicenumber":"INV-1001","state":"approved","amount":42.50}`)
	require.NoError(t, svc.ProcessTerminalEvent(raw))

	fresh, err := repo.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, fresh.Status)
	require.NotNil(t, fresh.SaleID)
	assert.Equal(t, 1, repo.saleCount())
}

func TestProcessTerminalEvent_DeclinedDoesNotMaterialize(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	session := startTestSession(t, svc, 7, "INV-1001", "a1b2c3")

	raw := []byte(`{"reqtxnid":"a1b2c3","state":"declined_by_issuer"}`)
	require.NoError(t, svc.ProcessTerminalEvent(raw))

	fresh, err := repo.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusDeclined, fresh.Status)
	assert.Nil(t, fresh.SaleID)
	assert.Zero(t, repo.saleCount())
}

func TestProcessTerminalEvent_RedeliveryIsIdempotent(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	session := startTestSession(t, svc, 7, "INV-1001", "a1b2c3")

	raw := []byte(`{"reqtxnid":"a1b2c3","state":"APPROVED","amount":42.50}`)
	require.NoError(t, svc.ProcessTerminalEvent(raw))
	require.NoError(t, svc.ProcessTerminalEvent(raw))
	require.NoError(t, svc.ProcessTerminalEvent(raw))

	fresh, err := repo.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, fresh.Status)
	assert.Equal(t, 1, repo.saleCount())

	// Every delivery is audited, including the redeliveries.
	events, err := repo.RecentWebhookEvents(10)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestProcessTerminalEvent_ConflictingApprovalAfterDecline(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	session := startTestSession(t, svc, 7, "INV-1001", "a1b2c3")

	require.NoError(t, svc.ProcessTerminalEvent([]byte(`{"reqtxnid":"a1b2c3","state":"DECLINED"}`)))
	require.NoError(t, svc.ProcessTerminalEvent([]byte(`{"reqtxnid":"a1b2c3","state":"APPROVED"}`)))

	// The recorded outcome stands and no sale appears for the conflicting
	// approval.
	fresh, err := repo.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusDeclined, fresh.Status)
	assert.Nil(t, fresh.SaleID)
	assert.Zero(t, repo.saleCount())
}

func TestProcessTerminalEvent_OrphanIsAuditedAndDropped(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)

	raw := []byte(`{"reqtxnid":"nobody","invoicenumber":"INV-9999","state":"approved"}`)
	require.NoError(t, svc.ProcessTerminalEvent(raw))

	assert.Zero(t, repo.saleCount())
	events, err := repo.RecentWebhookEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "INV-9999", events[0].InvoiceNumber)
}

func TestProcessTerminalEvent_MalformedIsAudited(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)

	require.NoError(t, svc.ProcessTerminalEvent([]byte("not json at all")))

	events, err := repo.RecentWebhookEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(StatePending), events[0].NormalizedState)
	assert.Equal(t, "not json at all", events[0].PayloadJSON)
}

func TestProcessTerminalEvent_PendingStateTouchesNothing(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	session := startTestSession(t, svc, 7, "INV-1001", "a1b2c3")

	require.NoError(t, svc.ProcessTerminalEvent([]byte(`{"reqtxnid":"a1b2c3","state":"AUTH_PENDING"}`)))

	fresh, err := repo.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, fresh.Status)
	assert.Nil(t, fresh.SaleID)
}

func TestProcessTerminalEvent_WebhookAfterForceFinalize(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	session := startTestSession(t, svc, 7, "INV-1001", "a1b2c3")

	saleID, err := svc.Finalize(7, "INV-1001")
	require.NoError(t, err)

	// The late confirmation resolves the status but reuses the existing sale.
	require.NoError(t, svc.ProcessTerminalEvent([]byte(`{"reqtxnid":"a1b2c3","state":"APPROVED"}`)))

	fresh, err := repo.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, fresh.Status)
	require.NotNil(t, fresh.SaleID)
	assert.Equal(t, saleID, *fresh.SaleID)
	assert.Equal(t, 1, repo.saleCount())
}

func TestProcessTerminalEvent_DisabledStillAudits(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	session := startTestSession(t, svc, 7, "INV-1001", "a1b2c3")

	models.SetAppSettingsForTesting(&models.AppSettings{
		SiteTitle:              "Till",
		TerminalWebhookEnabled: false,
		JobQueueWorkerCount:    5,
		WebhookRetryMinutes:    2,
	})
	t.Cleanup(func() { models.SetAppSettingsForTesting(nil) })

	require.NoError(t, svc.ProcessTerminalEvent([]byte(`{"reqtxnid":"a1b2c3","state":"APPROVED","amount":42.50}`)))

	// The audit row is written even with processing disabled; the session is
	// left untouched and no sale appears.
	events, err := repo.RecentWebhookEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(StateApproved), events[0].NormalizedState)

	fresh, err := repo.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, fresh.Status)
	assert.Nil(t, fresh.SaleID)
	assert.Zero(t, repo.saleCount())
}

func TestProcessTerminalEvent_ForceFinalizeAfterWebhook(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	session := startTestSession(t, svc, 7, "INV-1001", "a1b2c3")

	// The approval lands first and resolves the session completely.
	require.NoError(t, svc.ProcessTerminalEvent([]byte(`{"reqtxnid":"a1b2c3","state":"APPROVED","amount":42.50}`)))

	// The clerk's finalize arrives late: nothing pending remains, and no
	// second sale appears in either order of arrival.
	_, err := svc.Finalize(7, "INV-1001")
	assert.ErrorIs(t, err, ErrNoPendingSession)

	fresh, err := repo.GetSession(session.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh.SaleID)
	sale, err := repo.GetSale(*fresh.SaleID)
	require.NoError(t, err)
	assert.Equal(t, 42.50, sale.Total)
	assert.Equal(t, 1, repo.saleCount())
}

func TestTransitionStatus_Conflict(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	session := startTestSession(t, svc, 7, "INV-1001", "")

	transitioned, err := svc.TransitionStatus(session, StateDeclined, "{}")
	require.NoError(t, err)
	assert.True(t, transitioned)

	// Repeating the recorded outcome is a quiet no-op.
	transitioned, err = svc.TransitionStatus(session, StateDeclined, "{}")
	require.NoError(t, err)
	assert.False(t, transitioned)

	// A conflicting outcome never overwrites.
	_, err = svc.TransitionStatus(session, StateApproved, "{}")
	assert.ErrorIs(t, err, ErrStatusConflict)
}

func TestAssignSaleID(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	session := startTestSession(t, svc, 7, "INV-1001", "")

	require.NoError(t, svc.AssignSaleID(session.ID, 10))
	require.NoError(t, svc.AssignSaleID(session.ID, 10))

	err := svc.AssignSaleID(session.ID, 11)
	assert.ErrorIs(t, err, ErrSaleConflict)
}

func TestStatus_ReadModel(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	startTestSession(t, svc, 7, "INV-1001", "a1b2c3")

	status, err := svc.Status(7, "INV-1001")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, status.Status)
	assert.Nil(t, status.SaleID)

	require.NoError(t, svc.ProcessTerminalEvent([]byte(`{"reqtxnid":"a1b2c3","state":"APPROVED"}`)))

	status, err = svc.Status(7, "INV-1001")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, status.Status)
	require.NotNil(t, status.SaleID)
	assert.NotEmpty(t, status.SaleUUID)
	assert.Equal(t, 42.50, status.SaleTotal)

	_, err = svc.Status(7, "INV-UNKNOWN")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStatus_TenantIsolation(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	startTestSession(t, svc, 7, "INV-1001", "")

	_, err := svc.Status(8, "INV-1001")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestLookupSession_PrefersReqTxnID(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	byTxn := startTestSession(t, svc, 7, "INV-A", "txn-1")
	startTestSession(t, svc, 7, "INV-B", "")

	event := ParseTerminalEvent([]byte(`{"reqtxnid":"txn-1","invoicenumber":"INV-B"}`))
	found, err := svc.lookupSession(event)
	require.NoError(t, err)
	assert.Equal(t, byTxn.ID, found.ID)
}

func TestLookupSession_NoCorrelation(t *testing.T) {
	svc := NewService(newFakeRepository())

	event := ParseTerminalEvent([]byte(`{"state":"approved"}`))
	_, err := svc.lookupSession(event)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}
