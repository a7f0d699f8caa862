package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tillworks/till/app/models"
	"github.com/tillworks/till/internal/pkg/metrics/counter"
)

// Service owns the payment-session state machine and the idempotent sale
// materialization. The finalize path and the webhook path both funnel into
// Materialize; the conditional stamp in the repository is what makes their
// race safe.
type Service struct {
	repo Repository
}

// NewService creates a checkout service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a checkout service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// StartSession opens a payment session for a checkout attempt. Invoked by the
// checkout-initiation collaborator, which also enforces that at most one
// pending session exists per (tenant, invoice).
func (s *Service) StartSession(tenantID uint, invoice, reqTxnID string, snapshot *models.PosSnapshot) (*models.PaymentSession, error) {
	if tenantID == 0 || invoice == "" {
		return nil, errors.New("tenant_id and invoice_number are required")
	}
	if snapshot == nil {
		return nil, ErrMissingSnapshot
	}
	snapJSON, err := snapshot.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("serialize pos snapshot: %w", err)
	}

	session := &models.PaymentSession{
		TenantID:      tenantID,
		InvoiceNumber: invoice,
		ReqTxnID:      reqTxnID,
		Status:        models.PaymentStatusPending,
		PosSnapshot:   snapJSON,
		StartedAt:     time.Now(),
		LastSeenAt:    time.Now(),
	}
	if err := s.repo.CreateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Materialize converts the session's pos snapshot into a durable sale row,
// exactly once per session, and returns the sale id that won. created is true
// only for the call whose insert survived.
func (s *Service) Materialize(session *models.PaymentSession) (uint, bool, error) {
	if session == nil {
		return 0, false, errors.New("session is required")
	}

	// Primary defense against materializing the same checkout twice.
	if session.SaleID != nil {
		return *session.SaleID, false, nil
	}

	snap, err := models.ParsePosSnapshot(session.PosSnapshot)
	if err != nil {
		if errors.Is(err, models.ErrEmptySnapshot) {
			return 0, false, ErrMissingSnapshot
		}
		return 0, false, fmt.Errorf("decode pos snapshot for session %d: %w", session.ID, err)
	}

	sale, err := buildSale(session, snap)
	if err != nil {
		return 0, false, err
	}

	winnerID, created, err := s.repo.CreateSaleAndStamp(session.ID, sale)
	if err != nil {
		return 0, false, err
	}
	if !created {
		// A concurrent finalize/webhook call stamped first; our insert was
		// rolled back and the winner's id stands.
		log.Warnf("[Checkout] Session %d was materialized concurrently, keeping sale %d", session.ID, winnerID)
		counter.AddMaterializeRace()
	}
	saleID := winnerID
	session.SaleID = &saleID
	return winnerID, created, nil
}

// Finalize is the clerk-triggered completion path: materialize now, leave the
// session pending until the terminal confirmation reconciles it.
func (s *Service) Finalize(tenantID uint, invoice string) (uint, error) {
	session, err := s.repo.FindPendingSession(tenantID, invoice)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNoPendingSession
		}
		return 0, err
	}

	saleID, _, err := s.Materialize(session)
	if err != nil {
		return 0, err
	}
	return saleID, nil
}

// TransitionStatus resolves a session to a terminal status. Repeating the
// recorded outcome is a harmless no-op; a conflicting outcome is surfaced and
// counted, never overwritten.
func (s *Service) TransitionStatus(session *models.PaymentSession, state State, rawPayload string) (bool, error) {
	transitioned, err := s.repo.TransitionStatus(session.ID, string(state), rawPayload)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			log.Errorf("[Checkout] Terminal status conflict on session %d: %v", session.ID, err)
			counter.AddStatusConflict()
		}
		return false, err
	}
	if transitioned {
		session.Status = string(state)
	}
	return transitioned, nil
}

// AssignSaleID stamps a sale id onto a session outside the materialize path.
// Same-id repeats are no-ops; a different id is a consistency violation.
func (s *Service) AssignSaleID(sessionID, saleID uint) error {
	_, err := s.repo.StampSaleID(sessionID, saleID)
	if err != nil && errors.Is(err, ErrSaleConflict) {
		log.Errorf("[Checkout] Sale id conflict on session %d: %v", sessionID, err)
		counter.AddSaleConflict()
	}
	return err
}

// ProcessTerminalEvent runs the out-of-band webhook pipeline: audit append,
// normalization, status transition, and materialization on approval. The
// transport acknowledgment has already been sent, so every step after the
// audit append is best-effort; only an audit failure is returned, letting the
// job layer retry before anything was recorded.
func (s *Service) ProcessTerminalEvent(raw []byte) error {
	event := ParseTerminalEvent(raw)
	if event.Malformed {
		log.Warnf("[Checkout] Terminal delivery is not valid JSON, logging raw payload")
		counter.AddMalformedPayload()
	}

	// The audit row is the only forensic record of what the terminal sent.
	// It is written before any interpretation or matching.
	audit := &models.TerminalWebhookEvent{
		TenantID:        event.TenantID,
		ReqTxnID:        event.ReqTxnID,
		InvoiceNumber:   event.InvoiceNumber,
		NormalizedState: string(event.State),
		Amount:          event.Amount,
		TipAmount:       event.TipAmount,
		PayloadJSON:     event.RawJSON,
	}
	if err := s.repo.AppendWebhookEvent(audit); err != nil {
		return fmt.Errorf("append webhook audit entry: %w", err)
	}

	// Kill switch for terminal processing. The delivery is still audited;
	// sessions are reconciled manually until the flag is re-enabled.
	if settings := models.GetAppSettings(); settings != nil && !settings.IsTerminalWebhookEnabled() {
		log.Warnf("[Checkout] Terminal webhook processing is disabled, delivery recorded without processing")
		return nil
	}

	session, err := s.lookupSession(event)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The webhook outran session creation, or references an invoice
			// no tenant opened. Retained in the audit log, nothing to retry.
			log.Infof("[Checkout] No session matches terminal event (req_txn_id=%q invoice=%q)",
				event.ReqTxnID, event.InvoiceNumber)
			counter.AddOrphanWebhook()
			return nil
		}
		log.Errorf("[Checkout] Session lookup failed for terminal event: %v", err)
		return nil
	}

	if event.State != StatePending {
		if _, err := s.TransitionStatus(session, event.State, event.RawJSON); err != nil && !errors.Is(err, ErrStatusConflict) {
			log.Errorf("[Checkout] Status transition failed for session %d: %v", session.ID, err)
		}
	}

	if event.State == StateApproved {
		// Re-read: finalize may have stamped a sale while we transitioned.
		fresh, err := s.repo.GetSession(session.ID)
		if err != nil {
			log.Errorf("[Checkout] Session %d reload failed: %v", session.ID, err)
			return nil
		}
		if fresh.Status != models.PaymentStatusApproved {
			// The transition did not take, for example because the session is
			// already declined. A conflicting approval must not create a sale.
			return nil
		}
		if _, _, err := s.Materialize(fresh); err != nil {
			if errors.Is(err, ErrMissingSnapshot) {
				log.Errorf("[Checkout] Session %d approved without a pos snapshot, refusing to invent a sale", session.ID)
			} else {
				log.Errorf("[Checkout] Materialize failed for session %d: %v", session.ID, err)
			}
		}
	}

	return nil
}

// Status returns the reconciliation view for the poll endpoint.
func (s *Service) Status(tenantID uint, invoice string) (*SessionStatus, error) {
	session, err := s.repo.FindLatestSessionByInvoice(tenantID, invoice)
	if err != nil {
		return nil, err
	}

	status := &SessionStatus{
		InvoiceNumber: session.InvoiceNumber,
		Status:        session.Status,
		SaleID:        session.SaleID,
	}
	if session.SaleID != nil {
		sale, err := s.repo.GetSale(*session.SaleID)
		if err != nil {
			return nil, err
		}
		status.SaleUUID = sale.UUID
		status.SaleTotal = sale.Total
	}
	return status, nil
}

// RecentWebhookEvents exposes the newest audit rows for the ops surface.
func (s *Service) RecentWebhookEvents(limit int) ([]models.TerminalWebhookEvent, error) {
	return s.repo.RecentWebhookEvents(limit)
}

// lookupSession correlates a terminal event to a session: the terminal's
// transaction id first, invoice number as fallback (tenant-scoped when the
// payload resolved one).
func (s *Service) lookupSession(event *TerminalEvent) (*models.PaymentSession, error) {
	if event.ReqTxnID != "" {
		session, err := s.repo.FindSessionByReqTxnID(event.ReqTxnID)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if event.InvoiceNumber != "" {
		return s.repo.FindLatestSessionByInvoice(event.TenantID, event.InvoiceNumber)
	}
	return nil, gorm.ErrRecordNotFound
}

// buildSale carries the snapshot totals verbatim into the sale row; the
// payment method is fixed to the terminal method by definition of this path.
func buildSale(session *models.PaymentSession, snap *models.PosSnapshot) (*models.Sale, error) {
	itemsJSON, err := json.Marshal(snap.Items)
	if err != nil {
		return nil, fmt.Errorf("serialize sale items for session %d: %w", session.ID, err)
	}

	return &models.Sale{
		UUID:          uuid.New().String(),
		TenantID:      session.TenantID,
		InvoiceNumber: session.InvoiceNumber,
		SaleTime:      time.Now(),
		Subtotal:      snap.Subtotal,
		DiscountTotal: snap.DiscountTotal,
		TaxTotal:      snap.TaxTotal,
		Total:         snap.Total,
		PaymentMethod: models.PaymentMethodCardTerminal,
		ItemsJSON:     string(itemsJSON),
	}, nil
}
