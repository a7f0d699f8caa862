package checkout

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tillworks/till/app/models"
)

// Repository provides DB operations used by the checkout service. Sessions
// and sales are never deleted through this interface; webhook events are
// append-only.
type Repository interface {
	CreateSession(session *models.PaymentSession) error
	GetSession(id uint) (*models.PaymentSession, error)
	FindPendingSession(tenantID uint, invoice string) (*models.PaymentSession, error)
	FindSessionByReqTxnID(reqTxnID string) (*models.PaymentSession, error)
	// FindLatestSessionByInvoice matches the most recently started session
	// for an invoice. tenantID 0 searches across tenants (advisory webhook
	// attribution may leave the tenant unresolved).
	FindLatestSessionByInvoice(tenantID uint, invoice string) (*models.PaymentSession, error)
	// StampSaleID assigns a sale id once. Re-stamping the same id is a no-op
	// (stamped=false, no error); a different id is ErrSaleConflict.
	StampSaleID(sessionID, saleID uint) (stamped bool, err error)
	// CreateSaleAndStamp inserts the sale and stamps its id onto the session
	// in one transaction. When a concurrent caller stamped first, the insert
	// is rolled back and the winner's sale id is returned with created=false.
	CreateSaleAndStamp(sessionID uint, sale *models.Sale) (saleID uint, created bool, err error)
	// TransitionStatus moves pending -> terminal. Repeating the recorded
	// terminal status is a no-op (transitioned=false); a different terminal
	// status is ErrStatusConflict.
	TransitionStatus(sessionID uint, newStatus string, rawPayload string) (transitioned bool, err error)
	GetSale(id uint) (*models.Sale, error)
	AppendWebhookEvent(event *models.TerminalWebhookEvent) error
	RecentWebhookEvents(limit int) ([]models.TerminalWebhookEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a checkout repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateSession(session *models.PaymentSession) error {
	now := time.Now()
	if session.Status == "" {
		session.Status = models.PaymentStatusPending
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = now
	}
	if session.LastSeenAt.IsZero() {
		session.LastSeenAt = now
	}
	return r.db.Create(session).Error
}

func (r *gormRepository) GetSession(id uint) (*models.PaymentSession, error) {
	var session models.PaymentSession
	if err := r.db.Where("id = ?", id).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *gormRepository) FindPendingSession(tenantID uint, invoice string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := r.db.
		Where("tenant_id = ? AND invoice_number = ? AND status = ?", tenantID, invoice, models.PaymentStatusPending).
		Order("started_at DESC, id DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *gormRepository) FindSessionByReqTxnID(reqTxnID string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := r.db.
		Where("req_txn_id = ?", reqTxnID).
		Order("started_at DESC, id DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *gormRepository) FindLatestSessionByInvoice(tenantID uint, invoice string) (*models.PaymentSession, error) {
	q := r.db.Where("invoice_number = ?", invoice)
	if tenantID != 0 {
		q = q.Where("tenant_id = ?", tenantID)
	}
	var session models.PaymentSession
	err := q.Order("started_at DESC, id DESC").First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *gormRepository) StampSaleID(sessionID, saleID uint) (bool, error) {
	res := r.db.Model(&models.PaymentSession{}).
		Where("id = ? AND sale_id IS NULL", sessionID).
		Updates(map[string]interface{}{"sale_id": saleID, "last_seen_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	session, err := r.GetSession(sessionID)
	if err != nil {
		return false, err
	}
	if session.SaleID != nil && *session.SaleID == saleID {
		return false, nil
	}
	return false, fmt.Errorf("session %d: %w", sessionID, ErrSaleConflict)
}

func (r *gormRepository) CreateSaleAndStamp(sessionID uint, sale *models.Sale) (uint, bool, error) {
	var winnerID uint
	created := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sale).Error; err != nil {
			return err
		}

		res := tx.Model(&models.PaymentSession{}).
			Where("id = ? AND sale_id IS NULL", sessionID).
			Updates(map[string]interface{}{"sale_id": sale.ID, "last_seen_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			winnerID = sale.ID
			created = true
			return nil
		}

		// Lost the race. Read the winning sale id with a locking read so the
		// concurrent committer is visible, then abort to roll back our insert.
		var current models.PaymentSession
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", sessionID).First(&current).Error; err != nil {
			return err
		}
		if current.SaleID == nil {
			return fmt.Errorf("session %d has no sale id after failed stamp", sessionID)
		}
		winnerID = *current.SaleID
		return errLostStampRace
	})
	if err != nil && !errors.Is(err, errLostStampRace) {
		return 0, false, err
	}
	return winnerID, created, nil
}

func (r *gormRepository) TransitionStatus(sessionID uint, newStatus string, rawPayload string) (bool, error) {
	if !models.IsValidPaymentStatus(newStatus) || newStatus == models.PaymentStatusPending {
		return false, fmt.Errorf("invalid terminal status %q", newStatus)
	}

	res := r.db.Model(&models.PaymentSession{}).
		Where("id = ? AND status = ?", sessionID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":       newStatus,
			"last_payload": rawPayload,
			"last_seen_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	session, err := r.GetSession(sessionID)
	if err != nil {
		return false, err
	}
	if session.Status == newStatus {
		// Webhook redelivery of the outcome already recorded.
		return false, nil
	}
	return false, fmt.Errorf("session %d is %s, refusing %s: %w",
		sessionID, session.Status, newStatus, ErrStatusConflict)
}

func (r *gormRepository) GetSale(id uint) (*models.Sale, error) {
	var sale models.Sale
	if err := r.db.Where("id = ?", id).First(&sale).Error; err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *gormRepository) AppendWebhookEvent(event *models.TerminalWebhookEvent) error {
	return r.db.Create(event).Error
}

func (r *gormRepository) RecentWebhookEvents(limit int) ([]models.TerminalWebhookEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []models.TerminalWebhookEvent
	err := r.db.Order("id DESC").Limit(limit).Find(&events).Error
	return events, err
}
