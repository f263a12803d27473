package pos

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"possale/internal/models"
)

// Actor is the identity performing an operation, supplied by the auth layer.
type Actor struct {
	Username string
	Role     string
}

// CanSell reports whether the role may commit or reverse sales.
func (a Actor) CanSell() bool {
	return a.Role == "admin" || a.Role == "cashier"
}

// SaleDraft is everything the store needs to persist a sale. The store
// assigns ID and InvoiceNumber.
type SaleDraft struct {
	Sale              models.Sale
	LowStockThreshold int
}

// ReversalDraft is everything the store needs to reverse a sale.
type ReversalDraft struct {
	Sale          models.Sale
	Username      string
	ReasonCode    string
	ReasonDetails string
	At            time.Time
}

// SaleStore persists sales. CommitSale and ReverseSale are atomic: either
// every effect is written or none is.
type SaleStore interface {
	// CommitSale decrements every line's batch, assigns the invoice number
	// and writes the sale with its notifications. A line whose batch can no
	// longer cover it fails the whole call with a *StockError.
	CommitSale(ctx context.Context, d SaleDraft) (models.Sale, []models.Notification, error)
	// ReverseSale restocks the sale's batches, marks it reversed and appends
	// the undo log entry. It fails with ErrWindowAlreadyUsed or
	// ErrWindowExpired when the sale is no longer reversible at d.At.
	ReverseSale(ctx context.Context, d ReversalDraft) (models.UndoLogEntry, []models.Notification, error)
	GetSaleByInvoice(ctx context.Context, invoice string) (models.Sale, error)
	GetSaleByIdempotencyKey(ctx context.Context, key string) (models.Sale, error)
	LatestSale(ctx context.Context, username string) (models.Sale, error)
	ListUndoLog(ctx context.Context, username string) ([]models.UndoLogEntry, error)
}

// SettingsSource reads the runtime-tunable counter settings.
type SettingsSource interface {
	POSSettings(ctx context.Context) (models.POSSettings, error)
}

// BatchLocker serializes work per stock batch. Lock blocks until every id is
// held or ctx ends; the returned func releases them.
type BatchLocker interface {
	Lock(ctx context.Context, ids []int64) (func(), error)
}

// Publisher pushes committed notifications to connected staff.
type Publisher interface {
	PublishNotification(n models.Notification)
}

// AuditFunc records a completed action.
type AuditFunc func(ctx context.Context, username, action, recordID, summary string)

// Service is the sale committer and undo window manager.
type Service struct {
	Batches   BatchSource
	Sales     SaleStore
	Settings  SettingsSource
	Locker    BatchLocker
	Publisher Publisher
	Audit     AuditFunc
	Log       *logrus.Logger
	Now       func() time.Time
	// PhoneRegion is the default region for customer numbers without a
	// country prefix.
	PhoneRegion string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) publish(ns []models.Notification) {
	if s.Publisher == nil {
		return
	}
	for _, n := range ns {
		s.Publisher.PublishNotification(n)
	}
}

func (s *Service) audit(ctx context.Context, username, action, recordID, summary string) {
	if s.Audit != nil {
		s.Audit(ctx, username, action, recordID, summary)
	}
}

func (s *Service) logger() logrus.FieldLogger {
	if s.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		return l
	}
	return s.Log.WithField("module", "pos")
}
