package pos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"possale/internal/models"
)

// LastSaleStatus is the counter's view of the acting user's most recent sale.
type LastSaleStatus struct {
	Sale             *models.Sale `json:"sale"`
	CanUndo          bool         `json:"can_undo"`
	RemainingSeconds int          `json:"remaining_seconds"`
	LimitMinutes     int          `json:"limit_minutes"`
}

// LastSale reports the actor's latest sale and whether it can still be
// reversed. A user with no sales gets a nil Sale.
func (s *Service) LastSale(ctx context.Context, actor Actor) (LastSaleStatus, error) {
	settings, err := s.Settings.POSSettings(ctx)
	if err != nil {
		return LastSaleStatus{}, fmt.Errorf("load pos settings: %w", err)
	}
	st := LastSaleStatus{LimitMinutes: settings.UndoLimitMinutes}
	sale, err := s.Sales.LatestSale(ctx, actor.Username)
	if errors.Is(err, ErrSaleNotFound) {
		return st, nil
	}
	if err != nil {
		return LastSaleStatus{}, err
	}
	now := s.now()
	w := WindowForSale(sale, now)
	st.Sale = &sale
	st.CanUndo = CanUndo(w, now)
	st.RemainingSeconds = RemainingSeconds(w, now)
	return st, nil
}

// Reverse undoes the actor's most recent sale while its window is open. The
// restock, status change, log entry and notification are written atomically.
func (s *Service) Reverse(ctx context.Context, actor Actor, invoice, reasonCode, details string) (models.UndoLogEntry, error) {
	if !actor.CanSell() {
		return models.UndoLogEntry{}, ErrForbidden
	}
	details = strings.TrimSpace(details)
	if err := ValidateReason(reasonCode, details); err != nil {
		return models.UndoLogEntry{}, err
	}

	sale, err := s.Sales.GetSaleByInvoice(ctx, invoice)
	if err != nil {
		return models.UndoLogEntry{}, err
	}
	latest, err := s.Sales.LatestSale(ctx, actor.Username)
	if errors.Is(err, ErrSaleNotFound) || (err == nil && latest.InvoiceNumber != sale.InvoiceNumber) {
		return models.UndoLogEntry{}, ErrNotLatestSale
	}
	if err != nil {
		return models.UndoLogEntry{}, err
	}

	now := s.now()
	if err := WindowForSale(sale, now).Check(now); err != nil {
		return models.UndoLogEntry{}, err
	}

	entry, notes, err := s.reverseLocked(ctx, ReversalDraft{
		Sale:          sale,
		Username:      actor.Username,
		ReasonCode:    reasonCode,
		ReasonDetails: details,
		At:            now,
	})
	if err != nil {
		return models.UndoLogEntry{}, err
	}

	s.publish(notes)
	s.audit(ctx, actor.Username, "REVERSE", sale.InvoiceNumber,
		fmt.Sprintf("Reversed sale %s (%s)", sale.InvoiceNumber, reasonCode))
	s.logger().WithFields(logrus.Fields{
		"invoice": sale.InvoiceNumber,
		"user":    actor.Username,
		"reason":  reasonCode,
	}).Info("sale reversed")
	return entry, nil
}

func (s *Service) reverseLocked(ctx context.Context, d ReversalDraft) (models.UndoLogEntry, []models.Notification, error) {
	if s.Locker != nil {
		ids := make([]int64, 0, len(d.Sale.Lines))
		for _, l := range d.Sale.Lines {
			ids = append(ids, l.BatchID)
		}
		unlock, err := s.Locker.Lock(ctx, ids)
		if err != nil {
			return models.UndoLogEntry{}, nil, fmt.Errorf("lock batches: %w", err)
		}
		defer unlock()
	}
	return s.Sales.ReverseSale(ctx, d)
}

// UndoLog lists the actor's executed reversals, newest first.
func (s *Service) UndoLog(ctx context.Context, actor Actor) ([]models.UndoLogEntry, error) {
	return s.Sales.ListUndoLog(ctx, actor.Username)
}
