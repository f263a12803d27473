package pos

import (
	"fmt"
	"math"
	"time"

	"possale/internal/models"
	"possale/internal/validation"
)

type UndoState string

const (
	UndoActive  UndoState = "active"
	UndoUsed    UndoState = "used"
	UndoExpired UndoState = "expired"
)

// UndoWindow is the right to reverse one user's most recent sale.
type UndoWindow struct {
	InvoiceNumber string    `json:"invoice_number"`
	Username      string    `json:"username"`
	StartedAt     time.Time `json:"started_at"`
	Deadline      time.Time `json:"deadline"`
	State         UndoState `json:"state"`
}

// OpenWindow starts an Active window of limit length at start.
func OpenWindow(invoice, username string, start time.Time, limit time.Duration) UndoWindow {
	return UndoWindow{
		InvoiceNumber: invoice,
		Username:      username,
		StartedAt:     start,
		Deadline:      start.Add(limit),
		State:         UndoActive,
	}
}

// WindowForSale derives the window of a persisted sale. The deadline is the
// one stored at commit, so later changes to the configured limit do not move
// it.
func WindowForSale(s models.Sale, now time.Time) UndoWindow {
	w := UndoWindow{
		InvoiceNumber: s.InvoiceNumber,
		Username:      s.CreatedBy,
		StartedAt:     s.CreatedAt,
		Deadline:      s.UndoDeadline,
		State:         UndoActive,
	}
	if s.Status == models.SaleReversed {
		w.State = UndoUsed
		return w
	}
	return w.Apply(Tick{Now: now})
}

// UndoEvent is a message accepted by UndoWindow.Apply.
type UndoEvent interface {
	undoEvent()
}

// Tick moves an Active window to Expired once Now reaches the deadline.
type Tick struct{ Now time.Time }

// Reversed records that the sale was reversed.
type Reversed struct{ At time.Time }

func (Tick) undoEvent()     {}
func (Reversed) undoEvent() {}

// Apply returns the next window state. Used and Expired are terminal.
func (w UndoWindow) Apply(ev UndoEvent) UndoWindow {
	if w.State != UndoActive {
		return w
	}
	switch e := ev.(type) {
	case Tick:
		if !e.Now.Before(w.Deadline) {
			w.State = UndoExpired
		}
	case Reversed:
		w.State = UndoUsed
	}
	return w
}

// CanUndo reports whether w is Active and now is before its deadline.
func CanUndo(w UndoWindow, now time.Time) bool {
	return w.State == UndoActive && now.Before(w.Deadline)
}

// Check returns the error a reversal attempted at now would fail with.
func (w UndoWindow) Check(now time.Time) error {
	if w.State == UndoUsed {
		return ErrWindowAlreadyUsed
	}
	if !CanUndo(w, now) {
		return ErrWindowExpired
	}
	return nil
}

// RemainingSeconds is the whole seconds left, rounded up, or 0.
func RemainingSeconds(w UndoWindow, now time.Time) int {
	if !CanUndo(w, now) {
		return 0
	}
	return int(math.Ceil(w.Deadline.Sub(now).Seconds()))
}

// ValidateUndoLimit checks a configured limit in minutes.
func ValidateUndoLimit(minutes int) error {
	ve := &validation.ValidationErrors{}
	validation.ValidateIntRange(ve, "undo_limit_minutes", minutes, validation.MinUndoLimitMinutes, validation.MaxUndoLimitMinutes)
	return ve.Err()
}

// ValidateReason checks an undo reason code and its free-text details.
func ValidateReason(code, details string) error {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "reason_code", code)
	validation.ValidateEnum(ve, "reason_code", code, validation.ValidUndoReasons)
	validation.ValidateMaxLength(ve, "reason_details", details, validation.MaxReasonDetailsLength)
	if code == "other" && details == "" {
		ve.Add("reason_details", fmt.Sprintf("is required when reason_code is %q", code))
	}
	return ve.Err()
}
