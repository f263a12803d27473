package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

type Product struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// StockBatch is one purchase lot of a product. RemainingQuantity only moves
// through sale commit (down) and sale reversal (up).
type StockBatch struct {
	ID                int64           `json:"id"`
	ProductID         int64           `json:"product_id"`
	IntakeDate        time.Time       `json:"intake_date"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	WarrantyMonths    int             `json:"warranty_months"`
	RemainingQuantity int             `json:"remaining_quantity"`
	TotalQuantity     int             `json:"total_quantity"`
}

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCard         PaymentMethod = "card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentMobileWallet PaymentMethod = "mobile_wallet"
)

type SaleStatus string

const (
	SaleCompleted SaleStatus = "completed"
	SaleReversed  SaleStatus = "reversed"
)

// WalkInName is the placeholder customer name for anonymous counter sales.
const WalkInName = "Walk-in Customer"

type Customer struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	WalkIn bool   `json:"walk_in"`
}

// SaleLine is the immutable snapshot of a cart line taken at commit time.
type SaleLine struct {
	ID             int64           `json:"id"`
	ProductID      int64           `json:"product_id"`
	BatchID        int64           `json:"batch_id"`
	ProductName    string          `json:"product_name"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Discount       decimal.Decimal `json:"discount"`
	Quantity       int             `json:"quantity"`
	Serials        []string        `json:"serials"`
	WarrantyMonths int             `json:"warranty_months"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

type Sale struct {
	ID             int64           `json:"id"`
	InvoiceNumber  string          `json:"invoice_number"`
	Customer       Customer        `json:"customer"`
	Lines          []SaleLine      `json:"lines"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	AmountTendered decimal.Decimal `json:"amount_tendered"`
	ChangeDue      decimal.Decimal `json:"change_due"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountTotal  decimal.Decimal `json:"discount_total"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	Status         SaleStatus      `json:"status"`
	CreatedBy      string          `json:"created_by"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UndoDeadline   time.Time       `json:"undo_deadline"`
	ReversedAt     *time.Time      `json:"reversed_at"`
}

// UndoLogEntry records one executed reversal. Rows are append-only.
type UndoLogEntry struct {
	ID            int64           `json:"id"`
	SaleID        int64           `json:"sale_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Username      string          `json:"username"`
	ReasonCode    string          `json:"reason_code"`
	ReasonDetails string          `json:"reason_details"`
	SaleSnapshot  json.RawMessage `json:"sale_snapshot"`
	CreatedAt     time.Time       `json:"created_at"`
}

type NotificationType string

const (
	NotifyOrder     NotificationType = "order"
	NotifyInventory NotificationType = "inventory"
	NotifyRepair    NotificationType = "repair"
	NotifyCustomer  NotificationType = "customer"
	NotifyPayment   NotificationType = "payment"
	NotifySystem    NotificationType = "system"
)

type Notification struct {
	ID        int64            `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
	Read      bool             `json:"read"`
	RelatedID string           `json:"related_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

type NotificationAction string

const (
	ActionRead      NotificationAction = "read"
	ActionReadAll   NotificationAction = "read_all"
	ActionDelete    NotificationAction = "delete"
	ActionDeleteAll NotificationAction = "delete_all"
)

// NotificationUpdate describes a read/delete transition. ID is zero for the
// bulk actions.
type NotificationUpdate struct {
	Action NotificationAction `json:"action"`
	ID     int64              `json:"id,omitempty"`
}

// Stream message types pushed over the event channel.
const (
	StreamNotification       = "notification"
	StreamNotificationUpdate = "notification_update"
)

// StreamMessage is the wire frame of the event channel.
type StreamMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// POSSettings are the runtime-tunable settings of the sales counter.
type POSSettings struct {
	UndoLimitMinutes  int `json:"undo_limit_minutes"`
	LowStockThreshold int `json:"low_stock_threshold"`
}
