package validation

// Common enum values - these MUST match the CHECK constraints in internal/store/schema.go.
var (
	ValidPaymentMethods    = []string{"cash", "card", "bank_transfer", "mobile_wallet"}
	ValidSaleStatuses      = []string{"completed", "reversed"}
	ValidUndoReasons       = []string{"customer_request", "wrong_item", "wrong_quantity", "pricing_error", "payment_issue", "other"}
	ValidNotificationTypes = []string{"order", "inventory", "repair", "customer", "payment", "system"}
	ValidRoles             = []string{"admin", "cashier", "viewer"}
)

// Undo limit bounds, in minutes.
const (
	MinUndoLimitMinutes = 1
	MaxUndoLimitMinutes = 60
)

// Length limits for free text.
const (
	MaxReasonDetailsLength = 500
	MaxCustomerNameLength  = 200
	MaxSerialLength        = 100
)
