package sales

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"possale/internal/auth"
	"possale/internal/logging"
	"possale/internal/models"
	"possale/internal/pos"
	"possale/internal/response"
	"possale/internal/validation"
)

// Handler serves the sales counter endpoints.
type Handler struct {
	Sales     *pos.Service
	Allocator *pos.Allocator
	Validate  *validator.Validate
	Log       *logrus.Logger
}

// CustomerRequest is the customer block of a commit.
type CustomerRequest struct {
	Name   string `json:"name" validate:"max=200"`
	Phone  string `json:"phone" validate:"max=40"`
	WalkIn bool   `json:"walk_in"`
}

// LineRequest is one requested cart line.
type LineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	BatchID   int64           `json:"batch_id" validate:"required,gt=0"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
	Serials   []string        `json:"serials" validate:"omitempty,dive,max=100"`
	Discount  decimal.Decimal `json:"discount"`
}

// CommitRequest is the body of POST /api/v1/sales.
type CommitRequest struct {
	Customer       CustomerRequest `json:"customer"`
	Lines          []LineRequest   `json:"lines" validate:"required,min=1,dive"`
	PaymentMethod  string          `json:"payment_method" validate:"required,oneof=cash card bank_transfer mobile_wallet"`
	AmountTendered decimal.Decimal `json:"amount_tendered"`
	IdempotencyKey string          `json:"idempotency_key" validate:"omitempty,max=100"`
}

// ReverseRequest is the body of POST /api/v1/sales/{invoice}/reverse.
type ReverseRequest struct {
	ReasonCode    string `json:"reason_code" validate:"required,oneof=customer_request wrong_item wrong_quantity pricing_error payment_issue other"`
	ReasonDetails string `json:"reason_details" validate:"max=500"`
}

// PreviewResponse is what the pay panel shows before commit.
type PreviewResponse struct {
	pos.Totals
	ChangeDue decimal.Decimal `json:"change_due"`
	Payable   bool            `json:"payable"`
}

func actor(r *http.Request) pos.Actor {
	id, _ := auth.IdentityFrom(r.Context())
	return pos.Actor{Username: id.Username, Role: id.Role}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := response.DecodeBody(r, v); err != nil {
		response.ErrCode(w, "invalid JSON body", "VALIDATION_ERROR", http.StatusBadRequest)
		return false
	}
	ve := &validation.ValidationErrors{}
	validation.FromStruct(ve, h.Validate, v)
	if ve.HasErrors() {
		response.Error(w, ve)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, funcName string, err error) {
	if !validation.IsValidation(err) {
		logging.LogError(h.Log, "sales", funcName, "request failed", nil, err)
	}
	response.Error(w, err)
}

// buildCart validates discounts at the boundary and turns lines into a cart.
func (h *Handler) buildCart(r *http.Request, lines []LineRequest) (pos.Cart, error) {
	ve := &validation.ValidationErrors{}
	reqs := make([]pos.LineRequest, len(lines))
	for i, l := range lines {
		validation.ValidatePercentage(ve, "lines["+strconv.Itoa(i)+"].discount", l.Discount)
		reqs[i] = pos.LineRequest{
			ProductID: l.ProductID,
			BatchID:   l.BatchID,
			Quantity:  l.Quantity,
			Discount:  l.Discount,
			Serials:   l.Serials,
		}
	}
	if err := ve.Err(); err != nil {
		return pos.Cart{}, err
	}
	return h.Sales.BuildCart(r.Context(), reqs)
}

// ListBatches returns a product's purchasable batches, oldest first, with
// the auto-selected batch when there is exactly one.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request, productID string) {
	id, err := strconv.ParseInt(productID, 10, 64)
	if err != nil {
		response.Err(w, "invalid product id", http.StatusBadRequest)
		return
	}
	sel, err := h.Allocator.Select(r.Context(), id)
	if err != nil {
		h.fail(w, "ListBatches", err)
		return
	}
	response.JSON(w, sel)
}

// PreviewSale prices a draft without committing it.
func (h *Handler) PreviewSale(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if !h.decode(w, r, &req) {
		return
	}
	cart, err := h.buildCart(r, req.Lines)
	if err != nil {
		h.fail(w, "PreviewSale", err)
		return
	}
	totals := pos.CartTotals(cart)
	rec := pos.Reconcile(totals.GrandTotal, req.AmountTendered)
	response.JSON(w, PreviewResponse{Totals: totals, ChangeDue: rec.ChangeDue, Payable: rec.Payable})
}

// CommitSale commits a sale and returns it as the receipt.
func (h *Handler) CommitSale(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	if !auth.CanSell(a.Role) {
		response.Error(w, pos.ErrForbidden)
		return
	}
	var req CommitRequest
	if !h.decode(w, r, &req) {
		return
	}
	cart, err := h.buildCart(r, req.Lines)
	if err != nil {
		h.fail(w, "CommitSale", err)
		return
	}
	sale, err := h.Sales.Commit(r.Context(), a, pos.CommitRequest{
		Cart: cart,
		Customer: models.Customer{
			Name:   req.Customer.Name,
			Phone:  req.Customer.Phone,
			WalkIn: req.Customer.WalkIn,
		},
		PaymentMethod:  models.PaymentMethod(req.PaymentMethod),
		AmountTendered: req.AmountTendered,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.fail(w, "CommitSale", err)
		return
	}
	response.JSON(w, sale)
}

// ReverseSale undoes the caller's latest sale inside its window.
func (h *Handler) ReverseSale(w http.ResponseWriter, r *http.Request, invoice string) {
	a := actor(r)
	if !auth.CanSell(a.Role) {
		response.Error(w, pos.ErrForbidden)
		return
	}
	var req ReverseRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.Sales.Reverse(r.Context(), a, invoice, req.ReasonCode, req.ReasonDetails)
	if err != nil {
		h.fail(w, "ReverseSale", err)
		return
	}
	response.JSON(w, entry)
}

// LastSale reports the caller's latest sale and its undo eligibility.
func (h *Handler) LastSale(w http.ResponseWriter, r *http.Request) {
	st, err := h.Sales.LastSale(r.Context(), actor(r))
	if err != nil {
		h.fail(w, "LastSale", err)
		return
	}
	response.JSON(w, st)
}

// UndoLog lists the caller's reversals. Admins may pass ?user= to see
// another user's, or ?user=* for everyone's.
func (h *Handler) UndoLog(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	if u := r.URL.Query().Get("user"); u != "" && a.Role == auth.RoleAdmin {
		if u == "*" {
			u = ""
		}
		a.Username = u
	}
	entries, err := h.Sales.UndoLog(r.Context(), a)
	if err != nil {
		h.fail(w, "UndoLog", err)
		return
	}
	response.JSONMeta(w, entries, len(entries), 1, len(entries))
}
