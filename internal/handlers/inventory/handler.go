package inventory

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"possale/internal/audit"
	"possale/internal/auth"
	"possale/internal/logging"
	"possale/internal/models"
	"possale/internal/pos"
	"possale/internal/response"
	"possale/internal/store"
	"possale/internal/validation"
)

// Handler holds dependencies for stock intake handlers.
type Handler struct {
	Store    *store.Store
	Audit    *audit.Logger
	Validate *validator.Validate
	Log      *logrus.Logger
	Now      func() time.Time
}

// ProductRequest is the body of POST /api/v1/products.
type ProductRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Category string `json:"category" validate:"max=100"`
}

// BatchRequest is the body of POST /api/v1/products/{id}/batches.
type BatchRequest struct {
	IntakeDate     *time.Time      `json:"intake_date"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	WarrantyMonths int             `json:"warranty_months" validate:"min=0,max=120"`
	Quantity       int             `json:"quantity" validate:"required,min=1"`
}

func requireAdmin(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, _ := auth.IdentityFrom(r.Context())
	if id.Role != auth.RoleAdmin {
		response.Error(w, pos.ErrForbidden)
		return id, false
	}
	return id, true
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

// ListProducts handles GET /api/v1/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListProducts(r.Context())
	if err != nil {
		logging.LogError(h.Log, "inventory", "ListProducts", "list", nil, err)
		response.Error(w, err)
		return
	}
	response.JSONMeta(w, items, len(items), 1, len(items))
}

// CreateProduct handles POST /api/v1/products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var req ProductRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.ErrCode(w, "invalid JSON body", "VALIDATION_ERROR", http.StatusBadRequest)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.FromStruct(ve, h.Validate, &req)
	if ve.HasErrors() {
		response.Error(w, ve)
		return
	}
	p, err := h.Store.CreateProduct(r.Context(), models.Product{Name: req.Name, Category: req.Category})
	if err != nil {
		logging.LogError(h.Log, "inventory", "CreateProduct", "insert", req, err)
		response.Error(w, err)
		return
	}
	h.Audit.Record(r.Context(), id.Username, audit.ActionCreate, "products", strconv.FormatInt(p.ID, 10), "Created product "+p.Name)
	response.Created(w, p)
}

// ReceiveBatch handles POST /api/v1/products/{id}/batches.
func (h *Handler) ReceiveBatch(w http.ResponseWriter, r *http.Request, productID string) {
	id, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	pid, err := strconv.ParseInt(productID, 10, 64)
	if err != nil {
		response.Err(w, "invalid product id", http.StatusBadRequest)
		return
	}
	var req BatchRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.ErrCode(w, "invalid JSON body", "VALIDATION_ERROR", http.StatusBadRequest)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.FromStruct(ve, h.Validate, &req)
	validation.ValidateNonNegativeDecimal(ve, "unit_cost", req.UnitCost)
	validation.ValidateNonNegativeDecimal(ve, "unit_price", req.UnitPrice)
	if ve.HasErrors() {
		response.Error(w, ve)
		return
	}
	intake := h.now()
	if req.IntakeDate != nil {
		intake = req.IntakeDate.UTC()
	}
	b, err := h.Store.ReceiveBatch(r.Context(), models.StockBatch{
		ProductID:      pid,
		IntakeDate:     intake,
		UnitCost:       req.UnitCost,
		UnitPrice:      req.UnitPrice,
		WarrantyMonths: req.WarrantyMonths,
		TotalQuantity:  req.Quantity,
	})
	if err != nil {
		logging.LogError(h.Log, "inventory", "ReceiveBatch", "insert", req, err)
		response.Error(w, err)
		return
	}
	h.Audit.Record(r.Context(), id.Username, audit.ActionCreate, "stock_batches", strconv.FormatInt(b.ID, 10),
		"Received "+strconv.Itoa(b.TotalQuantity)+" units for product "+productID)
	response.Created(w, b)
}
