package pos

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidPayment    = errors.New("amount tendered is below the sale total")
	ErrWindowExpired     = errors.New("undo window has expired")
	ErrWindowAlreadyUsed = errors.New("undo window has already been used")
	ErrNotLatestSale     = errors.New("only the most recent sale can be reversed")
	ErrSaleNotFound      = errors.New("sale not found")
	ErrBatchNotFound     = errors.New("stock batch not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrForbidden         = errors.New("role may not perform this action")
)

// StockError names the batch that could not cover a commit.
type StockError struct {
	BatchID   int64
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock in batch %d: requested %d, available %d", e.BatchID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }
