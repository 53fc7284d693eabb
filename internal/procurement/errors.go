package procurement

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

func notFound(msg string) error     { return shared.NewKindError(shared.ErrNotFound, msg) }
func precondition(msg string) error { return shared.NewKindError(shared.ErrPrecondition, msg) }
func invalid(msg string) error      { return shared.NewKindError(shared.ErrValidation, msg) }

var (
	ErrRequestNotFound    = notFound("procurement: purchase request not found")
	ErrCanvassingNotFound = notFound("procurement: canvassing not found")
	ErrOrderNotFound      = notFound("procurement: purchase order not found")
	ErrOrderLineNotFound  = notFound("procurement: purchase order line not found")
	ErrReceiptNotFound    = notFound("procurement: goods receipt not found")
	ErrSupplierNotFound   = notFound("procurement: supplier not found")
	ErrProductNotFound    = notFound("procurement: product not found")
	ErrDepartmentNotFound = notFound("procurement: department not found")
	ErrWarehouseNotFound  = notFound("procurement: warehouse not found")

	ErrRejectReasonRequired = invalid("procurement: rejection reason required")
	ErrNoLines              = invalid("procurement: at least one line required")
	ErrActorRequired        = invalid("procurement: acting user and company required")

	ErrSupplierEmailMissing     = precondition("procurement: supplier has no contact email")
	ErrNoSupplierSelected       = precondition("procurement: canvassing has no selected supplier")
	ErrNoSelectedLines          = precondition("procurement: canvassing has no selected lines")
	ErrSupplierNotQuoted        = precondition("procurement: supplier has no lines in canvassing")
	ErrSelectedLineNoProduct    = precondition("procurement: selected canvassing line has no product")
	ErrCanvassingConverted      = precondition("procurement: canvassing already converted to a purchase order")
	ErrQuantityExceedsRemaining = precondition("procurement: received quantity exceeds remaining quantity")
	ErrOrderHasReceipts         = precondition("procurement: purchase order has goods receipts")
	ErrRequestReferenced        = precondition("procurement: purchase request is referenced by other documents")
	ErrSequenceExhausted        = precondition("procurement: document sequence exhausted for period")
)

// TransitionError reports an operation attempted from a status that does not allow it.
type TransitionError struct {
	Document   DocumentType
	Transition Transition
	From       string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("procurement: cannot %s %s in status %s", e.Transition, e.Document.Label(), e.From)
}

// Unwrap classifies the error as an invalid state transition.
func (e *TransitionError) Unwrap() error { return shared.ErrInvalidState }
