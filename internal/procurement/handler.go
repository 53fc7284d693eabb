package procurement

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-procure/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// IdempotencyPort guards create endpoints against duplicate submissions.
type IdempotencyPort interface {
	Reserve(ctx context.Context, companyID int64, key, module string) (int64, error)
	Complete(ctx context.Context, companyID int64, key, module string, resourceID int64) error
	Release(ctx context.Context, companyID int64, key, module string) error
}

// IdempotencyHeader carries the client supplied key of a create request.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes the procurement workflow as a JSON API.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency IdempotencyPort
}

// NewHandler builds Handler instance. idem may be nil.
func NewHandler(logger *slog.Logger, service *Service, idem IdempotencyPort) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, idempotency: idem}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Get("/", h.listRequests)
		r.Post("/", h.createRequest)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getRequest)
			r.Put("/", h.updateRequest)
			r.Delete("/", h.deleteRequest)
			r.Post("/submit", h.requestAction(h.service.SubmitRequest))
			r.Post("/approve", h.requestAction(h.service.ApproveRequest))
			r.Post("/reject", h.rejectRequest)
			r.Post("/cancel", h.requestAction(h.service.CancelRequest))
		})
	})
	r.Route("/canvassings", func(r chi.Router) {
		r.Get("/", h.listCanvassings)
		r.Post("/", h.createCanvassing)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getCanvassing)
			r.Post("/select-supplier", h.selectSupplier)
			r.Post("/convert", h.convertCanvassing)
			r.Post("/cancel", h.cancelCanvassing)
		})
	})
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Put("/", h.updateOrder)
			r.Delete("/", h.deleteOrder)
			r.Get("/receipts", h.listOrderReceipts)
			r.Post("/approve", h.orderAction(h.service.ApproveOrder))
			r.Post("/send", h.orderAction(h.service.SendOrder))
			r.Post("/confirm", h.confirmOrder)
		})
	})
	r.Route("/receipts", func(r chi.Router) {
		r.Get("/", h.listReceipts)
		r.Post("/", h.createReceipt)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getReceipt)
			r.Delete("/", h.deleteReceipt)
			r.Post("/approve", h.approveReceipt)
		})
	})
}

func actorFrom(r *http.Request) (shared.Actor, error) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || !actor.Valid() {
		return shared.Actor{}, httpx.ErrUnauthorized
	}
	return actor, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewKindError(shared.ErrValidation, "invalid document id")
	}
	return id, nil
}

func listFilter(r *http.Request) ListFilter {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	return ListFilter{Status: q.Get("status"), SupplierID: supplierID, Page: page, PerPage: perPage}
}

// fail writes err; internal failures are logged with the request path.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if shared.KindOf(err) == nil && !errors.Is(err, httpx.ErrUnauthorized) && !errors.Is(err, httpx.ErrBadRequest) {
		h.logger.Error("procurement request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// target resolves the actor and the {id} path parameter.
func target(r *http.Request) (shared.Actor, int64, error) {
	actor, err := actorFrom(r)
	if err != nil {
		return shared.Actor{}, 0, err
	}
	id, err := pathID(r)
	return actor, id, err
}

// create runs fn once per Idempotency-Key. A replayed key returns the
// resource produced by the first call through load.
func (h *Handler) create(w http.ResponseWriter, r *http.Request, module string,
	fn func(context.Context, shared.Actor) (int64, any, error),
	load func(context.Context, shared.Actor, int64) (any, error),
) {
	actor, err := actorFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	key := r.Header.Get(IdempotencyHeader)
	if key == "" || h.idempotency == nil {
		_, out, err := fn(r.Context(), actor)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, out)
		return
	}

	existing, err := h.idempotency.Reserve(r.Context(), actor.CompanyID, key, module)
	switch {
	case errors.Is(err, shared.ErrIdempotencyReplay):
		out, err := load(r.Context(), actor, existing)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, out)
		return
	case err != nil:
		h.fail(w, r, err)
		return
	}
	id, out, err := fn(r.Context(), actor)
	if err != nil {
		if rerr := h.idempotency.Release(context.WithoutCancel(r.Context()), actor.CompanyID, key, module); rerr != nil {
			h.logger.Warn("release idempotency key", slog.String("module", module), slog.Any("error", rerr))
		}
		h.fail(w, r, err)
		return
	}
	if err := h.idempotency.Complete(r.Context(), actor.CompanyID, key, module, id); err != nil {
		h.logger.Warn("complete idempotency key", slog.String("module", module), slog.Int64("id", id), slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusCreated, out)
}

// Purchase requests.

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.service.ListRequests(r.Context(), actor, listFilter(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var input RequestInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	h.create(w, r, "procurement.request",
		func(ctx context.Context, actor shared.Actor) (int64, any, error) {
			pr, err := h.service.CreateRequest(ctx, actor, input)
			return pr.ID, pr, err
		},
		func(ctx context.Context, actor shared.Actor, id int64) (any, error) {
			return h.service.GetRequest(ctx, actor, id)
		})
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	actor, id, err := target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pr, err := h.service.GetRequest(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pr)
}

func (h *Handler) updateRequest(w http.ResponseWriter, r *http.Request) {
	actor, id, err := target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input RequestInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	pr, err := h.service.UpdateRequest(r.Context(), actor, id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pr)
}

func (h *Handler) deleteRequest(w http.ResponseWriter, r *http.Request) {
	actor, id, err := target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteRequest(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requestAction(fn func(context.Context, shared.Actor, int64) (PurchaseRequest, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, err := target(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		pr, err := fn(r.Context(), actor, id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, pr)
	}
}

func (h *Handler) rejectRequest(w http.ResponseWriter, r *http.Request) {
	actor, id, err := target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input RejectInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	pr, err := h.service.RejectRequest(r.Context(), actor, id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pr)
}

// Canvassings.

func (h *Handler) listCanvassings(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.service.ListCanvassings(r.Context(), actor, listFilter(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) createCanvassing(w http.ResponseWriter, r *http.Request) {
	var input CanvassingInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	h.create(w, r, "procurement.canvassing",
		func(ctx context.Context, actor shared.Actor) (int64, any, error) {
			c, err := h.service.CreateCanvassing(ctx, actor, input)
			return c.ID, c, err
		},
		func(ctx context.Context, actor shared.Actor, id int64) (any, error) {
			return h.service.GetCanvassing(ctx, actor, id)
		})
}

func (h *Handler) getCanvassing(w http.ResponseWriter, r *http.Request) {
	actor, id, err := target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.service.GetCanvassing(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) selectSupplier(w http.ResponseWriter, r *http.Request) {
	actor, id, err := target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input SelectSupplierInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.service.SelectSupplier(r.Context(), actor, id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) convertCanvassing(w http.ResponseWriter, r *http.Request) {
	actor, id, err := target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input ConvertCanvassingInput
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &input); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	po, err := h.service.ConvertCanvassing(r.Context(), actor, id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) cancelCanvassing(w http.ResponseWriter, r *http.Request) {
	actor, id, err := target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.service.CancelCanvassing(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

// Purchase orders.

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.service.ListOrders(r.Context(), actor, listFilter(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var input OrderInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	h.create(w, r, "procurement.order",
		func(ctx context.Context, actor shared.Actor) (int64, any, error) {
			po, err := h.service.CreateOrder(ctx, actor, input)
			return po.ID, po, err
		},
		func(ctx context.Context, actor shared.Actor, id int64) (any, error) {
			return h.service.GetOrder(ctx, actor, id)
		})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, id, err := target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	po, err := h.service.GetOrder(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	actor, id, err := target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input OrderInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	po, err := h.service.UpdateOrder(r.Context(), actor, id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	actor, id, err := target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteOrder(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listOrderReceipts(w http.ResponseWriter, r *http.Request) {
	actor, id, err := target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	receipts, err := h.service.ListOrderReceipts(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipts)
}

func (h *Handler) orderAction(fn func(context.Context, shared.Actor, int64) (PurchaseOrder, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, err := target(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		po, err := fn(r.Context(), actor, id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, po)
	}
}

func (h *Handler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	actor, id, err := target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input ConfirmOrderInput
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &input); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	po, err := h.service.ConfirmOrder(r.Context(), actor, id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

// Goods receipts.

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.service.ListReceipts(r.Context(), actor, listFilter(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) createReceipt(w http.ResponseWriter, r *http.Request) {
	var input ReceiptInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	h.create(w, r, "procurement.receipt",
		func(ctx context.Context, actor shared.Actor) (int64, any, error) {
			gr, err := h.service.CreateReceipt(ctx, actor, input)
			return gr.ID, gr, err
		},
		func(ctx context.Context, actor shared.Actor, id int64) (any, error) {
			return h.service.GetReceipt(ctx, actor, id)
		})
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	actor, id, err := target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	gr, err := h.service.GetReceipt(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, gr)
}

func (h *Handler) deleteReceipt(w http.ResponseWriter, r *http.Request) {
	actor, id, err := target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteReceipt(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) approveReceipt(w http.ResponseWriter, r *http.Request) {
	actor, id, err := target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	gr, err := h.service.ApproveReceipt(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, gr)
}
