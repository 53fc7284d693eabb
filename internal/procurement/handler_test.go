package procurement

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

type memoryIdempotency struct {
	mu        sync.Mutex
	resources map[string]int64
	released  int
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{resources: map[string]int64{}}
}

func idemKey(companyID int64, key, module string) string {
	return fmt.Sprintf("%d/%s/%s", companyID, module, key)
}

func (m *memoryIdempotency) Reserve(_ context.Context, companyID int64, key, module string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.resources[idemKey(companyID, key, module)]
	switch {
	case ok && id == 0:
		return 0, shared.ErrIdempotencyInFlight
	case ok:
		return id, shared.ErrIdempotencyReplay
	}
	m.resources[idemKey(companyID, key, module)] = 0
	return 0, nil
}

func (m *memoryIdempotency) Complete(_ context.Context, companyID int64, key, module string, resourceID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[idemKey(companyID, key, module)] = resourceID
	return nil
}

func (m *memoryIdempotency) Release(_ context.Context, companyID int64, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.resources, idemKey(companyID, key, module))
	m.released++
	return nil
}

type handlerFixture struct {
	*serviceFixture
	router http.Handler
	idem   *memoryIdempotency
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := newFixture(t)
	idem := newMemoryIdempotency()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, idem)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Anonymous") == "" {
				r = r.WithContext(shared.ContextWithActor(r.Context(), testActor))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Route("/procurement", h.MountRoutes)
	return &handlerFixture{serviceFixture: f, router: r, idem: idem}
}

func (f *handlerFixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "/procurement"+path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

const requestBody = `{"priority":"High","lines":[{"product_id":201,"description":"Hex bolt M10","quantity":"50","estimated_price":"50.00"}]}`

func TestHandlerRequestLifecycle(t *testing.T) {
	f := newHandlerFixture(t)

	rr := f.do(http.MethodPost, "/requests", requestBody)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	pr := decodeBody[PurchaseRequest](t, rr)
	require.Equal(t, "PR2025010001", pr.Number)
	require.Equal(t, PRStatusDraft, pr.Status)

	rr = f.do(http.MethodPost, "/requests/1/approve", "")
	require.Equal(t, http.StatusConflict, rr.Code)
	problem := decodeBody[httpx.ProblemDetail](t, rr)
	require.Equal(t, "invalid-state-transition", problem.Type)

	rr = f.do(http.MethodPost, "/requests/1/submit", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = f.do(http.MethodPost, "/requests/1/reject", `{"reason":""}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = f.do(http.MethodPost, "/requests/1/reject", `{"reason":"too expensive"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	pr = decodeBody[PurchaseRequest](t, rr)
	require.Equal(t, PRStatusRejected, pr.Status)

	rr = f.do(http.MethodGet, "/requests?status=Rejected", "")
	require.Equal(t, http.StatusOK, rr.Code)
	page := decodeBody[Page[PurchaseRequest]](t, rr)
	require.Len(t, page.Items, 1)
	require.Equal(t, 1, page.Pagination.Total)

	rr = f.do(http.MethodDelete, "/requests/1", "")
	require.Equal(t, http.StatusConflict, rr.Code, "rejected requests cannot be deleted")
}

func TestHandlerValidationErrors(t *testing.T) {
	f := newHandlerFixture(t)

	rr := f.do(http.MethodPost, "/requests", `{"lines":[]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	problem := decodeBody[httpx.ProblemDetail](t, rr)
	require.Contains(t, problem.Errors, "lines")

	rr = f.do(http.MethodPost, "/requests", `{"unexpected":true}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(http.MethodGet, "/requests/abc", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(http.MethodGet, "/orders/99", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerRequiresActor(t *testing.T) {
	f := newHandlerFixture(t)
	rr := f.do(http.MethodGet, "/requests", "", "X-Anonymous", "1")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = f.do(http.MethodPost, "/orders", `{"supplier_id":101,"lines":[{"product_id":201,"quantity":"1","unit_price":"1"}]}`, "X-Anonymous", "1")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Zero(t, f.repo.txs)
}

func TestHandlerIdempotentCreate(t *testing.T) {
	f := newHandlerFixture(t)

	first := f.do(http.MethodPost, "/requests", requestBody, IdempotencyHeader, "abc-1")
	require.Equal(t, http.StatusCreated, first.Code)
	replay := f.do(http.MethodPost, "/requests", requestBody, IdempotencyHeader, "abc-1")
	require.Equal(t, http.StatusOK, replay.Code)
	require.Equal(t, decodeBody[PurchaseRequest](t, first).ID, decodeBody[PurchaseRequest](t, replay).ID)

	page, err := f.svc.ListRequests(context.Background(), testActor, ListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	failed := f.do(http.MethodPost, "/requests", `{"lines":[{"product_id":999,"description":"x","quantity":"1"}]}`, IdempotencyHeader, "abc-2")
	require.Equal(t, http.StatusNotFound, failed.Code)
	require.Equal(t, 1, f.idem.released)
}

func TestHandlerOrderToReceipt(t *testing.T) {
	f := newHandlerFixture(t)

	rr := f.do(http.MethodPost, "/orders", `{"supplier_id":101,"lines":[{"product_id":201,"quantity":"100","unit_price":"12.50"}]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	po := decodeBody[PurchaseOrder](t, rr)
	requireDec(t, "1250", po.TotalAmount)

	for _, action := range []string{"approve", "send", "confirm"} {
		rr = f.do(http.MethodPost, "/orders/1/"+action, "")
		require.Equal(t, http.StatusOK, rr.Code, action+": "+rr.Body.String())
	}
	require.Len(t, f.notifier.events, 1)

	rr = f.do(http.MethodPost, "/receipts", `{"order_id":1,"warehouse_id":301,"lines":[{"order_line_id":2,"received_quantity":"150"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "precondition-failed", decodeBody[httpx.ProblemDetail](t, rr).Type)

	rr = f.do(http.MethodPost, "/receipts", `{"order_id":1,"warehouse_id":301,"lines":[{"order_line_id":2,"received_quantity":"40"}]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	gr := decodeBody[GoodsReceipt](t, rr)
	require.Equal(t, "GR2025010001", gr.Number)

	rr = f.do(http.MethodGet, "/orders/1", "")
	require.Equal(t, POStatusPartiallyReceived, decodeBody[PurchaseOrder](t, rr).Status)

	rr = f.do(http.MethodGet, "/orders/1/receipts", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decodeBody[[]GoodsReceipt](t, rr), 1)

	rr = f.do(http.MethodDelete, fmt.Sprintf("/receipts/%d", gr.ID), "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = f.do(http.MethodGet, "/orders/1", "")
	require.Equal(t, POStatusConfirmed, decodeBody[PurchaseOrder](t, rr).Status)
}

func TestHandlerConvertCanvassing(t *testing.T) {
	f := newHandlerFixture(t)
	rr := f.do(http.MethodPost, "/canvassings", `{"lines":[
		{"supplier_id":101,"product_id":201,"quantity":"50","unit_price":"45.00"},
		{"supplier_id":102,"product_id":201,"quantity":"50","unit_price":"48.00"}]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	c := decodeBody[Canvassing](t, rr)

	rr = f.do(http.MethodPost, fmt.Sprintf("/canvassings/%d/select-supplier", c.ID), `{"supplier_id":101}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = f.do(http.MethodPost, fmt.Sprintf("/canvassings/%d/convert", c.ID), "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	po := decodeBody[PurchaseOrder](t, rr)
	require.Equal(t, "2250.00", po.Subtotal.StringFixed(2))

	rr = f.do(http.MethodPost, fmt.Sprintf("/canvassings/%d/convert", c.ID), "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
