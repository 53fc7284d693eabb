package procurement

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

var errMemoryConflict = shared.NewKindError(shared.ErrConflict, "memory: duplicate document number")

type memoryState struct {
	nextID      int64
	requests    map[int64]PurchaseRequest
	canvassings map[int64]Canvassing
	orders      map[int64]PurchaseOrder
	receipts    map[int64]GoodsReceipt
	emails      []EmailLog
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		nextID:      s.nextID,
		requests:    maps.Clone(s.requests),
		canvassings: maps.Clone(s.canvassings),
		orders:      maps.Clone(s.orders),
		receipts:    maps.Clone(s.receipts),
		emails:      slices.Clone(s.emails),
	}
	for id, v := range out.requests {
		v.Lines = slices.Clone(v.Lines)
		out.requests[id] = v
	}
	for id, v := range out.canvassings {
		v.Lines = slices.Clone(v.Lines)
		out.canvassings[id] = v
	}
	for id, v := range out.orders {
		v.Lines = slices.Clone(v.Lines)
		out.orders[id] = v
	}
	for id, v := range out.receipts {
		v.Lines = slices.Clone(v.Lines)
		out.receipts[id] = v
	}
	return out
}

func (s *memoryState) id() int64 {
	s.nextID++
	return s.nextID
}

// memoryRepo is an in-memory RepositoryPort. Each transaction works on a copy
// of the state that replaces the original only when fn succeeds.
type memoryRepo struct {
	mu    sync.Mutex
	state *memoryState

	// conflicts makes the next n inserts fail with a retryable conflict.
	conflicts int
	// failOn makes the named tx method fail with an internal error.
	failOn string
	txs    int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memoryState{
		requests:    map[int64]PurchaseRequest{},
		canvassings: map[int64]Canvassing{},
		orders:      map[int64]PurchaseOrder{},
		receipts:    map[int64]GoodsReceipt{},
	}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs++
	work := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r, s: work}); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *memoryRepo) snapshot() *memoryState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

func (r *memoryRepo) GetRequest(_ context.Context, companyID, id int64) (PurchaseRequest, error) {
	s := r.snapshot()
	pr, ok := s.requests[id]
	if !ok || pr.CompanyID != companyID {
		return PurchaseRequest{}, ErrRequestNotFound
	}
	return pr, nil
}

func (r *memoryRepo) GetCanvassing(_ context.Context, companyID, id int64) (Canvassing, error) {
	s := r.snapshot()
	c, ok := s.canvassings[id]
	if !ok || c.CompanyID != companyID {
		return Canvassing{}, ErrCanvassingNotFound
	}
	return c, nil
}

func (r *memoryRepo) GetOrder(_ context.Context, companyID, id int64) (PurchaseOrder, error) {
	s := r.snapshot()
	po, ok := s.orders[id]
	if !ok || po.CompanyID != companyID {
		return PurchaseOrder{}, ErrOrderNotFound
	}
	return po, nil
}

func (r *memoryRepo) GetReceipt(_ context.Context, companyID, id int64) (GoodsReceipt, error) {
	s := r.snapshot()
	gr, ok := s.receipts[id]
	if !ok || gr.CompanyID != companyID {
		return GoodsReceipt{}, ErrReceiptNotFound
	}
	return gr, nil
}

func memoryList[T any](docs map[int64]T, keep func(T) bool, number func(T) string, filter ListFilter) ([]T, int) {
	var items []T
	for _, d := range docs {
		if keep(d) {
			items = append(items, d)
		}
	}
	slices.SortFunc(items, func(a, b T) int { return cmp.Compare(number(b), number(a)) })
	total := len(items)
	_, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	offset := shared.Offset(filter.Page, filter.PerPage)
	if offset >= total {
		return nil, total
	}
	return items[offset:min(offset+perPage, total)], total
}

func (r *memoryRepo) ListRequests(_ context.Context, companyID int64, filter ListFilter) ([]PurchaseRequest, int, error) {
	items, total := memoryList(r.snapshot().requests, func(pr PurchaseRequest) bool {
		return pr.CompanyID == companyID && (filter.Status == "" || string(pr.Status) == filter.Status)
	}, func(pr PurchaseRequest) string { return pr.Number }, filter)
	return items, total, nil
}

func (r *memoryRepo) ListCanvassings(_ context.Context, companyID int64, filter ListFilter) ([]Canvassing, int, error) {
	items, total := memoryList(r.snapshot().canvassings, func(c Canvassing) bool {
		return c.CompanyID == companyID && (filter.Status == "" || string(c.Status) == filter.Status)
	}, func(c Canvassing) string { return c.Number }, filter)
	return items, total, nil
}

func (r *memoryRepo) ListOrders(_ context.Context, companyID int64, filter ListFilter) ([]PurchaseOrder, int, error) {
	items, total := memoryList(r.snapshot().orders, func(po PurchaseOrder) bool {
		return po.CompanyID == companyID &&
			(filter.Status == "" || string(po.Status) == filter.Status) &&
			(filter.SupplierID == 0 || po.SupplierID == filter.SupplierID)
	}, func(po PurchaseOrder) string { return po.Number }, filter)
	return items, total, nil
}

func (r *memoryRepo) ListReceipts(_ context.Context, companyID int64, filter ListFilter) ([]GoodsReceipt, int, error) {
	items, total := memoryList(r.snapshot().receipts, func(gr GoodsReceipt) bool {
		return gr.CompanyID == companyID && (filter.Status == "" || string(gr.Status) == filter.Status)
	}, func(gr GoodsReceipt) string { return gr.Number }, filter)
	return items, total, nil
}

func (r *memoryRepo) ListOrderReceipts(_ context.Context, companyID, orderID int64) ([]GoodsReceipt, error) {
	var out []GoodsReceipt
	for _, gr := range r.snapshot().receipts {
		if gr.CompanyID == companyID && gr.OrderID == orderID {
			out = append(out, gr)
		}
	}
	slices.SortFunc(out, func(a, b GoodsReceipt) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
	s    *memoryState
}

func (t *memoryTx) fail(method string) error {
	if t.repo.failOn == method {
		return fmt.Errorf("memory: %s failed", method)
	}
	return nil
}

func (t *memoryTx) insertGuard(number string) error {
	if t.repo.conflicts > 0 {
		t.repo.conflicts--
		return errMemoryConflict
	}
	for _, n := range t.numbers() {
		if n == number {
			return errMemoryConflict
		}
	}
	return nil
}

func (t *memoryTx) numbers() []string {
	var out []string
	for _, v := range t.s.requests {
		out = append(out, v.Number)
	}
	for _, v := range t.s.canvassings {
		out = append(out, v.Number)
	}
	for _, v := range t.s.orders {
		out = append(out, v.Number)
	}
	for _, v := range t.s.receipts {
		out = append(out, v.Number)
	}
	return out
}

func (t *memoryTx) LastNumber(_ context.Context, _ DocumentType, prefix string) (string, error) {
	last := ""
	for _, n := range t.numbers() {
		if strings.HasPrefix(n, prefix) && n > last {
			last = n
		}
	}
	return last, nil
}

func (t *memoryTx) LockRequest(_ context.Context, companyID, id int64) (PurchaseRequest, error) {
	pr, ok := t.s.requests[id]
	if !ok || pr.CompanyID != companyID {
		return PurchaseRequest{}, ErrRequestNotFound
	}
	pr.Lines = slices.Clone(pr.Lines)
	return pr, nil
}

func (t *memoryTx) assignRequestLines(pr *PurchaseRequest) {
	for i := range pr.Lines {
		pr.Lines[i].ID = t.s.id()
		pr.Lines[i].RequestID = pr.ID
		pr.Lines[i].LineOrder = i + 1
	}
}

func (t *memoryTx) InsertRequest(_ context.Context, pr *PurchaseRequest) error {
	if err := t.insertGuard(pr.Number); err != nil {
		return err
	}
	pr.ID = t.s.id()
	t.assignRequestLines(pr)
	stored := *pr
	stored.Lines = slices.Clone(pr.Lines)
	t.s.requests[pr.ID] = stored
	return t.fail("InsertRequest")
}

func (t *memoryTx) UpdateRequest(_ context.Context, pr PurchaseRequest) error {
	cur, ok := t.s.requests[pr.ID]
	if !ok || cur.CompanyID != pr.CompanyID {
		return ErrRequestNotFound
	}
	pr.Lines = cur.Lines
	t.s.requests[pr.ID] = pr
	return t.fail("UpdateRequest")
}

func (t *memoryTx) ReplaceRequestLines(_ context.Context, pr *PurchaseRequest) error {
	cur, ok := t.s.requests[pr.ID]
	if !ok {
		return ErrRequestNotFound
	}
	t.assignRequestLines(pr)
	cur.Lines = slices.Clone(pr.Lines)
	t.s.requests[pr.ID] = cur
	return nil
}

func (t *memoryTx) DeleteRequest(_ context.Context, companyID, id int64) error {
	if pr, ok := t.s.requests[id]; !ok || pr.CompanyID != companyID {
		return ErrRequestNotFound
	}
	delete(t.s.requests, id)
	return nil
}

func (t *memoryTx) RequestReferenced(_ context.Context, companyID, id int64) (bool, error) {
	for _, c := range t.s.canvassings {
		if c.CompanyID == companyID && c.RequestID != nil && *c.RequestID == id {
			return true, nil
		}
	}
	for _, po := range t.s.orders {
		if po.CompanyID == companyID && po.RequestID != nil && *po.RequestID == id {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) LockCanvassing(_ context.Context, companyID, id int64) (Canvassing, error) {
	c, ok := t.s.canvassings[id]
	if !ok || c.CompanyID != companyID {
		return Canvassing{}, ErrCanvassingNotFound
	}
	c.Lines = slices.Clone(c.Lines)
	return c, nil
}

func (t *memoryTx) InsertCanvassing(_ context.Context, c *Canvassing) error {
	if err := t.insertGuard(c.Number); err != nil {
		return err
	}
	c.ID = t.s.id()
	for i := range c.Lines {
		c.Lines[i].ID = t.s.id()
		c.Lines[i].CanvassingID = c.ID
		c.Lines[i].LineOrder = i + 1
	}
	stored := *c
	stored.Lines = slices.Clone(c.Lines)
	t.s.canvassings[c.ID] = stored
	return t.fail("InsertCanvassing")
}

func (t *memoryTx) UpdateCanvassing(_ context.Context, c Canvassing) error {
	cur, ok := t.s.canvassings[c.ID]
	if !ok || cur.CompanyID != c.CompanyID {
		return ErrCanvassingNotFound
	}
	selected := map[int64]bool{}
	for _, l := range c.Lines {
		selected[l.ID] = l.IsSelected
	}
	lines := slices.Clone(cur.Lines)
	for i := range lines {
		if v, ok := selected[lines[i].ID]; ok {
			lines[i].IsSelected = v
		}
	}
	c.Lines = lines
	t.s.canvassings[c.ID] = c
	return t.fail("UpdateCanvassing")
}

func (t *memoryTx) CanvassingConverted(_ context.Context, companyID, id int64) (bool, error) {
	for _, po := range t.s.orders {
		if po.CompanyID == companyID && po.CanvassingID != nil && *po.CanvassingID == id {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) LockOrder(_ context.Context, companyID, id int64) (PurchaseOrder, error) {
	po, ok := t.s.orders[id]
	if !ok || po.CompanyID != companyID {
		return PurchaseOrder{}, ErrOrderNotFound
	}
	po.Lines = slices.Clone(po.Lines)
	return po, nil
}

func (t *memoryTx) assignOrderLines(po *PurchaseOrder) {
	for i := range po.Lines {
		po.Lines[i].ID = t.s.id()
		po.Lines[i].OrderID = po.ID
		po.Lines[i].LineOrder = i + 1
	}
}

func (t *memoryTx) InsertOrder(_ context.Context, po *PurchaseOrder) error {
	if err := t.insertGuard(po.Number); err != nil {
		return err
	}
	po.ID = t.s.id()
	t.assignOrderLines(po)
	stored := *po
	stored.Lines = slices.Clone(po.Lines)
	t.s.orders[po.ID] = stored
	return t.fail("InsertOrder")
}

func (t *memoryTx) UpdateOrder(_ context.Context, po PurchaseOrder) error {
	cur, ok := t.s.orders[po.ID]
	if !ok || cur.CompanyID != po.CompanyID {
		return ErrOrderNotFound
	}
	po.Lines = cur.Lines
	t.s.orders[po.ID] = po
	return t.fail("UpdateOrder")
}

func (t *memoryTx) ReplaceOrderLines(_ context.Context, po *PurchaseOrder) error {
	cur, ok := t.s.orders[po.ID]
	if !ok {
		return ErrOrderNotFound
	}
	t.assignOrderLines(po)
	cur.Lines = slices.Clone(po.Lines)
	t.s.orders[po.ID] = cur
	return nil
}

func (t *memoryTx) UpdateOrderReceived(_ context.Context, lines []POLine) error {
	for _, l := range lines {
		po, ok := t.s.orders[l.OrderID]
		if !ok {
			return ErrOrderNotFound
		}
		po.Lines = slices.Clone(po.Lines)
		found := false
		for i := range po.Lines {
			if po.Lines[i].ID == l.ID {
				po.Lines[i].Received = l.Received
				found = true
			}
		}
		if !found {
			return ErrOrderLineNotFound
		}
		t.s.orders[po.ID] = po
	}
	return t.fail("UpdateOrderReceived")
}

func (t *memoryTx) DeleteOrder(_ context.Context, companyID, id int64) error {
	if po, ok := t.s.orders[id]; !ok || po.CompanyID != companyID {
		return ErrOrderNotFound
	}
	delete(t.s.orders, id)
	return nil
}

func (t *memoryTx) OrderHasReceipts(_ context.Context, companyID, id int64) (bool, error) {
	for _, gr := range t.s.receipts {
		if gr.CompanyID == companyID && gr.OrderID == id {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) LockReceipt(_ context.Context, companyID, id int64) (GoodsReceipt, error) {
	gr, ok := t.s.receipts[id]
	if !ok || gr.CompanyID != companyID {
		return GoodsReceipt{}, ErrReceiptNotFound
	}
	gr.Lines = slices.Clone(gr.Lines)
	return gr, nil
}

func (t *memoryTx) InsertReceipt(_ context.Context, gr *GoodsReceipt) error {
	if err := t.insertGuard(gr.Number); err != nil {
		return err
	}
	gr.ID = t.s.id()
	for i := range gr.Lines {
		gr.Lines[i].ID = t.s.id()
		gr.Lines[i].ReceiptID = gr.ID
		gr.Lines[i].LineOrder = i + 1
	}
	stored := *gr
	stored.Lines = slices.Clone(gr.Lines)
	t.s.receipts[gr.ID] = stored
	return t.fail("InsertReceipt")
}

func (t *memoryTx) UpdateReceipt(_ context.Context, gr GoodsReceipt) error {
	cur, ok := t.s.receipts[gr.ID]
	if !ok || cur.CompanyID != gr.CompanyID {
		return ErrReceiptNotFound
	}
	gr.Lines = cur.Lines
	t.s.receipts[gr.ID] = gr
	return nil
}

func (t *memoryTx) DeleteReceipt(_ context.Context, companyID, id int64) error {
	if gr, ok := t.s.receipts[id]; !ok || gr.CompanyID != companyID {
		return ErrReceiptNotFound
	}
	delete(t.s.receipts, id)
	return nil
}

func (t *memoryTx) InsertEmailLog(_ context.Context, log *EmailLog) error {
	log.ID = t.s.id()
	t.s.emails = append(t.s.emails, *log)
	return t.fail("InsertEmailLog")
}

// fakeRefs is an in-memory ReferencePort.
type fakeRefs struct {
	suppliers   map[int64]Supplier
	products    map[int64]Product
	departments map[int64]bool
	warehouses  map[int64]bool
}

func (f *fakeRefs) Supplier(_ context.Context, _ int64, id int64) (Supplier, error) {
	s, ok := f.suppliers[id]
	if !ok {
		return Supplier{}, fmt.Errorf("%w: %d", ErrSupplierNotFound, id)
	}
	return s, nil
}

func (f *fakeRefs) Product(_ context.Context, _ int64, id int64) (Product, error) {
	p, ok := f.products[id]
	if !ok {
		return Product{}, fmt.Errorf("%w: %d", ErrProductNotFound, id)
	}
	return p, nil
}

func (f *fakeRefs) Department(_ context.Context, _ int64, id int64) error {
	if !f.departments[id] {
		return ErrDepartmentNotFound
	}
	return nil
}

func (f *fakeRefs) Warehouse(_ context.Context, _ int64, id int64) error {
	if !f.warehouses[id] {
		return ErrWarehouseNotFound
	}
	return nil
}

type recordingNotifier struct {
	events []OrderSentEvent
	err    error
}

func (n *recordingNotifier) NotifyOrderSent(_ context.Context, evt OrderSentEvent) error {
	n.events = append(n.events, evt)
	return n.err
}

type countingMetrics struct {
	mu          sync.Mutex
	transitions map[string]int
	conflicts   map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{transitions: map[string]int{}, conflicts: map[string]int{}}
}

func (m *countingMetrics) ObserveTransition(document, transition, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[document+"/"+transition+"/"+outcome]++
}

func (m *countingMetrics) ObserveConflict(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts[operation]++
}

type busyLocker struct {
	keys []string
}

func (l *busyLocker) Acquire(_ context.Context, key string) (shared.Release, error) {
	l.keys = append(l.keys, key)
	return nil, shared.ErrLockBusy
}
