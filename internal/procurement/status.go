package procurement

import "slices"

// Transition names an operation guarded by document status.
type Transition string

const (
	TransitionEdit           Transition = "edit"
	TransitionDelete         Transition = "delete"
	TransitionSubmit         Transition = "submit"
	TransitionApprove        Transition = "approve"
	TransitionReject         Transition = "reject"
	TransitionConvert        Transition = "convert"
	TransitionCancel         Transition = "cancel"
	TransitionSelectSupplier Transition = "select supplier for"
	TransitionSend           Transition = "send"
	TransitionConfirm        Transition = "confirm"
	TransitionReceive        Transition = "receive against"
	TransitionReverse        Transition = "reverse receipt on"
)

// rule lists the statuses a transition may start from. An empty target keeps
// the current status; the caller derives or retains it.
type rule[S ~string] struct {
	from []S
	to   S
}

type table[S ~string] map[Transition]rule[S]

func (t table[S]) next(doc DocumentType, tr Transition, from S) (S, error) {
	r, ok := t[tr]
	if !ok || !slices.Contains(r.from, from) {
		return from, &TransitionError{Document: doc, Transition: tr, From: string(from)}
	}
	if r.to == "" {
		return from, nil
	}
	return r.to, nil
}

var requestTransitions = table[PRStatus]{
	TransitionEdit:    {from: []PRStatus{PRStatusDraft, PRStatusRejected}},
	TransitionDelete:  {from: []PRStatus{PRStatusDraft}},
	TransitionSubmit:  {from: []PRStatus{PRStatusDraft, PRStatusRejected}, to: PRStatusPendingApproval},
	TransitionApprove: {from: []PRStatus{PRStatusPendingApproval}, to: PRStatusApproved},
	TransitionReject:  {from: []PRStatus{PRStatusPendingApproval}, to: PRStatusRejected},
	TransitionConvert: {from: []PRStatus{PRStatusApproved}, to: PRStatusConverted},
	TransitionCancel: {
		from: []PRStatus{PRStatusDraft, PRStatusPendingApproval, PRStatusRejected, PRStatusApproved},
		to:   PRStatusCancelled,
	},
}

var canvassTransitions = table[CanvassStatus]{
	TransitionSelectSupplier: {from: []CanvassStatus{CanvassStatusInProgress}, to: CanvassStatusCompleted},
	TransitionConvert:        {from: []CanvassStatus{CanvassStatusCompleted}},
	TransitionCancel:         {from: []CanvassStatus{CanvassStatusInProgress, CanvassStatusCompleted}, to: CanvassStatusCancelled},
}

var orderTransitions = table[POStatus]{
	TransitionEdit:    {from: []POStatus{POStatusDraft}},
	TransitionDelete:  {from: []POStatus{POStatusDraft}},
	TransitionApprove: {from: []POStatus{POStatusDraft}, to: POStatusApproved},
	TransitionSend:    {from: []POStatus{POStatusApproved}, to: POStatusSent},
	TransitionConfirm: {from: []POStatus{POStatusSent}, to: POStatusConfirmed},
	TransitionReceive: {from: []POStatus{POStatusConfirmed, POStatusPartiallyReceived}},
	TransitionReverse: {from: []POStatus{POStatusConfirmed, POStatusPartiallyReceived, POStatusReceived}},
}

var receiptTransitions = table[GRStatus]{
	TransitionApprove: {from: []GRStatus{GRStatusDraft}, to: GRStatusApproved},
	TransitionDelete:  {from: []GRStatus{GRStatusDraft}},
}

// Next returns the status reached by t, or a TransitionError.
func (s PRStatus) Next(t Transition) (PRStatus, error) { return requestTransitions.next(DocRequest, t, s) }

// CanEdit reports whether header and lines may be replaced.
func (s PRStatus) CanEdit() bool {
	_, err := s.Next(TransitionEdit)
	return err == nil
}

// Next returns the status reached by t, or a TransitionError.
func (s CanvassStatus) Next(t Transition) (CanvassStatus, error) {
	return canvassTransitions.next(DocCanvassing, t, s)
}

// Next returns the status reached by t, or a TransitionError.
func (s POStatus) Next(t Transition) (POStatus, error) { return orderTransitions.next(DocOrder, t, s) }

// CanEdit reports whether the order may be fully edited.
func (s POStatus) CanEdit() bool {
	_, err := s.Next(TransitionEdit)
	return err == nil
}

// CanReceive reports whether a goods receipt may be created against the order.
func (s POStatus) CanReceive() bool {
	_, err := s.Next(TransitionReceive)
	return err == nil
}

// Next returns the status reached by t, or a TransitionError.
func (s GRStatus) Next(t Transition) (GRStatus, error) { return receiptTransitions.next(DocReceipt, t, s) }

// Status vocabularies, used by validation and exhaustive tests.
var (
	RequestStatuses = []PRStatus{PRStatusDraft, PRStatusPendingApproval, PRStatusApproved, PRStatusRejected, PRStatusConverted, PRStatusCancelled}
	CanvassStatuses = []CanvassStatus{CanvassStatusInProgress, CanvassStatusCompleted, CanvassStatusCancelled}
	OrderStatuses   = []POStatus{POStatusDraft, POStatusApproved, POStatusSent, POStatusConfirmed, POStatusPartiallyReceived, POStatusReceived}
	ReceiptStatuses = []GRStatus{GRStatusDraft, GRStatusApproved}
	Priorities      = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
)
