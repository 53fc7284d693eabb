package procurement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ApplyReceipt adds the received quantity of each receipt line to its order line.
// The input slice is not modified. Every order line must stay within
// 0 <= received <= ordered.
func ApplyReceipt(lines []POLine, receipt []GRLine) ([]POLine, error) {
	return postReceipt(lines, receipt, 1)
}

// ReverseReceipt subtracts a previously applied receipt. It is the exact inverse
// of ApplyReceipt for the same receipt lines.
func ReverseReceipt(lines []POLine, receipt []GRLine) ([]POLine, error) {
	return postReceipt(lines, receipt, -1)
}

func postReceipt(lines []POLine, receipt []GRLine, sign int64) ([]POLine, error) {
	out := make([]POLine, len(lines))
	copy(out, lines)
	index := make(map[int64]int, len(out))
	for i, line := range out {
		index[line.ID] = i
	}
	for _, gr := range receipt {
		i, ok := index[gr.OrderLineID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrOrderLineNotFound, gr.OrderLineID)
		}
		if gr.Received.IsNegative() {
			return nil, fmt.Errorf("procurement: negative received quantity on order line %d", gr.OrderLineID)
		}
		next := out[i].Received.Add(gr.Received.Mul(decimal.NewFromInt(sign)))
		switch {
		case next.GreaterThan(out[i].Quantity):
			return nil, fmt.Errorf("%w: order line %d remaining %s, received %s",
				ErrQuantityExceedsRemaining, gr.OrderLineID, out[i].Remaining().String(), gr.Received.String())
		case next.IsNegative():
			return nil, fmt.Errorf("procurement: reversal on order line %d exceeds received quantity %s",
				gr.OrderLineID, out[i].Received.String())
		}
		out[i].Received = next
	}
	return out, nil
}

// DeriveOrderStatus computes the receipt status of an order from its lines:
// Received when every line is fully received, PartiallyReceived when any line
// has a positive received quantity, fallback otherwise.
func DeriveOrderStatus(lines []POLine, fallback POStatus) POStatus {
	if len(lines) == 0 {
		return fallback
	}
	full, some := true, false
	for _, line := range lines {
		if !line.Received.Equal(line.Quantity) {
			full = false
		}
		if line.Received.IsPositive() {
			some = true
		}
	}
	switch {
	case full:
		return POStatusReceived
	case some:
		return POStatusPartiallyReceived
	}
	return fallback
}
