package procurement

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func orderLines(ordered ...string) []POLine {
	lines := make([]POLine, len(ordered))
	for i, q := range ordered {
		lines[i] = POLine{ID: int64(i + 1), ProductID: int64(100 + i), Quantity: dec(q), Received: decimal.Zero}
	}
	return lines
}

func receiptLine(orderLineID int64, received string) GRLine {
	return GRLine{OrderLineID: orderLineID, Received: dec(received), Rejected: decimal.Zero}
}

func TestApplyReceiptAddsQuantities(t *testing.T) {
	lines := orderLines("100", "10")

	got, err := ApplyReceipt(lines, []GRLine{receiptLine(1, "40"), receiptLine(2, "10")})
	require.NoError(t, err)
	require.True(t, got[0].Received.Equal(dec("40")))
	require.True(t, got[1].Received.Equal(dec("10")))
	require.True(t, lines[0].Received.IsZero(), "input must not be mutated")
	require.Equal(t, POStatusPartiallyReceived, DeriveOrderStatus(got, POStatusConfirmed))
}

func TestApplyReceiptRejectsOverReceipt(t *testing.T) {
	lines := orderLines("100")
	lines[0].Received = dec("60")

	_, err := ApplyReceipt(lines, []GRLine{receiptLine(1, "40.01")})
	require.ErrorIs(t, err, ErrQuantityExceedsRemaining)
	require.ErrorIs(t, err, shared.ErrPrecondition)

	_, err = ApplyReceipt(lines, []GRLine{receiptLine(1, "30"), receiptLine(1, "20")})
	require.ErrorIs(t, err, ErrQuantityExceedsRemaining, "duplicate lines count cumulatively")
}

func TestApplyReceiptUnknownLine(t *testing.T) {
	_, err := ApplyReceipt(orderLines("5"), []GRLine{receiptLine(99, "1")})
	require.ErrorIs(t, err, ErrOrderLineNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReverseReceiptUnderflowIsInternal(t *testing.T) {
	lines := orderLines("100")
	lines[0].Received = dec("10")
	_, err := ReverseReceipt(lines, []GRLine{receiptLine(1, "11")})
	require.Error(t, err)
	require.Nil(t, shared.KindOf(err))
}

func TestDeriveOrderStatus(t *testing.T) {
	lines := orderLines("100", "50")
	require.Equal(t, POStatusConfirmed, DeriveOrderStatus(lines, POStatusConfirmed))

	lines[1].Received = dec("50")
	require.Equal(t, POStatusPartiallyReceived, DeriveOrderStatus(lines, POStatusConfirmed))

	lines[0].Received = dec("100")
	require.Equal(t, POStatusReceived, DeriveOrderStatus(lines, POStatusConfirmed))

	require.Equal(t, POStatusSent, DeriveOrderStatus(nil, POStatusSent))
}

func TestDeriveOrderStatusIsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		lines := randomOrderLines(rng)
		first := DeriveOrderStatus(lines, POStatusConfirmed)
		require.Equal(t, first, DeriveOrderStatus(lines, first))
	}
}

func TestApplyThenReverseIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		lines := randomOrderLines(rng)
		before := DeriveOrderStatus(lines, POStatusConfirmed)
		if !before.CanReceive() {
			continue
		}
		var receipt []GRLine
		for _, line := range lines {
			remaining := line.Remaining().IntPart()
			if remaining == 0 || rng.Intn(2) == 0 {
				continue
			}
			receipt = append(receipt, GRLine{OrderLineID: line.ID, Received: decimal.NewFromInt(rng.Int63n(remaining) + 1)})
		}

		applied, err := ApplyReceipt(lines, receipt)
		require.NoError(t, err)
		for _, line := range applied {
			require.True(t, line.Received.LessThanOrEqual(line.Quantity))
			require.False(t, line.Received.IsNegative())
		}
		mid := DeriveOrderStatus(applied, before)

		reversed, err := ReverseReceipt(applied, receipt)
		require.NoError(t, err)
		for j := range lines {
			require.True(t, lines[j].Received.Equal(reversed[j].Received))
		}
		require.Equal(t, before, DeriveOrderStatus(reversed, POStatusConfirmed), "after %s", mid)
	}
}

func randomOrderLines(rng *rand.Rand) []POLine {
	n := rng.Intn(4) + 1
	lines := make([]POLine, n)
	for i := range lines {
		ordered := rng.Int63n(200) + 1
		lines[i] = POLine{
			ID:       int64(i + 1),
			Quantity: decimal.NewFromInt(ordered),
			Received: decimal.NewFromInt(rng.Int63n(ordered + 1)),
		}
	}
	return lines
}
