package procurement

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	sequenceDigits = 4
	sequenceMax    = 9999
)

// SequenceSource reads the greatest document number issued under a prefix.
// It must run inside the transaction that inserts the new document.
type SequenceSource interface {
	LastNumber(ctx context.Context, doc DocumentType, prefix string) (string, error)
}

// SequencePrefix returns the number prefix of doc for the calendar month of period,
// for example PR202501.
func SequencePrefix(doc DocumentType, period time.Time) string {
	return fmt.Sprintf("%s%04d%02d", doc, period.Year(), int(period.Month()))
}

// NextNumber returns the number following last under prefix. An empty last
// starts the counter at 0001.
func NextNumber(prefix, last string) (string, error) {
	if last == "" {
		return formatNumber(prefix, 1), nil
	}
	digits, ok := strings.CutPrefix(last, prefix)
	if !ok || len(digits) != sequenceDigits {
		return "", fmt.Errorf("procurement: number %q does not match prefix %q", last, prefix)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return "", fmt.Errorf("procurement: number %q has a malformed counter", last)
	}
	if n >= sequenceMax {
		return "", fmt.Errorf("%w: %s", ErrSequenceExhausted, prefix)
	}
	return formatNumber(prefix, n+1), nil
}

// NextDocumentNumber allocates the next number of doc for the month of period.
func NextDocumentNumber(ctx context.Context, src SequenceSource, doc DocumentType, period time.Time) (string, error) {
	prefix := SequencePrefix(doc, period)
	last, err := src.LastNumber(ctx, doc, prefix)
	if err != nil {
		return "", err
	}
	return NextNumber(prefix, last)
}

func formatNumber(prefix string, n int) string {
	return fmt.Sprintf("%s%0*d", prefix, sequenceDigits, n)
}
