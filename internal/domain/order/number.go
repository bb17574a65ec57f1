package order

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// maxSequence is the largest daily sequence the 5-digit field can hold.
// Overflow past it is out of scope.
const maxSequence = 99999

// NumberGenerator derives the next sequential order number for a
// customer and date from the highest number already stored.
//
// The read-then-insert sequence has a race window for two concurrent
// generations with the same prefix; the IntakeGate is the only mechanism
// closing it. Different customers use different prefixes and are safe to
// run concurrently.
type NumberGenerator struct {
	repo Repository
}

// NewNumberGenerator returns a generator backed by repo.
func NewNumberGenerator(repo Repository) *NumberGenerator {
	return &NumberGenerator{repo: repo}
}

// Next returns the next order number for the customer on the given date,
// starting at 00001 each day.
func (g *NumberGenerator) Next(ctx context.Context, customerID int64, at time.Time) (string, error) {
	prefix := fmt.Sprintf("ORDER-%d-%s-", customerID, at.Format("20060102"))

	last, err := g.repo.LastOrderNumber(ctx, prefix)
	if err != nil {
		return "", errors.Wrap(err, "last order number")
	}

	seq := 1
	if last != "" {
		i := strings.LastIndexByte(last, '-')
		n, err := strconv.Atoi(last[i+1:])
		if err != nil {
			return "", errors.Wrapf(err, "malformed order number %q", last)
		}
		seq = n + 1
	}
	if seq > maxSequence {
		return "", errors.Errorf("daily sequence exhausted for prefix %s", prefix)
	}

	return fmt.Sprintf("%s%05d", prefix, seq), nil
}
