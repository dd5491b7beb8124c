// internal/domain/order/entity_test.go
package order

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowedNextGraph(t *testing.T) {
	cases := []struct {
		from Status
		want []Status
	}{
		{StatusPaymentPending, []Status{StatusPending, StatusProcessing, StatusCancelled}},
		{StatusPending, []Status{StatusProcessing, StatusCancelled}},
		{StatusProcessing, []Status{StatusShipped, StatusOnHold, StatusCancelled}},
		{StatusShipped, []Status{StatusDelivered}},
		{StatusDelivered, []Status{StatusCompleted, StatusRefunded}},
		{StatusCompleted, []Status{StatusRefunded}},
		{StatusOnHold, []Status{StatusProcessing, StatusCancelled}},
		{StatusCancelled, nil},
		{StatusRefunded, nil},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, AllowedNext(tc.from), "from %s", tc.from)
	}
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, IsTerminal(StatusCancelled))
	assert.True(t, IsTerminal(StatusRefunded))

	for _, s := range AllStatuses {
		if s == StatusCancelled || s == StatusRefunded {
			continue
		}
		assert.False(t, IsTerminal(s), "status %s must not be terminal", s)
	}
}

func TestCanTransitionRejectsSkipsAndReversals(t *testing.T) {
	// Skipping forward
	assert.False(t, CanTransition(StatusPending, StatusShipped))
	assert.False(t, CanTransition(StatusProcessing, StatusDelivered))
	// Going backwards
	assert.False(t, CanTransition(StatusShipped, StatusProcessing))
	assert.False(t, CanTransition(StatusDelivered, StatusShipped))
	// Out of terminal states
	assert.False(t, CanTransition(StatusCancelled, StatusPending))
	assert.False(t, CanTransition(StatusRefunded, StatusCompleted))
	// Shipped orders cannot be cancelled, only delivered
	assert.False(t, CanTransition(StatusShipped, StatusCancelled))
	// Self transition
	assert.False(t, CanTransition(StatusPending, StatusPending))
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range AllStatuses {
		assert.True(t, IsValidStatus(s))
	}
	assert.False(t, IsValidStatus(Status("packed")))
	assert.False(t, IsValidStatus(Status("")))
}

func TestNewOrderNumberFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^ORD-\d{8}-[0-9A-F]{6}$`)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		n := NewOrderNumber()
		assert.Regexp(t, pattern, n)
		assert.False(t, seen[n], "order numbers must not repeat: %s", n)
		seen[n] = true
	}
}

func TestCanBeCancelled(t *testing.T) {
	cancellable := []Status{StatusPaymentPending, StatusPending, StatusProcessing, StatusOnHold}
	for _, s := range cancellable {
		o := Order{Status: s}
		assert.True(t, o.CanBeCancelled(), "status %s", s)
	}

	notCancellable := []Status{StatusShipped, StatusDelivered, StatusCompleted, StatusCancelled, StatusRefunded}
	for _, s := range notCancellable {
		o := Order{Status: s}
		assert.False(t, o.CanBeCancelled(), "status %s", s)
	}
}

func TestInventoryCommitted(t *testing.T) {
	assert.False(t, (&Order{Status: StatusPaymentPending}).InventoryCommitted())
	assert.False(t, (&Order{Status: StatusPending}).InventoryCommitted())
	assert.True(t, (&Order{Status: StatusProcessing}).InventoryCommitted())
	assert.True(t, (&Order{Status: StatusShipped}).InventoryCommitted())
	assert.True(t, (&Order{Status: StatusOnHold}).InventoryCommitted())

	// A cancelled order that passed through processing keeps its stamp
	now := time.Now()
	o := &Order{Status: StatusCancelled, ProcessedAt: &now}
	assert.True(t, o.InventoryCommitted())
	assert.False(t, (&Order{Status: StatusCancelled}).InventoryCommitted())
}
