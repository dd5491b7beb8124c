// internal/domain/payment/entity_test.go
package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsConfirmable(t *testing.T) {
	confirmable := []Status{StatusInitiated, StatusPending, StatusAuthorized, StatusCaptured}
	for _, s := range confirmable {
		assert.True(t, IsConfirmable(s), "status %s", s)
	}

	settled := []Status{StatusCompleted, StatusFailed, StatusRefunded, StatusPartiallyRefunded}
	for _, s := range settled {
		assert.False(t, IsConfirmable(s), "status %s", s)
	}
}

func TestIsRefundable(t *testing.T) {
	assert.True(t, IsRefundable(StatusCompleted))
	assert.True(t, IsRefundable(StatusCaptured))
	assert.True(t, IsRefundable(StatusPartiallyRefunded))

	assert.False(t, IsRefundable(StatusInitiated))
	assert.False(t, IsRefundable(StatusPending))
	assert.False(t, IsRefundable(StatusFailed))
	assert.False(t, IsRefundable(StatusRefunded), "a fully refunded payment has nothing left to refund")
}

func TestDeriveRefundStatus(t *testing.T) {
	assert.Equal(t, StatusPartiallyRefunded, DeriveRefundStatus(10000, 2500))
	assert.Equal(t, StatusPartiallyRefunded, DeriveRefundStatus(10000, 9999))
	assert.Equal(t, StatusRefunded, DeriveRefundStatus(10000, 10000))
}

func TestRemainingRefundable(t *testing.T) {
	p := &Payment{Amount: 50000, TotalRefunded: 12000}
	assert.Equal(t, int64(38000), p.RemainingRefundable())

	full := &Payment{Amount: 50000, TotalRefunded: 50000}
	assert.Equal(t, int64(0), full.RemainingRefundable())
}
