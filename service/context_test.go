package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryTransactionContext(t *testing.T) {
	txContext := NewMemoryTransactionContext()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	txContext.now = func() time.Time { return now }

	txContext.BeginTransaction("g1")
	assert.Equal(t, 1, txContext.active())

	now = now.Add(1500 * time.Millisecond)

	lifetime, ok := txContext.DestroyTransaction("g1")
	assert.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, lifetime)
	assert.Zero(t, txContext.active())

	_, ok = txContext.DestroyTransaction("g1")
	assert.False(t, ok)
}
