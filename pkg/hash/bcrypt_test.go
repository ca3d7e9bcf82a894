package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashKey_RoundTrip(t *testing.T) {
	h, err := HashKey("sk-acme-123")
	require.NoError(t, err)
	assert.NotEqual(t, "sk-acme-123", h)
	assert.True(t, CheckKeyHash("sk-acme-123", h))
	assert.False(t, CheckKeyHash("sk-acme-124", h))
	assert.False(t, CheckKeyHash("sk-acme-123", "not-a-hash"))
}
