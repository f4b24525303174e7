package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewParticipantPair_OrderIndependent(t *testing.T) {
	ab := NewParticipantPair("user-a", "user-b")
	ba := NewParticipantPair("user-b", "user-a")

	assert.Equal(t, ab, ba)
	assert.Equal(t, "user-a", ab[0])
	assert.Equal(t, "user-b", ab[1])
}

func TestParticipantPair_Contains(t *testing.T) {
	pair := NewParticipantPair("tenant-1", "landlord-9")

	assert.True(t, pair.Contains("tenant-1"))
	assert.True(t, pair.Contains("landlord-9"))
	assert.False(t, pair.Contains("stranger"))
	assert.False(t, pair.Contains(""))
}

func TestParticipantPair_Other(t *testing.T) {
	pair := NewParticipantPair("tenant-1", "landlord-9")

	assert.Equal(t, "tenant-1", pair.Other("landlord-9"))
	assert.Equal(t, "landlord-9", pair.Other("tenant-1"))
	assert.Equal(t, "", pair.Other("stranger"))
}
