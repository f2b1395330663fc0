package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{raw: "Complete", want: StatusComplete},
		{raw: "Pending", want: StatusPending},
		{raw: "Running", want: StatusPending},
		{raw: "complete", want: StatusPending},
		{raw: "", want: StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.raw))
		})
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	id, err := NormalizeIdentifier("  ACME Corp ")
	require.NoError(t, err)
	assert.Equal(t, "ACME Corp", id)

	_, err = NormalizeIdentifier("   ")
	assert.ErrorIs(t, err, ErrEmptyIdentifier)
}

func TestIsTransport(t *testing.T) {
	err := &TransportError{Op: "status", Err: ErrMalformedResponse}
	assert.True(t, IsTransport(err))
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.False(t, IsTransport(ErrNotFound))
}
