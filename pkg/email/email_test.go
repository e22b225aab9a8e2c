package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "kycflow/pkg/domain-errors"
)

func TestNormalize(t *testing.T) {
	got, err := Normalize("  Jane Doe <Jane.Doe@Example.COM> ")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", got)

	_, err = Normalize("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = Normalize("not-an-address")
	assert.Equal(t, "email", dErrors.FieldOf(err))
}

func TestGreetingName(t *testing.T) {
	tests := []struct {
		name, declared, email, want string
	}{
		{"declared name wins", "  Jane   Doe ", "x@example.com", "Jane Doe"},
		{"derived from dotted mailbox", "", "jane.doe@example.com", "Jane Doe"},
		{"digits and plus tags dropped", "", "JOHN_smith+kyc42@example.com", "John Smith Kyc"},
		{"nothing usable", "", "1234@example.com", "Customer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GreetingName(tt.declared, tt.email))
		})
	}
}
