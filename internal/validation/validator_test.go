package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type categoryForm struct {
	Category string `validate:"required,oneof=VPN DEVICE SERVER CA"`
}

func TestValidatePasses(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.Validate(loginForm{Email: "user@example.com", Password: "longenough"}))
}

func TestValidateReportsEveryFailure(t *testing.T) {
	v := NewValidator()

	err := v.Validate(loginForm{Email: "not-an-email", Password: "short"})
	require.Error(t, err)

	messages := v.Messages(loginForm{Email: "", Password: "short"})
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0], "Email")
	assert.Contains(t, messages[1], "Password")
}

func TestValidateOneOf(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.Validate(categoryForm{Category: "VPN"}))
	assert.Error(t, v.Validate(categoryForm{Category: "OTHER"}))
}
