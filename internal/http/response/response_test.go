package response

import (
	"testing"

	"github.com/go-playground/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOK(t *testing.T) {
	resp := OK(StatusReady)

	assert.Equal(t, StatusReady, resp.Status)
	assert.Empty(t, resp.Error)
}

func TestError(t *testing.T) {
	msg := "service unavailable"
	resp := Error(msg)

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, msg, resp.Error)
}

func TestValidationError(t *testing.T) {
	type params struct {
		T string `validate:"required,oneof=h hp d m y s"`
	}

	tests := []struct {
		name    string
		value   string
		wantMsg string
	}{
		{name: "параметр не передан", value: "", wantMsg: "parameter t is required"},
		{name: "неизвестное значение", value: "w", wantMsg: "parameter t must be one of: h hp d m y s"},
	}

	v := validator.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(params{T: tt.value})
			require.Error(t, err)

			resp := ValidationError(err.(validator.ValidationErrors))
			assert.Equal(t, StatusError, resp.Status)
			assert.Equal(t, tt.wantMsg, resp.Error)
		})
	}
}

func TestValidationErrorUnknownTag(t *testing.T) {
	type params struct {
		Limit string `validate:"numeric"`
	}

	err := validator.New().Struct(params{Limit: "ten"})
	require.Error(t, err)

	resp := ValidationError(err.(validator.ValidationErrors))
	assert.Equal(t, "parameter limit is not valid", resp.Error)
}
