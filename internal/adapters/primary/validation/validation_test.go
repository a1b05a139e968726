package validation

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/navbat/queue-backend/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Name string `json:"name"`
}

func (r *sampleRequest) Validate() error {
	v := NewValidator()
	v.Required("name", r.Name).MaxLength("name", r.Name, 5)
	if v.HasErrors() {
		return v.Errors()
	}
	return nil
}

func TestValidator(t *testing.T) {
	tests := []struct {
		name    string
		run     func(v *Validator)
		invalid []string
	}{
		{"required empty", func(v *Validator) { v.Required("f", "  ") }, []string{"f"}},
		{"required ok", func(v *Validator) { v.Required("f", "x") }, nil},
		{"max length", func(v *Validator) { v.MaxLength("f", "abcdef", 3) }, []string{"f"}},
		{"phone ok", func(v *Validator) { v.Phone("p", "+998901234567") }, nil},
		{"phone bad", func(v *Validator) { v.Phone("p", "12-ab") }, []string{"p"}},
		{"phone empty skipped", func(v *Validator) { v.Phone("p", "") }, nil},
		{"range", func(v *Validator) { v.Range("n", 0, 1, 10) }, []string{"n"}},
		{"one of", func(v *Validator) { v.OneOf("s", "X", []string{"A", "B"}) }, []string{"s"}},
		{"one of empty skipped", func(v *Validator) { v.OneOf("s", "", []string{"A"}) }, nil},
		{"custom", func(v *Validator) { v.Custom("c", false, "bad") }, []string{"c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			tt.run(v)
			assert.Equal(t, len(tt.invalid) > 0, v.HasErrors())
			for _, field := range tt.invalid {
				assert.Contains(t, v.Errors().Errors, field)
			}
		})
	}
}

func TestDecodeAndValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ali"}`))
		req, err := DecodeAndValidate[sampleRequest](r)
		require.NoError(t, err)
		assert.Equal(t, "ali", req.Name)
	})

	t.Run("runs validation", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"toolong"}`))
		_, err := DecodeAndValidate[sampleRequest](r)
		var verrs *apperrors.ValidationErrors
		assert.True(t, errors.As(err, &verrs))
	})

	t.Run("malformed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		_, err := DecodeAndValidate[sampleRequest](r)
		assertBadRequest(t, err)
	})

	t.Run("missing body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		_, err := DecodeAndValidate[sampleRequest](r)
		assertBadRequest(t, err)
	})
}

func TestDecodeOptional(t *testing.T) {
	type reason struct {
		Reason string `json:"reason"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	req, err := DecodeOptional[reason](r)
	require.NoError(t, err)
	assert.Empty(t, req.Reason)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"late"}`))
	req, err = DecodeOptional[reason](r)
	require.NoError(t, err)
	assert.Equal(t, "late", req.Reason)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`))
	_, err = DecodeOptional[reason](r)
	assertBadRequest(t, err)
}

func TestParseBoolQueryParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?active=true&bad=maybe", nil)
	assert.True(t, ParseBoolQueryParam(r, "active", false))
	assert.True(t, ParseBoolQueryParam(r, "bad", true))
	assert.False(t, ParseBoolQueryParam(r, "missing", false))
}

func assertBadRequest(t *testing.T, err error) {
	t.Helper()
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
}
