package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromStatusMapsCodes(t *testing.T) {
	cases := []struct {
		status int
		want   Code
	}{
		{http.StatusUnauthorized, CodeAuthExpired},
		{http.StatusNotFound, CodeNotFound},
		{http.StatusConflict, CodeConflict},
		{http.StatusBadRequest, CodeValidation},
		{http.StatusInternalServerError, CodeServer},
		{http.StatusBadGateway, CodeServer},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, FromStatus(tc.status, nil).Code, "status %d", tc.status)
	}
}

func TestFromStatusExtractsServerMessage(t *testing.T) {
	err := FromStatus(404, []byte(`{"error": "Exam not found"}`))
	assert.Equal(t, "Exam not found", err.Message)

	err = FromStatus(401, []byte(`{"detail": "token not valid"}`))
	assert.Equal(t, "token not valid", err.Message)

	err = FromStatus(500, []byte("<html>oops</html>"))
	assert.Equal(t, http.StatusText(500), err.Message)
}

func TestIsAuthExpired(t *testing.T) {
	assert.True(t, IsAuthExpired(ErrAuthExpired))
	assert.True(t, IsAuthExpired(fmt.Errorf("wrapped: %w", ErrAuthExpired)))
	assert.True(t, IsAuthExpired(FromStatus(401, nil)))
	assert.False(t, IsAuthExpired(FromStatus(500, nil)))
	assert.False(t, IsAuthExpired(errors.New("other")))
}

func TestValidationCarriesFields(t *testing.T) {
	err := Validation(map[string]string{"username": "required"})
	assert.Equal(t, CodeValidation, err.Code)
	assert.Equal(t, "required", err.Fields["username"])
}
