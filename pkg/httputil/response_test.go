package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/physiocapture-api/pkg/errors"
)

func respond(t *testing.T, err error) (int, Response) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondWithError(c, err)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestRespondWithError_MapsTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", errors.NewNotFound("patient", nil), http.StatusNotFound},
		{"validation", errors.NewValidation("reason", "reason is required"), http.StatusBadRequest},
		{"forbidden", errors.Forbidden("transfer patient"), http.StatusForbidden},
		{"state conflict", errors.NewStateConflict("transfer request", "APPROVED"), http.StatusConflict},
		{"integrity", errors.NewIntegrity("cpf already registered"), http.StatusUnprocessableEntity},
		{"wrapped", fmt.Errorf("approve: %w", errors.NewConcurrency(nil)), http.StatusConflict},
		{"unknown", fmt.Errorf("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := respond(t, tt.err)
			assert.Equal(t, tt.status, status)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
		})
	}
}

func TestRespondWithError_FieldAndRetryable(t *testing.T) {
	_, resp := respond(t, errors.NewValidation("note", "note is required"))
	assert.Equal(t, "note", resp.Error.Field)
	assert.Equal(t, errors.ErrValidation, resp.Error.Code)

	_, resp = respond(t, errors.NewConcurrency(nil))
	assert.True(t, resp.Error.Retryable)
}

func TestRespondWithError_HidesInternalDetails(t *testing.T) {
	_, resp := respond(t, fmt.Errorf("pq: password authentication failed"))
	assert.Equal(t, "internal server error", resp.Error.Message)
}
