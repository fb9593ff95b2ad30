package oautherr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrom_WrapsUnknownAsServerError(t *testing.T) {
	cause := errors.New("pg: connection refused")
	oe := From(cause)
	assert.Equal(t, CodeServerError, oe.Code)
	assert.Equal(t, http.StatusInternalServerError, oe.Status)
	assert.ErrorIs(t, oe, cause)
	assert.NotContains(t, oe.Description, "pg")
}

func TestIs_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("exchange: %w", InvalidGrant("code expired"))
	assert.ErrorIs(t, err, InvalidGrant(""))
	assert.NotErrorIs(t, err, InvalidClient(""))
	assert.True(t, HasCode(err, CodeInvalidGrant))
}

func TestWrite_HidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(context.Background(), rec, InvalidClient("bad secret").WithCause(errors.New("hash=abc")))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"error": "invalid_client", "error_description": "bad secret"}, body)
}
