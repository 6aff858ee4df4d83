package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenAuth(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("empty configured token disables auth", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/jobs", nil)
		rec := httptest.NewRecorder()

		TokenAuth("")(handler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("matching token passes", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/jobs", nil)
		req.Header.Set(AuthHeader, "sekrit")
		rec := httptest.NewRecorder()

		TokenAuth("sekrit")(handler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing token is rejected", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/jobs", nil)
		rec := httptest.NewRecorder()

		TokenAuth("sekrit")(handler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
	})

	t.Run("wrong token is rejected", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/jobs", nil)
		req.Header.Set(AuthHeader, "guess")
		rec := httptest.NewRecorder()

		TokenAuth("sekrit")(handler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
