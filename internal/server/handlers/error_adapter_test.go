package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPErrorResponder(t *testing.T) {
	original := httpErrorResponder
	defer func() { httpErrorResponder = original }()

	t.Run("custom responder is used", func(t *testing.T) {
		var captured error
		SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
			captured = err
			w.WriteHeader(http.StatusTeapot)
		})

		rec := httptest.NewRecorder()
		respondWithError(rec, httptest.NewRequest("GET", "/test", nil), assert.AnError)

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Equal(t, assert.AnError, captured)
	})

	t.Run("nil restores default", func(t *testing.T) {
		SetHTTPErrorResponder(nil)
		assert.NotNil(t, httpErrorResponder)

		rec := httptest.NewRecorder()
		respondWithError(rec, httptest.NewRequest("GET", "/test", nil), assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("reset restores default", func(t *testing.T) {
		SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
			w.WriteHeader(http.StatusTeapot)
		})
		ResetHTTPErrorResponder()

		rec := httptest.NewRecorder()
		respondWithError(rec, httptest.NewRequest("GET", "/test", nil), assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
