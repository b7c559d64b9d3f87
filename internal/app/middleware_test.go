package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestSetupMiddleware(t *testing.T) {
	newRouter := func(seen *string) *mux.Router {
		r := mux.NewRouter()
		SetupMiddleware(r)
		r.HandleFunc("/ping", func(w http.ResponseWriter, req *http.Request) {
			*seen = RequestId(req.Context())
			w.WriteHeader(http.StatusTeapot)
		})
		return r
	}

	t.Run("should assign a request id when none is sent", func(t *testing.T) {
		// given
		var seen string
		router := newRouter(&seen)

		// when
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))

		// then
		assert.Equal(t, http.StatusTeapot, rr.Code)
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rr.Header().Get("X-Request-Id"))
	})

	t.Run("should keep the caller's request id", func(t *testing.T) {
		var seen string
		router := newRouter(&seen)
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Request-Id", "abc-123")

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rr.Header().Get("X-Request-Id"))
	})
}
