package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "4f9a0cf2-95ee-41f0-bc28-cdd0e2a184b3"

func TestBearerUserID(t *testing.T) {
	auth := BearerUserID{}

	r := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
	r.Header.Set("Authorization", "Bearer "+testUser)
	user, ok := auth.Authenticate(r)
	require.True(t, ok)
	assert.Equal(t, testUser, user)
}

func TestBearerUserID_Rejections(t *testing.T) {
	auth := BearerUserID{}

	cases := map[string]string{
		"no header":    "",
		"not bearer":   "Basic abc",
		"not a uuid":   "Bearer not-a-uuid",
		"empty bearer": "Bearer ",
	}

	for name, header := range cases {
		r := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		_, ok := auth.Authenticate(r)
		assert.False(t, ok, name)
	}
}

func TestHandleAsk_Unauthorized(t *testing.T) {
	srv := New(nil, BearerUserID{}, nil)

	r := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"hi"}`))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleAsk_BadBody(t *testing.T) {
	srv := New(nil, BearerUserID{}, nil)

	r := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader("{not json"))
	r.Header.Set("Authorization", "Bearer "+testUser)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	srv := New(nil, BearerUserID{}, nil)

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
