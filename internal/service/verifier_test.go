package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProfileServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/user.info" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("handles") {
		case "tourist":
			_, _ = w.Write([]byte(`{"status":"OK","result":[{"handle":"tourist","titlePhoto":"https://img/tourist.jpg"}]}`))
		case "broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"status":"FAILED","comment":"handles: User not found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProfileVerifier_Verify(t *testing.T) {
	srv := newProfileServer(t)
	v := NewProfileVerifier(srv.URL+"/api", srv.Client())

	got, err := v.Verify(context.Background(), "tourist")
	require.NoError(t, err)
	assert.Equal(t, Verification{Verified: true, AvatarURL: "https://img/tourist.jpg"}, got)

	got, err = v.Verify(context.Background(), "nobody-here")
	require.NoError(t, err)
	assert.False(t, got.Verified)

	_, err = v.Verify(context.Background(), "broken")
	assert.Error(t, err)
}
