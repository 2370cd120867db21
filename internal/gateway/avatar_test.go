package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAvatarLoader_LoadAvatar(t *testing.T) {
	testCases := []struct {
		name        string
		handlerFunc func(w http.ResponseWriter, r *http.Request)
		expected    string
		expectError bool
	}{
		{
			name: "encodes the avatar as a data URI",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "50", r.URL.Query().Get("s"))
				assert.Equal(t, "4", r.URL.Query().Get("v"))
				w.Header().Set("Content-Type", "image/png")
				_, _ = w.Write([]byte("png"))
			},
			expected: "data:image/png;base64,cG5n",
		},
		{
			name: "error status",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tc.handlerFunc))
			defer server.Close()

			loader := NewHTTPAvatarLoader(server.Client())
			got, err := loader.LoadAvatar(context.Background(), server.URL+"/u/1?v=4")

			if tc.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}
