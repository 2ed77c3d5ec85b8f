package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThumbnailResolverPrefersMaxRes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/hasmaxres11/maxresdefault.jpg") {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewThumbnailResolver(srv.URL)
	ctx := context.Background()

	require.Equal(t, srv.URL+"/vi/hasmaxres11/maxresdefault.jpg", r.Resolve(ctx, "hasmaxres11"))
	require.Equal(t, srv.URL+"/vi/lowresonly1/hqdefault.jpg", r.Resolve(ctx, "lowresonly1"))
}

func TestThumbnailResolverCaches(t *testing.T) {
	probes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		probes++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewThumbnailResolver(srv.URL)
	ctx := context.Background()

	first := r.Resolve(ctx, "dQw4w9WgXcQ")
	second := r.Resolve(ctx, "dQw4w9WgXcQ")

	require.Equal(t, first, second)
	require.Equal(t, 1, probes)
}

func TestThumbnailResolverFallsBackOnProbeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	r := NewThumbnailResolver(base)

	url := r.Resolve(context.Background(), "dQw4w9WgXcQ")
	require.Equal(t, base+"/vi/dQw4w9WgXcQ/hqdefault.jpg", url)
}
