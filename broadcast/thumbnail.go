package broadcast

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	thumbnailTimeout   = 5 * time.Second
	thumbnailCacheSize = 256
	thumbnailCDN       = "https://img.youtube.com"
)

// ThumbnailResolver picks the preview image for a video: the maxres variant
// when the CDN has one, hqdefault otherwise. Results are cached per video id
// since the answer never changes.
type ThumbnailResolver struct {
	client  *resty.Client
	baseURL string
	cache   *lru.Cache[string, string]
}

// NewThumbnailResolver builds a resolver against baseURL, or the public CDN
// when baseURL is empty.
func NewThumbnailResolver(baseURL string) *ThumbnailResolver {
	if baseURL == "" {
		baseURL = thumbnailCDN
	}
	cache, err := lru.New[string, string](thumbnailCacheSize)
	if err != nil {
		panic(err)
	}
	return &ThumbnailResolver{
		client:  resty.New().SetTimeout(thumbnailTimeout),
		baseURL: baseURL,
		cache:   cache,
	}
}

// Resolve never fails; on probe errors it falls back to hqdefault without
// caching, so a transient outage does not pin the low-res answer.
func (r *ThumbnailResolver) Resolve(ctx context.Context, videoID string) string {
	if url, ok := r.cache.Get(videoID); ok {
		return url
	}

	maxres := fmt.Sprintf("%s/vi/%s/maxresdefault.jpg", r.baseURL, videoID)
	hq := fmt.Sprintf("%s/vi/%s/hqdefault.jpg", r.baseURL, videoID)

	resp, err := r.client.R().SetContext(ctx).Head(maxres)
	if err != nil {
		return hq
	}

	url := hq
	if resp.StatusCode() == http.StatusOK {
		url = maxres
	}
	r.cache.Add(videoID, url)
	return url
}
