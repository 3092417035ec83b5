package domain

import (
	"errors"
	"time"
)

// Asset is a static file resolved from the key-value asset store.
type Asset struct {
	Key         string
	Body        []byte
	ContentType string
	ETag        string
	UpdatedAt   time.Time
}

// AssetRequest is an inbound request against the asset surface.
type AssetRequest struct {
	Method string
	Path   string
	// Origin is scheme://host as seen by the client, without a trailing slash.
	Origin string
}

// AssetResponse is the fully decided response for an AssetRequest.
type AssetResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// CachePolicy is the store's default caching behaviour.
// A nil BrowserTTL leaves Cache-Control unset.
type CachePolicy struct {
	EdgeTTL    time.Duration
	BrowserTTL *time.Duration
}

// SiteSettings are the runtime knobs of the asset server.
type SiteSettings struct {
	Debug bool
	Cache CachePolicy
}

// ErrAssetNotFound is returned by asset stores when no item exists for a key.
var ErrAssetNotFound = errors.New("asset not found")
