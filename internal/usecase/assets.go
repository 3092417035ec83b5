package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"neox-site/internal/domain"
)

const (
	defaultEdgeTTL      = 2 * 24 * time.Hour
	settingsLoadTimeout = 2 * time.Second
	settingsRetryAfter  = 30 * time.Second
)

type AssetStore interface {
	GetAsset(ctx context.Context, key string) (domain.Asset, error)
}

type SettingsLoader interface {
	LoadSiteSettings(ctx context.Context, defaults domain.SiteSettings) (domain.SiteSettings, error)
}

// DefaultSiteSettings is the production path: 404 fallback enabled, two day
// edge TTL, browser TTL left to the client.
func DefaultSiteSettings() domain.SiteSettings {
	return domain.SiteSettings{
		Cache: domain.CachePolicy{EdgeTTL: defaultEdgeTTL},
	}
}

type fetchOutcome int

const (
	fetchFound fetchOutcome = iota
	fetchNotFound
	fetchFailed
)

type fetchResult struct {
	outcome fetchOutcome
	asset   domain.Asset
	err     error
}

// AssetService is the edge handler for static content. Serve always
// produces a response.
type AssetService struct {
	store    AssetStore
	loader   SettingsLoader
	defaults domain.SiteSettings

	settingsMu      sync.RWMutex
	settingsLoaded  bool
	settings        domain.SiteSettings
	retryAt         time.Time
	loadGroup       singleflight.Group
	settingsTimeout time.Duration
	now             func() time.Time
}

// NewAssetService creates an AssetService. loader may be nil, in which case
// defaults are used as-is.
func NewAssetService(store AssetStore, loader SettingsLoader, defaults domain.SiteSettings) (*AssetService, error) {
	if store == nil {
		return nil, errors.New("usecase: asset store must not be nil")
	}
	s := &AssetService{
		store:           store,
		loader:          loader,
		defaults:        defaults,
		settingsTimeout: settingsLoadTimeout,
		now:             time.Now,
	}
	if loader == nil {
		s.settings = defaults
		s.settingsLoaded = true
	}
	return s, nil
}

func (s *AssetService) Serve(ctx context.Context, req domain.AssetRequest) domain.AssetResponse {
	if _, ok := legacyAliases[req.Path]; ok {
		return redirectToRoot(req.Origin)
	}

	settings := s.siteSettings(ctx)
	primary := s.fetch(ctx, req.Method, AssetKey(req.Path))
	if primary.outcome == fetchFound {
		return domain.AssetResponse{
			StatusCode: http.StatusOK,
			Headers:    decorate(storeHeaders(primary.asset, settings.Cache), req.Path),
			Body:       bodyFor(req.Method, primary.asset.Body),
		}
	}

	if !settings.Debug {
		fallback := s.fetch(ctx, http.MethodGet, notFoundKey)
		if fallback.outcome == fetchFound {
			if primary.outcome == fetchFailed {
				slog.WarnContext(ctx, "asset lookup failed, serving not-found page", "path", req.Path, "err", primary.err)
			} else {
				slog.DebugContext(ctx, "serving not-found page", "path", req.Path)
			}
			return domain.AssetResponse{
				StatusCode: http.StatusNotFound,
				Headers:    map[string]string{"Content-Type": contentType(fallback.asset)},
				Body:       bodyFor(req.Method, fallback.asset.Body),
			}
		}
		slog.WarnContext(ctx, "not-found page unavailable", "err", fallback.err)
	}

	slog.WarnContext(ctx, "asset request failed", "path", req.Path, "err", primary.err)
	return failure(primary.err)
}

func (s *AssetService) fetch(ctx context.Context, method, key string) fetchResult {
	if method != http.MethodGet && method != http.MethodHead {
		return fetchResult{
			outcome: fetchFailed,
			err:     newError(ErrorMethodNotAllowed, method+" is not a valid request method", nil),
		}
	}
	asset, err := s.store.GetAsset(ctx, key)
	switch {
	case err == nil:
		if asset.Key == "" {
			asset.Key = key
		}
		return fetchResult{outcome: fetchFound, asset: asset}
	case errors.Is(err, domain.ErrAssetNotFound):
		return fetchResult{outcome: fetchNotFound, err: err}
	default:
		return fetchResult{outcome: fetchFailed, err: err}
	}
}

// siteSettings never holds a lock across the loader call. Concurrent misses
// share one load, and a failed load serves defaults until retryAt.
func (s *AssetService) siteSettings(ctx context.Context) domain.SiteSettings {
	if settings, ok := s.cachedSettings(); ok {
		return settings
	}

	v, _, _ := s.loadGroup.Do("settings", func() (any, error) {
		if settings, ok := s.cachedSettings(); ok {
			return settings, nil
		}

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settingsTimeout)
		defer cancel()
		loaded, err := s.loader.LoadSiteSettings(loadCtx, s.defaults)

		s.settingsMu.Lock()
		defer s.settingsMu.Unlock()
		if err != nil {
			slog.WarnContext(ctx, "failed to load site settings, using defaults", "err", err, "retry_in", settingsRetryAfter)
			s.retryAt = s.now().Add(settingsRetryAfter)
			return s.defaults, nil
		}
		s.settings = loaded
		s.settingsLoaded = true
		return loaded, nil
	})
	return v.(domain.SiteSettings)
}

func (s *AssetService) cachedSettings() (domain.SiteSettings, bool) {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	if s.settingsLoaded {
		return s.settings, true
	}
	if s.now().Before(s.retryAt) {
		return s.defaults, true
	}
	return domain.SiteSettings{}, false
}

func redirectToRoot(origin string) domain.AssetResponse {
	return domain.AssetResponse{
		StatusCode: http.StatusMovedPermanently,
		Headers:    map[string]string{"Location": origin + "/"},
	}
}

func failure(err error) domain.AssetResponse {
	msg := "internal error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return domain.AssetResponse{
		StatusCode: http.StatusInternalServerError,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:       []byte(msg),
	}
}

func bodyFor(method string, body []byte) []byte {
	if method == http.MethodHead {
		return nil
	}
	return body
}
