package usecase

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"neox-site/internal/domain"
)

const (
	notFoundKey          = "/404.html"
	immutableCacheHeader = "public, max-age=31536000, immutable"
	defaultContentType   = "application/octet-stream"
)

var securityHeaders = map[string]string{
	"X-Frame-Options":        "DENY",
	"X-Content-Type-Options": "nosniff",
	"X-XSS-Protection":       "1; mode=block",
	"Referrer-Policy":        "strict-origin-when-cross-origin",
}

// immutableExtensions get a one-year immutable Cache-Control.
// The match is on the request path and is case-sensitive.
var immutableExtensions = map[string]struct{}{
	".css":  {},
	".js":   {},
	".jpg":  {},
	".png":  {},
	".svg":  {},
	".webp": {},
}

// legacyAliases redirect permanently to the site root.
var legacyAliases = map[string]struct{}{
	"/home":  {},
	"/index": {},
}

// AssetKey maps a request path to the key it is stored under:
// "/" and "/docs/" gain "index.html", extensionless paths gain "/index.html".
func AssetKey(requestPath string) string {
	p := requestPath
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if strings.HasSuffix(p, "/") {
		return p + "index.html"
	}
	if path.Ext(p) == "" {
		return p + "/index.html"
	}
	return p
}

// CacheControlOverride reports the Cache-Control value forced for
// requestPath, if any.
func CacheControlOverride(requestPath string) (string, bool) {
	if _, ok := immutableExtensions[path.Ext(requestPath)]; ok {
		return immutableCacheHeader, true
	}
	return "", false
}

func contentType(a domain.Asset) string {
	if a.ContentType != "" {
		return a.ContentType
	}
	if ct := mime.TypeByExtension(path.Ext(a.Key)); ct != "" {
		return ct
	}
	return defaultContentType
}

// storeHeaders are the headers the asset store attaches before decoration.
func storeHeaders(a domain.Asset, policy domain.CachePolicy) map[string]string {
	h := map[string]string{
		"Content-Type": contentType(a),
	}
	if a.ETag != "" {
		h["ETag"] = a.ETag
	}
	if policy.EdgeTTL > 0 {
		h["CDN-Cache-Control"] = fmt.Sprintf("max-age=%d", int64(policy.EdgeTTL.Seconds()))
	}
	if policy.BrowserTTL != nil {
		h["Cache-Control"] = fmt.Sprintf("max-age=%d", int64(policy.BrowserTTL.Seconds()))
	}
	return h
}

// decorate clones headers, sets the security headers and applies the
// extension cache override.
func decorate(headers map[string]string, requestPath string) map[string]string {
	out := make(map[string]string, len(headers)+len(securityHeaders)+1)
	for k, v := range headers {
		out[k] = v
	}
	for k, v := range securityHeaders {
		out[k] = v
	}
	if cc, ok := CacheControlOverride(requestPath); ok {
		out["Cache-Control"] = cc
	}
	return out
}
