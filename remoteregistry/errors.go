package remoteregistry

import "errors"

// Sentinel errors for remote registry operations.
// Callers should use errors.Is to check.
var (
	// ErrFetchFailed indicates the Fetcher could not retrieve the manifest.
	ErrFetchFailed = errors.New("remoteregistry: fetch failed")
	// ErrHTTPStatus indicates an unexpected HTTP status (e.g. 500) when using HTTPFetcher.
	ErrHTTPStatus = errors.New("remoteregistry: unexpected HTTP status")
	// ErrNotFound indicates no manifest exists for the name. Loader also wraps *promptkit.NotFoundError.
	ErrNotFound = errors.New("remoteregistry: no manifest found")
	// ErrNameMismatch indicates a manifest whose name differs from the requested one.
	ErrNameMismatch = errors.New("remoteregistry: manifest name does not match")
	// ErrNoLister is returned by LoadAll when the Fetcher cannot enumerate manifests.
	ErrNoLister = errors.New("remoteregistry: fetcher cannot list manifests")
)
