// Package remoteregistry fetches YAML prompt manifests from a remote source
// (HTTP server or Git repository) and registers them into a promptkit.Registry.
//
// A Loader is a read-through cache in front of the registry: Get fetches a
// prompt on first use or after its TTL expires, and concurrent misses for the
// same name share one fetch. When a refresh fails the previously fetched
// template keeps being served. LoadAll registers every prompt a Lister-capable
// Fetcher advertises.
package remoteregistry
