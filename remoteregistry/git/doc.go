// Package git provides a Fetcher that reads YAML manifests from a Git repository.
// It clones the repo on first use, pulls on later fetches, and reads files from
// the working tree. Use NewFetcher with the repo URL and pass the result to
// remoteregistry.New.
package git
