package remoteregistry

import (
	"context"

	"github.com/skosovsky/promptkit"
)

// Fetcher fetches raw YAML manifest bytes by prompt name.
//
// Return ErrNotFound when the prompt does not exist. Wrap other errors in
// ErrFetchFailed so callers can use errors.Is.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// Lister is optional. When implemented by Fetcher, Loader.LoadAll uses it to enumerate prompts.
type Lister interface {
	ListNames(ctx context.Context) ([]string, error)
}

// ValidateName checks that name is safe for use in paths, URLs and cache keys.
func ValidateName(name string) error {
	return promptkit.ValidateName(name)
}

// CandidatePaths returns manifest filename candidates in resolution order: name.yaml, name.yml.
// Call ValidateName(name) before using the result with filesystem paths.
func CandidatePaths(name string) []string {
	return []string{name + ".yaml", name + ".yml"}
}
