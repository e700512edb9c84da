package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skosovsky/promptkit"
)

// ErrInvalidManifest is returned for malformed YAML or a manifest that does not describe a valid template.
var ErrInvalidManifest = errors.New("manifest: invalid manifest")

// fileManifest is the YAML manifest shape bound directly to domain types.
type fileManifest struct {
	Name           string           `yaml:"name"`
	Version        string           `yaml:"version,omitempty"`
	Description    string           `yaml:"description,omitempty"`
	System         string           `yaml:"system,omitempty"`
	User           string           `yaml:"user"`
	RequestFormat  promptkit.Schema `yaml:"request_format,omitempty"`
	ResponseFormat promptkit.Schema `yaml:"response_format,omitempty"`
}

// ParseBytes parses a single YAML manifest.
func ParseBytes(data []byte) (promptkit.PromptTemplate, error) {
	all, err := ParseAll(data)
	if err != nil {
		return promptkit.PromptTemplate{}, err
	}
	if len(all) != 1 {
		return promptkit.PromptTemplate{}, fmt.Errorf("%w: want 1 document, got %d", ErrInvalidManifest, len(all))
	}
	return all[0], nil
}

// ParseAll parses a YAML stream of one or more manifests separated by "---".
func ParseAll(data []byte) ([]promptkit.PromptTemplate, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var out []promptkit.PromptTemplate
	for i := 0; ; i++ {
		var m fileManifest
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: document %d: %w", ErrInvalidManifest, i, err)
		}
		t, err := m.template()
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// ParseFile reads and parses a manifest file.
func ParseFile(path string) (promptkit.PromptTemplate, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is chosen by the caller
	if err != nil {
		return promptkit.PromptTemplate{}, fmt.Errorf("manifest: read file: %w", err)
	}
	return ParseBytes(data)
}

// ParseFS reads and parses a manifest from fs.FS (e.g. embed.FS).
func ParseFS(fsys fs.FS, name string) (promptkit.PromptTemplate, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return promptkit.PromptTemplate{}, fmt.Errorf("manifest: read fs: %w", err)
	}
	return ParseBytes(data)
}

// Marshal renders t as a manifest. ParseBytes(Marshal(t)) yields t.
func Marshal(t promptkit.PromptTemplate) ([]byte, error) {
	m := fileManifest{
		Name:           t.Name,
		Version:        t.Version,
		Description:    t.Description,
		System:         t.System,
		User:           t.User,
		RequestFormat:  t.RequestFormat,
		ResponseFormat: t.ResponseFormat,
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&m); err != nil {
		return nil, fmt.Errorf("manifest: encode %q: %w", t.Name, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("manifest: encode %q: %w", t.Name, err)
	}
	return buf.Bytes(), nil
}

func (m *fileManifest) template() (promptkit.PromptTemplate, error) {
	if m.Name == "" {
		return promptkit.PromptTemplate{}, fmt.Errorf("%w: missing name", ErrInvalidManifest)
	}
	t := promptkit.PromptTemplate{
		Name:           m.Name,
		Description:    m.Description,
		Version:        m.Version,
		System:         m.System,
		User:           m.User,
		RequestFormat:  m.RequestFormat,
		ResponseFormat: m.ResponseFormat,
	}
	if err := t.Validate(); err != nil {
		return promptkit.PromptTemplate{}, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	return t, nil
}
