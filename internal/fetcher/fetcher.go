package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/mango-updater/internal/models"
)

// Rules hold the naming conventions used to route downloaded files.
type Rules struct {
	// DependencyPrefix marks a file as a shared dependency. It is stripped
	// from the stored name.
	DependencyPrefix string
	// ModuleExtension identifies module files inside artifact archives.
	ModuleExtension string
	// MaxDepth bounds the directory descent inside an extracted artifact.
	MaxDepth int
}

// Classify applies the prefix rule to a declared file name.
func (r Rules) Classify(name string) (models.FileKind, string) {
	base := filepath.Base(name)
	if r.DependencyPrefix != "" && strings.HasPrefix(base, r.DependencyPrefix) {
		return models.KindDependency, strings.TrimPrefix(base, r.DependencyPrefix)
	}
	return models.KindPlugin, base
}

// Sink receives every downloaded file. path is a scratch location owned by
// the fetcher. The sink must move or copy it before returning.
type Sink func(kind models.FileKind, name, path string) error

// Fetcher downloads assets and artifacts into a scratch directory and hands
// each contained file to a Sink.
type Fetcher struct {
	client  *Client
	rules   Rules
	scratch string
}

// New creates a Fetcher. scratchDir is created lazily.
func New(client *Client, rules Rules, scratchDir string) *Fetcher {
	if rules.MaxDepth <= 0 {
		rules.MaxDepth = 8
	}
	return &Fetcher{client: client, rules: rules, scratch: scratchDir}
}

// Client returns the underlying HTTP client.
func (f *Fetcher) Client() *Client {
	return f.client
}

// Rules returns the routing rules.
func (f *Fetcher) Rules() Rules {
	return f.rules
}

func (f *Fetcher) workDir() (string, error) {
	if err := os.MkdirAll(f.scratch, 0755); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	dir, err := os.MkdirTemp(f.scratch, "dl-")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return dir, nil
}

// FetchAsset downloads one asset named name and routes it by the prefix rule.
func (f *Fetcher) FetchAsset(req *http.Request, name string, sink Sink) error {
	kind, stored := f.rules.Classify(name)
	return f.FetchFile(req, kind, stored, sink)
}

// FetchFile downloads one file that is already known to be of kind and to
// be stored as name.
func (f *Fetcher) FetchFile(req *http.Request, kind models.FileKind, name string, sink Sink) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("download from %s has no usable file name %q", req.URL, name)
	}

	dir, err := f.workDir()
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, name)
	if _, err := f.client.Download(req, path); err != nil {
		return err
	}
	log.Debug().Str("url", req.URL.String()).Str("file", name).Stringer("kind", kind).Msg("Downloaded file")
	return sink(kind, name, path)
}

// FetchArtifact downloads a CI artifact archive, extracts it and routes every
// module file of the first directory level that holds any.
func (f *Fetcher) FetchArtifact(ctx context.Context, req *http.Request, sink Sink) error {
	dir, err := f.workDir()
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	archivePath := filepath.Join(dir, "artifact.zip")
	if _, err := f.client.Download(req, archivePath); err != nil {
		return err
	}

	extracted := filepath.Join(dir, "extracted")
	if err := Extract(ctx, archivePath, extracted); err != nil {
		return err
	}

	moduleDir, files, err := FindModules(extracted, f.rules.ModuleExtension, f.rules.MaxDepth)
	if err != nil {
		return err
	}
	log.Debug().Str("url", req.URL.String()).Str("dir", moduleDir).Int("files", len(files)).Msg("Found artifact modules")

	for _, name := range files {
		kind, stored := f.rules.Classify(name)
		if err := sink(kind, stored, filepath.Join(moduleDir, name)); err != nil {
			return err
		}
	}
	return nil
}
