// Package sources defines the update source contract and keeps the registry
// of the available backends.
package sources

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/vrsandeep/mango-updater/internal/models"
)

// Provider is one update backend. It builds authenticated requests and
// decodes the backend's wire shapes into a normalized Release.
//
// Decode functions return (nil, nil) when the response is well formed but
// holds no release or artifact.
type Provider interface {
	Type() models.SourceType
	// Authorize adds the backend's authentication header when token is set.
	Authorize(req *http.Request, token string)
	ReleaseURL(base string) string
	DecodeRelease(data []byte, base string) (*models.Release, error)
	// ArtifactURL returns "" when the backend has no development channel.
	ArtifactURL(base string) string
	DecodeArtifact(data []byte, base string) (*models.Release, error)
}

// Registry maps source types to providers.
type Registry struct {
	providers map[models.SourceType]Provider
}

// NewRegistry returns a registry holding ps.
func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{providers: make(map[models.SourceType]Provider)}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register adds a provider. It panics on a duplicate source type or
// an attempt to register the disabled type, both of which are setup errors.
func (r *Registry) Register(p Provider) {
	t := p.Type()
	if t == models.SourceDisabled {
		panic("cannot register a provider for the disabled source type")
	}
	if _, exists := r.providers[t]; exists {
		panic(fmt.Sprintf("provider for source type '%s' is already registered", t))
	}
	r.providers[t] = p
}

// Get returns the provider for t.
func (r *Registry) Get(t models.SourceType) (Provider, bool) {
	p, ok := r.providers[t]
	return p, ok
}

// Types lists the registered source types in ascending order.
func (r *Registry) Types() []models.SourceType {
	types := make([]models.SourceType, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Join appends path to base without doubling the separator.
func Join(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}
