package sources_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vrsandeep/mango-updater/internal/models"
	"github.com/vrsandeep/mango-updater/internal/sources"
	"github.com/vrsandeep/mango-updater/internal/sources/github"
	"github.com/vrsandeep/mango-updater/internal/sources/gitlab"
	"github.com/vrsandeep/mango-updater/internal/sources/remote"
	"github.com/vrsandeep/mango-updater/internal/sources/web"
)

type disabledProvider struct{ sources.Provider }

func (disabledProvider) Type() models.SourceType { return models.SourceDisabled }

func TestRegistry(t *testing.T) {
	r := sources.NewRegistry(gitlab.New(), github.New(), web.New(), remote.New())

	t.Run("Get registered provider", func(t *testing.T) {
		p, ok := r.Get(models.SourceGitHub)
		if !ok {
			t.Fatal("Expected to find the GitHub provider, but it was not found")
		}
		assert.Equal(t, models.SourceGitHub, p.Type())
	})

	t.Run("Get disabled", func(t *testing.T) {
		_, ok := r.Get(models.SourceDisabled)
		assert.False(t, ok)
	})

	t.Run("Types are sorted", func(t *testing.T) {
		assert.Equal(t, []models.SourceType{
			models.SourceGitLab, models.SourceGitHub, models.SourceHTTP, models.SourceManifest,
		}, r.Types())
	})

	t.Run("Panic on Duplicate Registration", func(t *testing.T) {
		assert.Panics(t, func() { r.Register(gitlab.New()) })
	})

	t.Run("Panic on disabled type", func(t *testing.T) {
		assert.Panics(t, func() { r.Register(disabledProvider{}) })
	})
}

func TestAuthorizeHeaders(t *testing.T) {
	newReq := func() *http.Request {
		req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
		return req
	}

	req := newReq()
	gitlab.New().Authorize(req, "glpat")
	assert.Equal(t, "glpat", req.Header.Get("PRIVATE-TOKEN"))

	req = newReq()
	github.New().Authorize(req, "ghp")
	assert.Equal(t, "token ghp", req.Header.Get("Authorization"))

	req = newReq()
	github.New().Authorize(req, "")
	assert.Empty(t, req.Header.Get("Authorization"))

	req = newReq()
	web.New().Authorize(req, "ignored")
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Empty(t, req.Header.Get("PRIVATE-TOKEN"))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "https://x/api/releases", sources.Join("https://x/api/", "/releases"))
	assert.Equal(t, "https://x/api/releases", sources.Join("https://x/api", "releases"))
}
