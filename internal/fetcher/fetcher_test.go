package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-updater/internal/models"
	"github.com/vrsandeep/mango-updater/internal/testutil"
)

var testRules = Rules{DependencyPrefix: "Dependency-", ModuleExtension: ".dll", MaxDepth: 8}

type routed struct {
	kind    models.FileKind
	name    string
	content string
}

func collect(t *testing.T, out *[]routed) Sink {
	return func(kind models.FileKind, name, path string) error {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		*out = append(*out, routed{kind: kind, name: name, content: string(data)})
		return nil
	}
}

func TestClassify(t *testing.T) {
	kind, name := testRules.Classify("Dependency-libx.dll")
	assert.Equal(t, models.KindDependency, kind)
	assert.Equal(t, "libx.dll", name)

	kind, name = testRules.Classify("Plugin.dll")
	assert.Equal(t, models.KindPlugin, kind)
	assert.Equal(t, "Plugin.dll", name)

	// Only the leading marker is stripped.
	kind, name = testRules.Classify("Dependency-Dependency-x.dll")
	assert.Equal(t, models.KindDependency, kind)
	assert.Equal(t, "Dependency-x.dll", name)
}

func TestClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TestAgent", r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"ok":true}`))
		case "/empty":
			w.WriteHeader(http.StatusOK)
		case "/missing":
			http.Error(w, "no such project", http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient("TestAgent", 5*time.Second)
	get := func(path string) ([]byte, error) {
		req, err := client.NewRequest(context.Background(), server.URL+path)
		require.NoError(t, err)
		return client.Get(req)
	}

	t.Run("success", func(t *testing.T) {
		data, err := get("/ok")
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(data))
	})

	t.Run("empty body", func(t *testing.T) {
		_, err := get("/empty")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("non-2xx", func(t *testing.T) {
		_, err := get("/missing")
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
		assert.Contains(t, statusErr.Body, "no such project")
	})
}

func TestFetchAsset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/octet-stream", r.Header.Get("Accept"))
		w.Write([]byte("binary:" + r.URL.Path))
	}))
	defer server.Close()

	scratch := t.TempDir()
	f := New(NewClient("TestAgent", 5*time.Second), testRules, scratch)

	var got []routed
	for _, name := range []string{"Dependency-libx.dll", "Plugin.dll"} {
		req, err := f.Client().NewRequest(context.Background(), server.URL+"/"+name)
		require.NoError(t, err)
		require.NoError(t, f.FetchAsset(req, name, collect(t, &got)))
	}

	require.Len(t, got, 2)
	assert.Equal(t, routed{models.KindDependency, "libx.dll", "binary:/Dependency-libx.dll"}, got[0])
	assert.Equal(t, routed{models.KindPlugin, "Plugin.dll", "binary:/Plugin.dll"}, got[1])

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files must be removed after routing")
}

func TestFetchAssetFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := New(NewClient("TestAgent", 5*time.Second), testRules, t.TempDir())
	req, err := f.Client().NewRequest(context.Background(), server.URL+"/Plugin.dll")
	require.NoError(t, err)

	called := false
	err = f.FetchAsset(req, "Plugin.dll", func(models.FileKind, string, string) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestFetchArtifact(t *testing.T) {
	t.Run("nested single directory", func(t *testing.T) {
		archive := testutil.ZipBytes(t, map[string]string{
			"build/":                          "",
			"build/net48/":                    "",
			"build/net48/Plugin.dll":          "plugin-bytes",
			"build/net48/Dependency-libx.dll": "dep-bytes",
			"build/net48/Plugin.pdb":          "symbols",
			"build/readme.txt":                "docs",
		})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(archive)
		}))
		defer server.Close()

		f := New(NewClient("TestAgent", 5*time.Second), testRules, t.TempDir())
		req, err := f.Client().NewRequest(context.Background(), server.URL+"/jobs/1/artifacts")
		require.NoError(t, err)

		var got []routed
		require.NoError(t, f.FetchArtifact(context.Background(), req, collect(t, &got)))

		assert.ElementsMatch(t, []routed{
			{models.KindDependency, "libx.dll", "dep-bytes"},
			{models.KindPlugin, "Plugin.dll", "plugin-bytes"},
		}, got)
	})

	t.Run("no module files", func(t *testing.T) {
		archive := testutil.ZipBytes(t, map[string]string{
			"out/":          "",
			"out/notes.txt": "nothing here",
		})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(archive)
		}))
		defer server.Close()

		f := New(NewClient("TestAgent", 5*time.Second), testRules, t.TempDir())
		req, err := f.Client().NewRequest(context.Background(), server.URL+"/artifact")
		require.NoError(t, err)

		err = f.FetchArtifact(context.Background(), req, func(models.FileKind, string, string) error { return nil })
		assert.ErrorIs(t, err, ErrEmptyArtifact)
	})
}

func TestFindModulesDepthBound(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	testutil.WriteFile(t, deep, "Plugin.dll", "x")

	_, _, err := FindModules(root, ".dll", 2)
	assert.ErrorIs(t, err, ErrEmptyArtifact)

	dir, files, err := FindModules(root, ".dll", 3)
	require.NoError(t, err)
	assert.Equal(t, deep, dir)
	assert.Equal(t, []string{"Plugin.dll"}, files)
}

func TestExtractRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := testutil.CreateTestZip(t, dir, "evil.zip", map[string]string{
		"../escape.dll": "x",
	})

	_ = Extract(context.Background(), archive, filepath.Join(dir, "out"))
	_, statErr := os.Stat(filepath.Join(dir, "escape.dll"))
	assert.True(t, os.IsNotExist(statErr))
}
