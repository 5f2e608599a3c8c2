package updater

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-updater/internal/config"
	"github.com/vrsandeep/mango-updater/internal/fetcher"
	"github.com/vrsandeep/mango-updater/internal/installer"
	"github.com/vrsandeep/mango-updater/internal/manifest"
	"github.com/vrsandeep/mango-updater/internal/models"
	"github.com/vrsandeep/mango-updater/internal/sources"
	"github.com/vrsandeep/mango-updater/internal/sources/github"
	"github.com/vrsandeep/mango-updater/internal/sources/gitlab"
	"github.com/vrsandeep/mango-updater/internal/sources/remote"
	"github.com/vrsandeep/mango-updater/internal/sources/web"
	"github.com/vrsandeep/mango-updater/internal/testutil"
)

// fakeSource serves canned responses by path and counts requests.
type fakeSource struct {
	srv    *httptest.Server
	mu     sync.Mutex
	routes map[string]func(w http.ResponseWriter, r *http.Request)
	hits   map[string]int
	auth   []string
}

func newFakeSource(t *testing.T) *fakeSource {
	s := &fakeSource{routes: map[string]func(http.ResponseWriter, *http.Request){}, hits: map[string]int{}}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.auth = append(s.auth, r.Header.Get("PRIVATE-TOKEN")+r.Header.Get("Authorization"))
		h, ok := s.routes[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeSource) body(path, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[path] = func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(body)) }
}

func (s *fakeSource) fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[path] = func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(status) }
}

// gate holds requests to path until open is called. reached is closed
// when the first request arrives.
func (s *fakeSource) gate(path string) (reached <-chan struct{}, open func()) {
	arrived, release := make(chan struct{}), make(chan struct{})
	var once sync.Once
	s.mu.Lock()
	h := s.routes[path]
	s.routes[path] = func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(arrived) })
		<-release
		h(w, r)
	}
	s.mu.Unlock()
	return arrived, sync.OnceFunc(func() { close(release) })
}

func (s *fakeSource) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// gitlabProject publishes a GitLab release of name with a plugin binary
// and a prefixed dependency and returns the project API root.
func (s *fakeSource) gitlabProject(id int, name, tag, shortID string) string {
	root := fmt.Sprintf("/api/v4/projects/%d", id)
	plugin := fmt.Sprintf("/downloads/%d/%s.dll", id, name)
	dep := fmt.Sprintf("/downloads/%d/Dependency-%s-lib.dll", id, name)
	s.body(root+"/releases", fmt.Sprintf(`[
		{"tag_name":%q,"commit":{"short_id":%q,"last_pipeline":{"ref":"main"}},
		 "assets":{"links":[{"direct_asset_url":%q,"name":"Dependency-%s-lib.dll"},{"direct_asset_url":%q,"name":"%s.dll"}]}},
		{"tag_name":"0.0.1","commit":{"short_id":"0000000"}}
	]`, tag, shortID, s.srv.URL+dep, name, s.srv.URL+plugin, name))
	s.body(plugin, name+"@"+tag)
	s.body(dep, "lib-of-"+name)
	return s.srv.URL + root
}

type fakeHost struct {
	mu       sync.Mutex
	loaded   []models.LoadedPlugin
	restarts []string
}

func (h *fakeHost) LoadedPlugins() []models.LoadedPlugin {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.LoadedPlugin(nil), h.loaded...)
}

func (h *fakeHost) RequestRestart(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restarts = append(h.restarts, reason)
}

type eventLog struct {
	mu     sync.Mutex
	events []models.Event
}

func (l *eventLog) Notify(ev models.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

type env struct {
	cfg    *config.Config
	store  *manifest.Store
	client *fetcher.Client
	in     *installer.Installer
}

func newEnv(t *testing.T) *env {
	return newEnvWithLockWait(t, 0)
}

// newEnvWithLockWait bounds the manifest lock wait; zero keeps the
// configured default.
func newEnvWithLockWait(t *testing.T, wait time.Duration) *env {
	cfg := testutil.NewLayout(t)
	if wait == 0 {
		wait = cfg.Updater.LockWait()
	}
	store := manifest.NewStore(cfg.Paths.ManifestFile(), wait)
	client := fetcher.NewClient("TestAgent", cfg.Updater.RequestTimeout())
	rules := fetcher.Rules{DependencyPrefix: "Dependency-", ModuleExtension: ".dll"}
	f := fetcher.New(client, rules, filepath.Join(cfg.Paths.StagingDir(), "download"))
	in := installer.New(store, f, installer.Paths{
		Plugins:      cfg.Paths.Plugins,
		Dependencies: cfg.Paths.Dependencies,
		Staging:      cfg.Paths.StagingDir(),
	})
	return &env{cfg: cfg, store: store, client: client, in: in}
}

func testRegistry() *sources.Registry {
	return sources.NewRegistry(gitlab.New(), github.New(), web.New(), remote.New())
}

func (e *env) updater(host Host) *Updater {
	u := New(e.in, NewResolver(testRegistry(), e.client), host)
	u.now = func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) }
	return u
}

func (e *env) seed(t *testing.T, plugins ...*models.PluginManifest) {
	sess, err := e.store.Acquire(context.Background())
	require.NoError(t, err)
	defer sess.Release()
	for _, pm := range plugins {
		sess.Manifest.Plugins[pm.PluginName] = pm
	}
	require.NoError(t, sess.Save())
}

func (e *env) manifest(t *testing.T) *models.ServerManifest {
	m, err := e.store.Read(context.Background())
	require.NoError(t, err)
	return m
}

func (e *env) livePlugin(t *testing.T, name string) string {
	data, err := os.ReadFile(filepath.Join(e.cfg.Paths.Plugins, name))
	require.NoError(t, err)
	return string(data)
}

func foo(url, version string) *models.PluginManifest {
	return &models.PluginManifest{
		PluginName:     "Acme/Foo",
		CurrentVersion: version,
		SourceType:     models.SourceGitLab,
		UpdateURL:      url,
		FileName:       "Foo.dll",
	}
}

func TestResolveGitLab(t *testing.T) {
	src := newFakeSource(t)
	url := src.gitlabProject(7, "Foo", "1.3.0", "abc123")
	r := NewResolver(testRegistry(), fetcher.NewClient("TestAgent", 5*time.Second))
	ctx := context.Background()

	t.Run("newer release", func(t *testing.T) {
		plan := r.Resolve(ctx, foo(url, "1.2.3"), Options{RunningVersion: "1.2.3"})
		require.Equal(t, models.ActionUpdated, plan.Action)
		assert.Equal(t, "1.3.0", plan.Release.Version())
		assert.Equal(t, "1.3.0-release-abc123", plan.Release.BuildID())
		assert.Equal(t, models.SourceGitLab, plan.Provider.Type())
	})

	t.Run("running version is current", func(t *testing.T) {
		plan := r.Resolve(ctx, foo(url, "1.2.3"), Options{RunningVersion: "v1.3.0"})
		assert.Equal(t, models.ActionNone, plan.Action)
	})

	t.Run("downloaded but not loaded yet", func(t *testing.T) {
		plan := r.Resolve(ctx, foo(url, "1.3.0"), Options{RunningVersion: "1.2.3"})
		assert.Equal(t, models.ActionRestartPending, plan.Action)
	})

	t.Run("force", func(t *testing.T) {
		plan := r.Resolve(ctx, foo(url, "1.3.0"), Options{RunningVersion: "1.3.0", Force: true})
		assert.Equal(t, models.ActionUpdated, plan.Action)
	})

	t.Run("disabled source", func(t *testing.T) {
		pm := foo(url, "1.2.3")
		pm.SourceType = models.SourceDisabled
		assert.Equal(t, models.ActionNone, r.Resolve(ctx, pm, Options{}).Action)
		assert.Equal(t, models.ActionNone, r.Resolve(ctx, foo("", "1.2.3"), Options{}).Action)
	})
}

func TestResolveDegradesToNone(t *testing.T) {
	src := newFakeSource(t)
	src.fail("/api/v4/projects/1/releases", http.StatusBadGateway)
	src.body("/api/v4/projects/2/releases", `{"tag_name":"not-a-list"}`)
	src.body("/api/v4/projects/3/releases", `[]`)
	r := NewResolver(testRegistry(), fetcher.NewClient("TestAgent", 5*time.Second))

	for id := 1; id <= 3; id++ {
		pm := foo(fmt.Sprintf("%s/api/v4/projects/%d", src.srv.URL, id), "1.0.0")
		assert.Equal(t, models.ActionNone, r.Resolve(context.Background(), pm, Options{}).Action, "project %d", id)
	}
}

func TestResolveReleaseWithoutAssets(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(t)
	src.body("/api/v4/projects/5/releases", `[{"tag_name":"1.3.0","commit":{"short_id":"abc123"}}]`)
	url := src.srv.URL + "/api/v4/projects/5"

	r := NewResolver(testRegistry(), fetcher.NewClient("TestAgent", 5*time.Second))
	plan := r.Resolve(ctx, foo(url, "1.2.3"), Options{RunningVersion: "1.2.3"})
	require.Equal(t, models.ActionUpdated, plan.Action)
	assert.Empty(t, plan.Release.Assets)
	assert.Equal(t, "1.3.0-release-abc123", plan.Release.BuildID())

	t.Run("update pass records the release", func(t *testing.T) {
		e := newEnv(t)
		e.seed(t, foo(url, "1.2.3"))
		u := e.updater(nil)

		changed, err := u.CheckAndUpdateAll(ctx, false)
		require.NoError(t, err)
		assert.True(t, changed)
		got := e.manifest(t).Plugins["Acme/Foo"]
		assert.Equal(t, "1.3.0", got.CurrentVersion)
		assert.Equal(t, "1.3.0-release-abc123", got.CurrentBuildID)

		changed, err = u.CheckAndUpdateAll(ctx, false)
		require.NoError(t, err)
		assert.False(t, changed)
	})
}

func TestResolveDevelopment(t *testing.T) {
	src := newFakeSource(t)
	url := src.gitlabProject(7, "Foo", "1.3.0", "abc123")
	r := NewResolver(testRegistry(), fetcher.NewClient("TestAgent", 5*time.Second))
	ctx := context.Background()
	opts := Options{PreferDevelopment: true, RunningVersion: "1.2.3"}

	t.Run("falls back to stable without artifacts", func(t *testing.T) {
		src.body("/api/v4/projects/7/jobs", `[{"id":3,"artifacts_file":null,"commit":{"short_id":"fff"}}]`)
		plan := r.Resolve(ctx, foo(url, "1.2.3"), opts)
		require.Equal(t, models.ActionUpdated, plan.Action)
		assert.False(t, plan.Release.Artifact)
		assert.Equal(t, "1.3.0", plan.Release.Tag)
	})

	jobs := `[{"id":41,"artifacts_file":{"filename":"artifacts.zip"},"commit":{"short_id":"d3v","last_pipeline":{"ref":"develop"}}}]`

	t.Run("new artifact", func(t *testing.T) {
		src.body("/api/v4/projects/7/jobs", jobs)
		plan := r.Resolve(ctx, foo(url, "1.2.3"), opts)
		require.Equal(t, models.ActionUpdated, plan.Action)
		assert.True(t, plan.Release.Artifact)
		assert.Equal(t, "d3v", plan.Release.Version())
		assert.Equal(t, "0.0.0-develop-d3v", plan.Release.BuildID())
		assert.Equal(t, url+"/jobs/41/artifacts", plan.Release.Assets[0].URL)
	})

	t.Run("artifact already installed", func(t *testing.T) {
		src.body("/api/v4/projects/7/jobs", jobs)
		plan := r.Resolve(ctx, foo(url, "d3v"), opts)
		assert.Equal(t, models.ActionNone, plan.Action)
		assert.Equal(t, 0, src.hitCount("/api/v4/projects/7/jobs/41/artifacts"))
	})
}

func TestResolveGitHubArtifactOrder(t *testing.T) {
	src := newFakeSource(t)
	src.body("/repos/acme/foo/actions/artifacts", fmt.Sprintf(`{"artifacts":[
		{"id":"5","node_id":"n5","archive_download_url":"%[1]s/a/5"},
		{"id":"9","node_id":"n9","archive_download_url":"%[1]s/a/9"}
	]}`, src.srv.URL))
	r := NewResolver(testRegistry(), fetcher.NewClient("TestAgent", 5*time.Second))

	pm := &models.PluginManifest{
		PluginName:  "Acme/Foo",
		SourceType:  models.SourceGitHub,
		UpdateURL:   src.srv.URL + "/repos/acme/foo",
		Token:       "gh-token",
		Development: true,
	}
	plan := r.Resolve(context.Background(), pm, Options{PreferDevelopment: true})
	require.Equal(t, models.ActionUpdated, plan.Action)
	assert.Equal(t, "n9", plan.Release.Version())
	assert.Equal(t, src.srv.URL+"/a/9", plan.Release.Assets[0].URL)
	assert.Contains(t, src.auth, "token gh-token")
}

func TestCheckAndUpdateAll(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	src := newFakeSource(t)
	fooURL := src.gitlabProject(7, "Foo", "1.3.0", "abc123")
	barURL := src.gitlabProject(8, "Bar", "2.0.0", "bbb222")
	src.fail("/downloads/8/Bar.dll", http.StatusInternalServerError)

	bar := foo(barURL, "1.0.0")
	bar.PluginName, bar.FileName = "Acme/Bar", "Bar.dll"
	e.seed(t, foo(fooURL, "1.2.3"), bar)

	events := &eventLog{}
	u := e.updater(nil)
	u.SetNotifier(events)

	changed, err := u.CheckAndUpdateAll(ctx, false)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t, "Foo@1.3.0", e.livePlugin(t, "Foo.dll"))
	lib, err := os.ReadFile(filepath.Join(e.cfg.Paths.Dependencies, "Foo-lib.dll"))
	require.NoError(t, err)
	assert.Equal(t, "lib-of-Foo", string(lib))

	// Bar's dependency was downloaded before its binary failed; it must not be committed.
	assert.NoFileExists(t, filepath.Join(e.cfg.Paths.Dependencies, "Bar-lib.dll"))
	assert.NoFileExists(t, filepath.Join(e.cfg.Paths.Plugins, "Bar.dll"))

	m := e.manifest(t)
	assert.Equal(t, "1.3.0", m.Plugins["Acme/Foo"].CurrentVersion)
	assert.Equal(t, "1.3.0-release-abc123", m.Plugins["Acme/Foo"].CurrentBuildID)
	assert.Equal(t, "1.0.0", m.Plugins["Acme/Bar"].CurrentVersion)
	require.NotNil(t, m.LastUpdateCheck)

	assert.Contains(t, events.types(), models.EventPluginUpdated)
	assert.Contains(t, events.types(), models.EventRestartRequested)

	t.Run("second pass finds nothing new", func(t *testing.T) {
		hits := src.hitCount("/downloads/7/Foo.dll")
		changed, err := u.CheckAndUpdateAll(ctx, false)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, hits, src.hitCount("/downloads/7/Foo.dll"))
	})
}

func TestCheckAndUpdateAllWithHost(t *testing.T) {
	ctx := context.Background()

	t.Run("loaded plugin already current", func(t *testing.T) {
		e := newEnv(t)
		src := newFakeSource(t)
		e.seed(t, foo(src.gitlabProject(7, "Foo", "1.3.0", "abc123"), "1.3.0"))
		host := &fakeHost{loaded: []models.LoadedPlugin{{Name: "Acme/Foo", Version: "1.3.0", FileName: "Foo.dll"}}}

		changed, err := e.updater(host).CheckAndUpdateAll(ctx, false)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Empty(t, host.restarts)
	})

	t.Run("downloaded update waits for restart", func(t *testing.T) {
		e := newEnv(t)
		src := newFakeSource(t)
		e.seed(t, foo(src.gitlabProject(7, "Foo", "1.3.0", "abc123"), "1.3.0"))
		host := &fakeHost{loaded: []models.LoadedPlugin{{Name: "Acme/Foo", Version: "1.2.3"}}}
		events := &eventLog{}
		u := e.updater(host)
		u.SetNotifier(events)

		changed, err := u.CheckAndUpdateAll(ctx, false)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 0, src.hitCount("/downloads/7/Foo.dll"))
		assert.Equal(t, []string{"plugins updated"}, host.restarts)
		assert.Contains(t, events.types(), models.EventRestartPending)
		// Nothing was staged, so the manifest is not rewritten.
		assert.Nil(t, e.manifest(t).LastUpdateCheck)
	})

	t.Run("plugin not loaded is forced", func(t *testing.T) {
		e := newEnv(t)
		src := newFakeSource(t)
		e.seed(t, foo(src.gitlabProject(7, "Foo", "1.3.0", "abc123"), "1.3.0"))
		host := &fakeHost{}

		changed, err := e.updater(host).CheckAndUpdateAll(ctx, false)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 1, src.hitCount("/downloads/7/Foo.dll"))
		assert.Equal(t, []string{"plugins updated"}, host.restarts)
	})

	t.Run("manual build placeholder", func(t *testing.T) {
		e := newEnv(t)
		src := newFakeSource(t)
		e.seed(t, foo(src.gitlabProject(7, "Foo", "1.3.0", "abc123"), "1.3.0"))
		host := &fakeHost{loaded: []models.LoadedPlugin{{Name: "Acme/Foo", Version: ManualVersion}}}

		changed, err := e.updater(host).CheckAndUpdateAll(ctx, false)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, "1.3.0-manual-00000000", e.manifest(t).Plugins["Acme/Foo"].CurrentBuildID)
	})

	t.Run("discovery", func(t *testing.T) {
		e := newEnv(t)
		src := newFakeSource(t)
		url := src.gitlabProject(9, "Baz", "0.5.0", "eee555")
		host := &fakeHost{loaded: []models.LoadedPlugin{
			{Name: "Acme/Baz", Version: "0.5.0", FileName: "Baz.dll", Config: &models.AutoUpdateConfig{URL: url, Type: models.SourceGitLab, Token: "t"}},
			{Name: "Acme/Static", Version: "3.0.0", FileName: "Static.dll"},
		}}

		changed, err := e.updater(host).CheckAndUpdateAll(ctx, false)
		require.NoError(t, err)
		assert.False(t, changed)

		m := e.manifest(t)
		require.Contains(t, m.Plugins, "Acme/Baz")
		assert.NotContains(t, m.Plugins, "Acme/Static")
		baz := m.Plugins["Acme/Baz"]
		assert.Equal(t, url, baz.UpdateURL)
		assert.Equal(t, "0.5.0", baz.CurrentVersion)
		assert.Equal(t, "Baz.dll", baz.FileName)
		assert.Contains(t, src.auth, "t")
	})
}

func TestCheckAndUpdateAllManifestChanged(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	src := newFakeSource(t)
	e.seed(t, foo(src.gitlabProject(7, "Foo", "1.3.0", "abc123"), "1.2.3"))

	host := &fakeHost{loaded: []models.LoadedPlugin{{Name: "Acme/Foo", Version: "1.3.0"}}}
	u := e.updater(host)
	changed, err := u.CheckAndUpdateAll(ctx, false)
	require.NoError(t, err)
	require.False(t, changed)

	// Another process rewrites the manifest.
	other := manifest.NewStore(e.cfg.Paths.ManifestFile(), time.Second)
	sess, err := other.Acquire(ctx)
	require.NoError(t, err)
	stamp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	sess.Manifest.LastUpdateCheck = &stamp
	require.NoError(t, sess.Save())
	sess.Release()

	changed, err = u.CheckAndUpdateAll(ctx, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"manifest changed externally"}, host.restarts)
	assert.Equal(t, 0, src.hitCount("/downloads/7/Foo.dll"))
}

func TestUpdatePassDoesNotHoldLockDuringQueries(t *testing.T) {
	ctx := context.Background()
	e := newEnvWithLockWait(t, 500*time.Millisecond)
	src := newFakeSource(t)
	e.seed(t, foo(src.gitlabProject(7, "Foo", "1.3.0", "abc123"), "1.2.3"))
	reached, open := src.gate("/api/v4/projects/7/releases")
	defer open()

	done := make(chan error, 1)
	go func() {
		_, err := e.updater(nil).CheckAndUpdateAll(ctx, false)
		done <- err
	}()

	select {
	case <-reached:
	case <-time.After(5 * time.Second):
		t.Fatal("release query never arrived")
	}

	// The pass is blocked on the network; other operations get the manifest.
	code, msg := e.in.Uninstall(ctx, "Nobody/Missing")
	assert.Equal(t, models.ResultFailedToFindPlugin, code, msg)

	open()
	require.NoError(t, <-done)
	assert.Equal(t, "Foo@1.3.0", e.livePlugin(t, "Foo.dll"))
}

func TestUpdatePassSkipsPluginRemovedMeanwhile(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	src := newFakeSource(t)
	e.seed(t, foo(src.gitlabProject(7, "Foo", "1.3.0", "abc123"), "1.2.3"))
	reached, open := src.gate("/api/v4/projects/7/releases")
	defer open()

	done := make(chan error, 1)
	go func() {
		_, err := e.updater(nil).CheckAndUpdateAll(ctx, false)
		done <- err
	}()
	<-reached

	sess, err := e.store.Acquire(ctx)
	require.NoError(t, err)
	delete(sess.Manifest.Plugins, "Acme/Foo")
	require.NoError(t, sess.Save())
	sess.Release()

	open()
	require.NoError(t, <-done)
	assert.NotContains(t, e.manifest(t).Plugins, "Acme/Foo")
	assert.NoFileExists(t, filepath.Join(e.cfg.Paths.Plugins, "Foo.dll"))
}

func TestCheckAndUpdateOne(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	src := newFakeSource(t)
	e.seed(t, foo(src.gitlabProject(7, "Foo", "1.3.0", "abc123"), "1.2.3"))
	u := e.updater(nil)

	_, err := u.CheckAndUpdateOne(ctx, "Nobody/Nothing", false)
	assert.ErrorIs(t, err, ErrPluginNotFound)

	action, err := u.CheckAndUpdateOne(ctx, "Acme/Foo", false)
	require.NoError(t, err)
	assert.Equal(t, models.ActionUpdated, action)
	assert.True(t, strings.HasPrefix(e.livePlugin(t, "Foo.dll"), "Foo@1.3.0"))

	// Without a host the manifest version counts as running.
	action, err = u.CheckAndUpdateOne(ctx, "Acme/Foo", false)
	require.NoError(t, err)
	assert.Equal(t, models.ActionNone, action)
}

func TestCheckAndUpdateArtifact(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	src := newFakeSource(t)
	url := src.gitlabProject(7, "Foo", "1.3.0", "abc123")
	src.body("/api/v4/projects/7/jobs", `[{"id":41,"artifacts_file":{"filename":"artifacts.zip"},"commit":{"short_id":"d3v","last_pipeline":{"ref":"develop"}}}]`)
	archive := testutil.ZipBytes(t, map[string]string{
		"bin/":                         "",
		"bin/Release/":                 "",
		"bin/Release/Foo.dll":          "dev-build",
		"bin/Release/Dependency-x.dll": "x",
	})
	src.body("/api/v4/projects/7/jobs/41/artifacts", string(archive))

	pm := foo(url, "1.2.3")
	pm.Development = true
	e.seed(t, pm)

	changed, err := e.updater(nil).CheckAndUpdateAll(ctx, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "dev-build", e.livePlugin(t, "Foo.dll"))
	assert.FileExists(t, filepath.Join(e.cfg.Paths.Dependencies, "x.dll"))

	got := e.manifest(t).Plugins["Acme/Foo"]
	assert.Equal(t, "d3v", got.CurrentVersion)
	assert.Equal(t, "0.0.0-develop-d3v", got.CurrentBuildID)
}
