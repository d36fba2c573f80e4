package manager_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrustux/rustica/pkg/config"
	"github.com/gitrustux/rustica/pkg/manager"
	"github.com/gitrustux/rustica/pkg/registry"
	"github.com/gitrustux/rustica/pkg/sources"
	"github.com/gitrustux/rustica/pkg/transaction"
	"github.com/gitrustux/rustica/pkg/version"
)

func TestKindForNameReservesKernelAndSystem(t *testing.T) {
	assert.Equal(t, transaction.KindKernel, manager.KindForName("kernel"))
	assert.Equal(t, transaction.KindSystem, manager.KindForName("system"))
	assert.Equal(t, transaction.KindApp, manager.KindForName("editor"))
}

func newTestManager(t *testing.T, srcs *sources.List) *manager.Manager {
	t.Helper()
	reg := registry.New()
	cfg := config.Default()
	m := manager.New(reg, srcs, cfg)
	m.Fetch.MaxRetries = 1
	return m
}

func TestCheckUpdatesReportsNotInstalledAsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"apps","version":"1","packages":[
			{"name":"editor","version":"1.0.0","size":2048,"sha256":"` + repeatHex() + `","signature":"c2ln","path":"editor/1.0.0.rpg"}
		]}`))
	}))
	defer srv.Close()

	srcs := &sources.List{Sources: []sources.Source{sources.New("apps", srv.URL, sources.KindApps)}}
	m := newTestManager(t, srcs)

	result := m.CheckUpdates(context.Background())
	require.Empty(t, result.Errors)
	require.Len(t, result.Available, 1)
	assert.Equal(t, "editor", result.Available[0].Name)
	assert.Equal(t, "not installed", result.Available[0].CurrentVersion)
	assert.Equal(t, "1.0.0", result.Available[0].NewVersion)
}

func TestCheckUpdatesSkipsUpToDatePackages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"apps","version":"1","packages":[
			{"name":"editor","version":"1.0.0","size":2048,"sha256":"` + repeatHex() + `","signature":"c2ln","path":"editor/1.0.0.rpg"}
		]}`))
	}))
	defer srv.Close()

	srcs := &sources.List{Sources: []sources.Source{sources.New("apps", srv.URL, sources.KindApps)}}
	m := newTestManager(t, srcs)
	m.Registry.RegisterVersion("editor", version.MustParse("1.0.0"))
	m.Registry.SetActive("editor", version.MustParse("1.0.0"))

	result := m.CheckUpdates(context.Background())
	assert.Empty(t, result.Available)
}

func TestInstallFailsFastWithNoEnabledSources(t *testing.T) {
	srcs := &sources.List{}
	m := newTestManager(t, srcs)

	result := m.Install(context.Background(), "editor", nil, "")
	assert.Equal(t, transaction.Failed, result.Outcome)
	require.Error(t, result.Err)
}

func TestStatusReflectsRegistryAndSources(t *testing.T) {
	srcs := &sources.List{Sources: []sources.Source{
		sources.New("a", "https://a.example", sources.KindApps),
		sources.WithPriority("b", "https://b.example", sources.KindApps, 50),
	}}
	srcs.Disable("a")
	m := newTestManager(t, srcs)
	m.Registry.RegisterVersion("editor", version.MustParse("1.0.0"))
	m.Registry.SetActive("editor", version.MustParse("1.0.0"))
	m.Registry.AddPending("kernel", version.MustParse("5.10.0"))

	status := m.Status()
	assert.Equal(t, 1, status.TotalPackages)
	assert.Equal(t, 1, status.ActivePackages)
	assert.Equal(t, 1, status.PendingUpdates)
	assert.Equal(t, 2, status.SourcesTotal)
	assert.Equal(t, 1, status.SourcesEnabled)
}

func TestListInstalled(t *testing.T) {
	m := newTestManager(t, &sources.List{})
	m.Registry.RegisterVersion("editor", version.MustParse("1.0.0"))
	m.Registry.RegisterVersion("editor", version.MustParse("2.0.0"))
	m.Registry.SetActive("editor", version.MustParse("2.0.0"))

	list := m.ListInstalled()
	require.Len(t, list, 1)
	assert.Equal(t, "editor", list[0].Name)
	assert.Equal(t, "2.0.0", list[0].Version)
	assert.ElementsMatch(t, []string{"1.0.0", "2.0.0"}, list[0].AllVersions)
	assert.Equal(t, transaction.KindApp, list[0].Kind)
}

func TestExitCodeMapping(t *testing.T) {
	assert.Equal(t, 0, manager.ExitCode(&transaction.Result{Outcome: transaction.Success}, nil))
	assert.Equal(t, 1, manager.ExitCode(&transaction.Result{Outcome: transaction.Failed}, nil))
}

func repeatHex() string {
	s := ""
	for i := 0; i < 64; i++ {
		s += "a"
	}
	return s
}
