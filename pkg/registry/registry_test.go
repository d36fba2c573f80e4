package registry_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrustux/rustica/pkg/registry"
	"github.com/gitrustux/rustica/pkg/testutil"
	"github.com/gitrustux/rustica/pkg/version"
)

func TestRegisterVersionDedupsAndSorts(t *testing.T) {
	r := registry.New()
	r.RegisterVersion("editor", version.MustParse("2.0.0"))
	r.RegisterVersion("editor", version.MustParse("1.0.0"))
	r.RegisterVersion("editor", version.MustParse("2.0.0"))

	versions := r.Versions("editor")
	require.Len(t, versions, 2)
	assert.Equal(t, "1.0.0", versions[0].String())
	assert.Equal(t, "2.0.0", versions[1].String())
}

func TestPreviousVersion(t *testing.T) {
	r := registry.New()
	for _, v := range []string{"1.0.0", "1.1.0", "2.0.0"} {
		r.RegisterVersion("editor", version.MustParse(v))
	}

	prev, ok := r.PreviousVersion("editor", version.MustParse("2.0.0"))
	require.True(t, ok)
	assert.Equal(t, "1.1.0", prev.String())

	_, ok = r.PreviousVersion("editor", version.MustParse("1.0.0"))
	assert.False(t, ok, "the oldest version has no predecessor")
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")

	r := registry.New()
	r.RegisterVersion("editor", version.MustParse("1.0.0"))
	r.SetActive("editor", version.MustParse("1.0.0"))
	r.AddPending("kernel", version.MustParse("5.10.0"))
	r.AppendTransaction(registry.Transaction{
		ID:        "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Kind:      registry.KindInstall,
		State:     registry.StateCompleted,
		Packages:  []string{"editor"},
		CreatedAt: time.Unix(0, 0).UTC(),
	})

	require.NoError(t, r.SaveTo(path))

	reloaded, err := registry.LoadFrom(path)
	require.NoError(t, err)

	testutil.AssertEqualDump(t, "registry", r, reloaded)
}

func TestTransactionLogCap(t *testing.T) {
	r := registry.New()
	for i := 0; i < 150; i++ {
		r.AppendTransaction(registry.Transaction{
			ID:    string(rune('a' + i%26)),
			Kind:  registry.KindInstall,
			State: registry.StateCompleted,
		})
	}
	require.Len(t, r.Transactions, 100)
}

func TestRemoveVersionClearsActive(t *testing.T) {
	r := registry.New()
	r.RegisterVersion("editor", version.MustParse("1.0.0"))
	r.SetActive("editor", version.MustParse("1.0.0"))

	r.RemoveVersion("editor", version.MustParse("1.0.0"))

	_, ok := r.ActiveVersion("editor")
	assert.False(t, ok)
	assert.Empty(t, r.Versions("editor"))
}
