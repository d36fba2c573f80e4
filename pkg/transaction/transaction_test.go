package transaction_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrustux/rustica/pkg/archive"
	"github.com/gitrustux/rustica/pkg/layout"
	"github.com/gitrustux/rustica/pkg/registry"
	"github.com/gitrustux/rustica/pkg/signature"
	"github.com/gitrustux/rustica/pkg/transaction"
	"github.com/gitrustux/rustica/pkg/version"
)

// withTempAppsRoot points layout.AppsBase at a scratch directory for the
// duration of a test and restores it on cleanup, the same substitution the
// reference implementation's AppLayout{base} field exists to support.
func withTempAppsRoot(t *testing.T) string {
	t.Helper()
	orig := layout.AppsBase
	dir := t.TempDir()
	layout.AppsBase = dir
	t.Cleanup(func() { layout.AppsBase = orig })
	return dir
}

func buildSignedArchive(t *testing.T, dir, name, version string) (string, signature.KeyPair) {
	t.Helper()
	kp, err := signature.Generate()
	require.NoError(t, err)

	manifest := archive.Manifest{
		Name:    name,
		Version: version,
		Kind:    "app",
		Arch:    "x86_64",
		Size:    0,
		SHA256:  "0000000000000000000000000000000000000000000000000000000000000000000000000000"[:64],
		URL:     "https://example.invalid/" + name,
	}

	path := filepath.Join(dir, name+"-"+version+".rpg")
	// Sign over a first pass of the archive, then rewrite the signature
	// field, matching how archive.rs produces a self-describing signed
	// package: the signature covers everything except itself.
	first, err := archive.Create(path, manifest, nil)
	require.NoError(t, err)
	content, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	sig := kp.Sign(content)
	manifest.Signature = sig.Base64()

	signed, err := archive.Create(path, manifest, nil)
	require.NoError(t, err)
	require.NotNil(t, signed)
	return path, kp
}

func TestInstallFailsOnBadSignature(t *testing.T) {
	dir := t.TempDir()
	path, _ := buildSignedArchive(t, dir, "editor", "1.0.0")

	wrongKP, err := signature.Generate()
	require.NoError(t, err)

	reg := registry.New()
	result := transaction.Install(reg, []string{path}, wrongKP.PublicKeyBase64())

	assert.Equal(t, transaction.Failed, result.Outcome)
	require.Error(t, result.Err)
	require.Len(t, reg.Transactions, 1)
	assert.Equal(t, registry.StateFailed, reg.Transactions[0].State)
}

func TestInstallRollsBackPriorStepOnLaterFailure(t *testing.T) {
	withTempAppsRoot(t)
	dir := t.TempDir()

	reg := registry.New()

	// Install editor@1.0.0 first, establishing a "current" symlink to
	// revert back to.
	path1, kp := buildSignedArchive(t, dir, "editor", "1.0.0")
	first := transaction.Install(reg, []string{path1}, kp.PublicKeyBase64())
	require.Equal(t, transaction.Success, first.Outcome)

	link := layout.AppCurrentLink("editor")
	prevTarget, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, layout.AppVersionPath("editor", "1.0.0"), prevTarget)

	// One transaction installing editor@2.0.0 (which will swap the
	// symlink) followed by a package signed with an unrelated keypair, so
	// it fails verification against editor's trust key. The whole
	// transaction must roll back, including editor's swap.
	path2, _ := buildSignedArchive(t, dir, "editor", "2.0.0")
	badPath, _ := buildSignedArchive(t, dir, "widget", "1.0.0")

	result := transaction.Install(reg, []string{path2, badPath}, kp.PublicKeyBase64())

	assert.Equal(t, transaction.RolledBack, result.Outcome)
	require.Error(t, result.Err)

	restoredTarget, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, prevTarget, restoredTarget, "editor's current symlink must be reverted to its pre-transaction target")

	_, statErr := os.Stat(layout.AppVersionPath("editor", "2.0.0"))
	assert.True(t, os.IsNotExist(statErr), "the extracted editor@2.0.0 directory must be removed on rollback")

	active, ok := reg.ActiveVersion("editor")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", active.String(), "registry must still report the pre-transaction active version")

	require.Len(t, reg.Transactions, 2)
	assert.Equal(t, registry.StateRolledBack, reg.Transactions[1].State)
}

func TestInstallFailsOnMissingArchive(t *testing.T) {
	reg := registry.New()
	result := transaction.Install(reg, []string{"/nonexistent/package.rpg"}, "")

	assert.Equal(t, transaction.Failed, result.Outcome)
	require.Error(t, result.Err)
}

func TestRemoveRefusesSoleActiveVersion(t *testing.T) {
	reg := registry.New()
	reg.RegisterVersion("editor", mustVersion(t, "1.0.0"))
	reg.SetActive("editor", mustVersion(t, "1.0.0"))

	result := transaction.Remove(reg, "editor", mustVersion(t, "1.0.0"))

	assert.Equal(t, transaction.Failed, result.Outcome)
	require.Error(t, result.Err)
	assert.NotEmpty(t, reg.Versions("editor"), "version must not be removed from the registry on refusal")
}

func TestRollbackFailsWithoutPriorVersion(t *testing.T) {
	reg := registry.New()
	reg.RegisterVersion("editor", mustVersion(t, "1.0.0"))
	reg.SetActive("editor", mustVersion(t, "1.0.0"))

	result := transaction.Rollback(reg, "editor", nil)

	assert.Equal(t, transaction.Failed, result.Outcome)
	require.Error(t, result.Err)
}

func TestSwitchSystemFailsWhenVersionNotInstalled(t *testing.T) {
	reg := registry.New()
	result := transaction.SwitchSystem(reg, mustVersion(t, "9.9.9"))

	assert.Equal(t, transaction.Failed, result.Outcome)
	require.Error(t, result.Err)
}

func mustVersion(t *testing.T, raw string) version.Version {
	t.Helper()
	v, err := version.Parse(raw)
	require.NoError(t, err)
	return v
}
