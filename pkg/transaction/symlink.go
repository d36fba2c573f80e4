package transaction

import (
	"os"

	"github.com/gitrustux/rustica/pkg/rpgerrors"
)

// atomicSymlinkSwap replaces (or creates) the symlink at linkPath so that
// it points at newTarget. It verifies newTarget exists, creates a sibling
// temporary symlink, and renames it over linkPath -- atomic on a single
// filesystem. It returns the link's previous target, if any, so the
// caller can record it for rollback.
func atomicSymlinkSwap(linkPath, newTarget string) (previousTarget *string, err error) {
	if _, statErr := os.Stat(newTarget); statErr != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Layout, statErr, "symlink target %s does not exist", newTarget)
	}

	if target, readErr := os.Readlink(linkPath); readErr == nil {
		previousTarget = &target
	}

	tmp := linkPath + ".tmp"
	_ = os.Remove(tmp)

	if err := os.Symlink(newTarget, tmp); err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Layout, err, "creating temporary symlink %s", tmp)
	}
	if err := os.Rename(tmp, linkPath); err != nil {
		_ = os.Remove(tmp)
		return nil, rpgerrors.Wrap(rpgerrors.Layout, err, "renaming %s to %s", tmp, linkPath)
	}
	return previousTarget, nil
}

// revertSymlink restores linkPath to previousTarget, or removes the link
// entirely if there was no previous target (the link did not exist before
// the transaction touched it).
func revertSymlink(linkPath string, previousTarget *string) error {
	if previousTarget == nil {
		if err := os.Remove(linkPath); err != nil && !os.IsNotExist(err) {
			return rpgerrors.Wrap(rpgerrors.RollbackFailed, err, "removing %s during rollback", linkPath)
		}
		return nil
	}
	tmp := linkPath + ".tmp"
	_ = os.Remove(tmp)
	if err := os.Symlink(*previousTarget, tmp); err != nil {
		return rpgerrors.Wrap(rpgerrors.RollbackFailed, err, "recreating temporary symlink %s", tmp)
	}
	if err := os.Rename(tmp, linkPath); err != nil {
		_ = os.Remove(tmp)
		return rpgerrors.Wrap(rpgerrors.RollbackFailed, err, "restoring %s during rollback", linkPath)
	}
	return nil
}
