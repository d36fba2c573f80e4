package main

import (
	"errors"

	"github.com/gitrustux/rustica/pkg/rpgerrors"
)

// exitCodeFor maps a top-level CLI error to the exit code contract spec.md
// §6 assigns to the caller: 0 success, 1 transactional failure, 2
// configuration/invalid-argument failure, 3 network failure.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var rerr *rpgerrors.Error
	if !errors.As(err, &rerr) {
		return 2
	}
	switch rerr.Kind {
	case rpgerrors.NetworkError, rpgerrors.Timeout, rpgerrors.AllSourcesFailed:
		return 3
	case rpgerrors.InvalidVersion, rpgerrors.Layout, rpgerrors.PermissionDenied:
		return 2
	default:
		return 1
	}
}
