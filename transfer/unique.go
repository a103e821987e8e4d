package transfer

import (
	"context"
	"fmt"

	"github.com/infimount/infimount/errors"
	"github.com/infimount/infimount/internal/pathutil"
	"github.com/infimount/infimount/storage"
)

// maxUniqueAttempts bounds the dedup probe so a pathological destination
// cannot spin forever. Exhaustion is a non-retryable failure.
const maxUniqueAttempts = 9999

// uniqueDestination returns the first non-existing destination path for name
// under targetDir, probing "name copy", "name copy 2", and so on. For files
// the suffix is inserted before the last dot-delimited extension.
func uniqueDestination(ctx context.Context, h storage.Handle, targetDir, name string, isDir bool) (string, error) {
	base := pathutil.JoinDir(targetDir, name)
	candidate := base
	if isDir {
		candidate = pathutil.EnsureDir(base)
	}

	exists, err := h.Exists(ctx, candidate)
	if err != nil {
		return "", err
	}
	if !exists {
		return candidate, nil
	}

	stem, ext := name, ""
	if !isDir {
		stem, ext = pathutil.SplitName(name)
	}

	for idx := 1; idx <= maxUniqueAttempts; idx++ {
		suffix := " copy"
		if idx > 1 {
			suffix = fmt.Sprintf(" copy %d", idx)
		}

		if isDir {
			candidate = pathutil.EnsureDir(pathutil.JoinDir(targetDir, name+suffix))
		} else {
			candidate = pathutil.JoinDir(targetDir, stem+suffix+ext)
		}

		exists, err := h.Exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}

	return "", errors.NewPath("transfer.unique", base, errors.ErrUnexpected).
		WithMessage("failed to generate a unique destination path")
}
