// Package command is the thin dispatch boundary exposing the registry, file
// operations, and transfer engine to front ends. It translates flat wire
// strings into typed values and taxonomy errors into {code, message} pairs.
package command

import (
	"strconv"

	"github.com/infimount/infimount/errors"
	"github.com/infimount/infimount/transfer"
)

// ParseOperation translates a wire operation string.
func ParseOperation(s string) (transfer.Operation, error) {
	switch s {
	case "copy":
		return transfer.OpCopy, nil
	case "move":
		return transfer.OpMove, nil
	default:
		return 0, errors.New("command.parse", errors.ErrConfig).
			WithMessage("invalid operation " + strconv.Quote(s))
	}
}

// ParseConflictPolicy translates a wire conflict-policy string. "discard" is
// an accepted synonym for skip.
func ParseConflictPolicy(s string) (transfer.ConflictPolicy, error) {
	switch s {
	case "fail":
		return transfer.PolicyFail, nil
	case "overwrite":
		return transfer.PolicyOverwrite, nil
	case "skip", "discard":
		return transfer.PolicySkip, nil
	default:
		return 0, errors.New("command.parse", errors.ErrConfig).
			WithMessage("invalid conflict policy " + strconv.Quote(s))
	}
}
