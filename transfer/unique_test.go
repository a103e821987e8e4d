package transfer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infimount/infimount/errors"
	"github.com/infimount/infimount/storage"
)

// saturatedHandle reports every candidate path as already taken.
type saturatedHandle struct {
	storage.Handle
	existsCalls int
}

func (h *saturatedHandle) Exists(context.Context, string) (bool, error) {
	h.existsCalls++
	return true, nil
}

func TestUniqueDestinationExhaustsSuffixes(t *testing.T) {
	h := &saturatedHandle{}

	_, err := uniqueDestination(context.Background(), h, "dst", "report.txt", false)
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnknown, errors.CodeOf(err))

	// One probe for the base name plus one per bounded suffix.
	assert.Equal(t, 1+maxUniqueAttempts, h.existsCalls)
}
