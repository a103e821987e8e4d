package transfer

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/infimount/infimount/errors"
	"github.com/infimount/infimount/internal/pathutil"
	"github.com/infimount/infimount/ops"
	"github.com/infimount/infimount/storage"
)

// Ingest uploads external local filesystem paths (absolute, outside any
// configured source) into targetDir on the destination handle. Files are
// read whole and written; directories are walked with an explicit work stack
// preserving relative structure.
//
// Local stat/read failures wrap ErrIO and carry the offending local path;
// destination failures keep their backend classification.
func (e *Engine) Ingest(ctx context.Context, to storage.Handle, paths []string, targetDir string) error {
	e.log.Debug("local ingestion requested",
		zap.Int("paths", len(paths)),
		zap.String("target_dir", targetDir))

	for _, p := range paths {
		if err := e.ingestPath(ctx, to, p, targetDir); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) ingestPath(ctx context.Context, to storage.Handle, src, targetDir string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.NewPath("ingest.stat", src, errors.ErrIO).WithMessage(err.Error())
	}

	if !info.IsDir() {
		return e.ingestFile(ctx, to, src, pathutil.JoinDir(targetDir, info.Name()))
	}

	type pair struct{ src, dst string }
	stack := []pair{{src: src, dst: targetDir}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := os.ReadDir(cur.src)
		if err != nil {
			return errors.NewPath("ingest.readdir", cur.src, errors.ErrIO).WithMessage(err.Error())
		}

		for _, child := range children {
			childSrc := filepath.Join(cur.src, child.Name())
			if child.IsDir() {
				stack = append(stack, pair{src: childSrc, dst: pathutil.JoinDir(cur.dst, child.Name())})
				continue
			}
			if err := e.ingestFile(ctx, to, childSrc, pathutil.JoinDir(cur.dst, child.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) ingestFile(ctx context.Context, to storage.Handle, src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.NewPath("ingest.read", src, errors.ErrIO).WithMessage(err.Error())
	}
	return ops.WriteFull(ctx, to, dst, data)
}
