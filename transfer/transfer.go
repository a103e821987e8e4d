// Package transfer implements copy and move of files and directory trees
// between two storage handles (or within one), with conflict policies and
// collision-safe destination naming.
package transfer

import (
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/infimount/infimount/errors"
	"github.com/infimount/infimount/internal/pathutil"
	"github.com/infimount/infimount/storage"
)

// Operation selects between duplicating entries and relocating them.
type Operation int

const (
	// OpCopy duplicates entries, leaving the source untouched.
	OpCopy Operation = iota

	// OpMove relocates entries. The source is deleted only after the
	// destination is confirmed written.
	OpMove
)

// String implements fmt.Stringer.
func (o Operation) String() string {
	if o == OpMove {
		return "move"
	}
	return "copy"
}

// ConflictPolicy decides what happens when a destination already exists.
type ConflictPolicy int

const (
	// PolicyFail aborts the whole batch on any collision, before
	// anything is written.
	PolicyFail ConflictPolicy = iota

	// PolicyOverwrite deletes the colliding destination, then writes.
	PolicyOverwrite

	// PolicySkip leaves the colliding destination untouched and moves
	// on to the next entry.
	PolicySkip
)

// String implements fmt.Stringer.
func (p ConflictPolicy) String() string {
	switch p {
	case PolicyOverwrite:
		return "overwrite"
	case PolicySkip:
		return "skip"
	default:
		return "fail"
	}
}

// Request describes one transfer batch. Paths are processed in order;
// TargetDir is a destination-relative directory ("" for the root).
//
// SameSource must be true when from and to are the same backend instance; it
// enables the backend's native copy/rename fast path and the onto-self
// safety rules. It applies to the whole request, not per entry.
type Request struct {
	Paths      []string
	TargetDir  string
	Operation  Operation
	Policy     ConflictPolicy
	SameSource bool
}

// Engine orchestrates transfers. The zero value is not usable; construct
// with NewEngine.
type Engine struct {
	log *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a logger. Without it the engine is silent.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// NewEngine returns a transfer engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transfer copies or moves every path in the request into the target
// directory on the destination handle.
//
// Under PolicyFail a pre-flight pass checks every destination before
// anything is written, so a collision anywhere aborts with no partial
// effect. Under the other policies, collisions are resolved per entry as
// they are reached.
//
// Onto-self rules when SameSource is set: copying an entry onto its own path
// duplicates it under a deduplicated name instead of clobbering it (under
// every policy); moving an entry onto its own path is a silent no-op for
// that entry; copying or moving a directory into its own subtree fails with
// ErrIsSameFile.
func (e *Engine) Transfer(ctx context.Context, from, to storage.Handle, req Request) error {
	e.log.Debug("transfer requested",
		zap.Int("entries", len(req.Paths)),
		zap.String("target_dir", req.TargetDir),
		zap.Stringer("operation", req.Operation),
		zap.Stringer("policy", req.Policy),
		zap.Bool("same_source", req.SameSource))

	if req.Policy == PolicyFail {
		if err := e.preflight(ctx, from, to, req); err != nil {
			return err
		}
	}

	for _, fromPath := range req.Paths {
		md, err := from.Stat(ctx, fromPath)
		if err != nil {
			return err
		}

		if md.IsDir {
			err = e.transferDirEntry(ctx, from, to, fromPath, req)
		} else {
			err = e.transferFileEntry(ctx, from, to, fromPath, req)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// preflight verifies, before any mutation, that no requested entry collides
// with an existing destination. Entries the main pass would skip or
// dedup-rename are exempt from the check.
func (e *Engine) preflight(ctx context.Context, from, to storage.Handle, req Request) error {
	for _, fromPath := range req.Paths {
		md, err := from.Stat(ctx, fromPath)
		if err != nil {
			return err
		}
		name := pathutil.BaseName(fromPath)

		if md.IsDir {
			destDir := pathutil.EnsureDir(pathutil.JoinDir(req.TargetDir, name))
			srcDir := pathutil.EnsureDir(fromPath)

			if req.SameSource {
				if req.Operation == OpMove && srcDir == destDir {
					continue
				}
				if err := checkNotIntoSelf(srcDir, destDir, fromPath); err != nil {
					return err
				}
			}
			if req.Operation == OpCopy && req.SameSource && srcDir == destDir {
				// Resolved by dedup naming in the main pass.
				continue
			}

			exists, err := to.Exists(ctx, destDir)
			if err != nil {
				return err
			}
			if exists {
				return errors.NewPath("transfer.preflight", destDir, errors.ErrAlreadyExists).
					WithMessage("destination directory already exists")
			}
		} else {
			destFile := pathutil.JoinDir(req.TargetDir, name)
			if req.SameSource && fromPath == destFile {
				continue
			}

			exists, err := to.Exists(ctx, destFile)
			if err != nil {
				return err
			}
			if exists {
				return errors.NewPath("transfer.preflight", destFile, errors.ErrAlreadyExists).
					WithMessage("destination file already exists")
			}
		}
	}
	return nil
}

func (e *Engine) transferFileEntry(ctx context.Context, from, to storage.Handle, fromPath string, req Request) error {
	name := pathutil.BaseName(fromPath)
	destFile := pathutil.JoinDir(req.TargetDir, name)

	if req.Operation == OpCopy && req.SameSource && fromPath == destFile {
		unique, err := uniqueDestination(ctx, to, req.TargetDir, name, false)
		if err != nil {
			return err
		}
		destFile = unique
	}

	if req.Operation == OpMove && req.SameSource && fromPath == destFile {
		e.log.Debug("move onto itself skipped", zap.String("path", fromPath))
		return nil
	}

	exists, err := to.Exists(ctx, destFile)
	if err != nil {
		return err
	}
	if exists {
		switch req.Policy {
		case PolicyFail:
			return errors.NewPath("transfer.file", destFile, errors.ErrAlreadyExists).
				WithMessage("destination file already exists")
		case PolicyOverwrite:
			if err := to.Remove(ctx, destFile); err != nil {
				return err
			}
		case PolicySkip:
			e.log.Debug("existing destination skipped", zap.String("path", destFile))
			return nil
		}
	}

	return e.transferFile(ctx, from, to, fromPath, destFile, req.Operation, req.SameSource)
}

func (e *Engine) transferDirEntry(ctx context.Context, from, to storage.Handle, fromPath string, req Request) error {
	name := pathutil.BaseName(fromPath)
	srcDir := pathutil.EnsureDir(fromPath)
	destDir := pathutil.EnsureDir(pathutil.JoinDir(req.TargetDir, name))

	if req.SameSource {
		if req.Operation == OpMove && srcDir == destDir {
			e.log.Debug("move onto itself skipped", zap.String("path", fromPath))
			return nil
		}
		if err := checkNotIntoSelf(srcDir, destDir, fromPath); err != nil {
			return err
		}
	}

	if req.Operation == OpCopy && req.SameSource && srcDir == destDir {
		unique, err := uniqueDestination(ctx, to, req.TargetDir, name, true)
		if err != nil {
			return err
		}
		destDir = unique
	}

	exists, err := to.Exists(ctx, destDir)
	if err != nil {
		return err
	}
	if exists {
		switch req.Policy {
		case PolicyFail:
			return errors.NewPath("transfer.dir", destDir, errors.ErrAlreadyExists).
				WithMessage("destination directory already exists")
		case PolicyOverwrite:
			if err := to.Remove(ctx, destDir); err != nil {
				return err
			}
		case PolicySkip:
			e.log.Debug("existing destination skipped", zap.String("path", destDir))
			return nil
		}
	}

	return e.transferDirTree(ctx, from, to, srcDir, destDir, req.Operation, req.SameSource)
}

// transferDirTree walks a source directory with an explicit work stack of
// (source-subdir, destination-subdir) pairs, creating subdirectories eagerly
// as they are discovered and copying files with copy semantics regardless of
// the outer operation. For a move, the entire source subtree is deleted once
// at the end, after every descendant is confirmed written.
func (e *Engine) transferDirTree(ctx context.Context, from, to storage.Handle, fromDir, toDir string, op Operation, sameSource bool) error {
	fromRoot := pathutil.EnsureDir(fromDir)
	toRoot := pathutil.EnsureDir(toDir)

	if err := to.CreateDir(ctx, toRoot); err != nil {
		return err
	}

	type pair struct{ src, dst string }
	stack := []pair{{src: fromRoot, dst: toRoot}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := from.List(ctx, cur.src)
		if err != nil {
			return err
		}

		for _, child := range children {
			md, err := from.Stat(ctx, child)
			if err != nil {
				return err
			}
			name := pathutil.BaseName(child)

			if md.IsDir {
				childSrc := pathutil.EnsureDir(child)
				childDst := pathutil.EnsureDir(pathutil.JoinDir(cur.dst, name))
				if err := to.CreateDir(ctx, childDst); err != nil {
					return err
				}
				stack = append(stack, pair{src: childSrc, dst: childDst})
			} else {
				childDst := pathutil.JoinDir(cur.dst, name)
				if err := e.transferFile(ctx, from, to, child, childDst, OpCopy, sameSource); err != nil {
					return err
				}
			}
		}
	}

	if op == OpMove {
		return from.Remove(ctx, fromRoot)
	}
	return nil
}

// transferFile moves or copies one file. Within a single backend instance it
// uses the native copy/rename primitive; across instances it streams reader
// to writer, and for a move deletes the source only after the stream closes
// cleanly.
func (e *Engine) transferFile(ctx context.Context, from, to storage.Handle, fromPath, toPath string, op Operation, sameSource bool) error {
	if err := ensureParentDir(ctx, to, toPath); err != nil {
		return err
	}

	switch {
	case op == OpCopy && sameSource:
		return from.Copy(ctx, fromPath, toPath)
	case op == OpMove && sameSource:
		return from.Rename(ctx, fromPath, toPath)
	case op == OpCopy:
		return streamFile(ctx, from, to, fromPath, toPath)
	default:
		if err := streamFile(ctx, from, to, fromPath, toPath); err != nil {
			return err
		}
		return from.Remove(ctx, fromPath)
	}
}

func streamFile(ctx context.Context, from, to storage.Handle, fromPath, toPath string) error {
	r, err := from.Reader(ctx, fromPath)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := to.Writer(ctx, toPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return errors.NewPath("transfer.stream", toPath, errors.ErrUnexpected).WithMessage(err.Error())
	}
	return w.Close()
}

func ensureParentDir(ctx context.Context, h storage.Handle, path string) error {
	parent, ok := pathutil.ParentDir(path)
	if !ok {
		return nil
	}
	return h.CreateDir(ctx, pathutil.EnsureDir(parent))
}

// checkNotIntoSelf rejects a directory transfer whose destination is a
// strict descendant of its source. Both arguments must carry trailing
// separators.
func checkNotIntoSelf(srcDir, destDir, origPath string) error {
	if strings.HasPrefix(destDir, srcDir) && destDir != srcDir {
		return errors.NewPath("transfer.dir", origPath, errors.ErrIsSameFile).
			WithMessage("cannot copy a folder into itself")
	}
	return nil
}
