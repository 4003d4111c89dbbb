// Package snapshot compares form-state snapshots.
//
// Equality is structural: two snapshots are equal when their canonical JSON
// encodings match. Change reports are RFC 6902 style operations produced by
// jsondiff and are meant for logs and diagnostics, never for the dirty
// decision itself.
package snapshot

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/wI2L/jsondiff"

	"github.com/roach88/navguard/internal/ir"
)

// Change describes one difference between a baseline and a current snapshot.
type Change struct {
	Op   string `json:"op"`   // "add", "remove" or "replace"
	Path string `json:"path"` // JSON pointer, e.g. "/items/0/qty"
}

// Equal reports whether a and b are structurally equal.
//
// A snapshot that cannot be encoded (it contains an unsupported value) is
// never equal to anything; the failure is logged because it points at a
// form producing invalid snapshot data.
func Equal(a, b ir.IRObject) bool {
	ab, err := ir.MarshalCanonical(a)
	if err != nil {
		slog.Warn("snapshot encode failed", "error", err)
		return false
	}
	bb, err := ir.MarshalCanonical(b)
	if err != nil {
		slog.Warn("snapshot encode failed", "error", err)
		return false
	}
	return bytes.Equal(ab, bb)
}

// Digest returns the content digest of a snapshot.
func Digest(s ir.IRObject) (string, error) {
	return ir.SnapshotDigest(s)
}

// Changes lists the operations that turn baseline into current.
// Returns an empty slice when the snapshots are equal.
func Changes(baseline, current ir.IRObject) ([]Change, error) {
	from, err := ir.MarshalCanonical(baseline)
	if err != nil {
		return nil, fmt.Errorf("encode baseline: %w", err)
	}
	to, err := ir.MarshalCanonical(current)
	if err != nil {
		return nil, fmt.Errorf("encode current: %w", err)
	}

	patch, err := jsondiff.CompareJSON(from, to)
	if err != nil {
		return nil, fmt.Errorf("compare snapshots: %w", err)
	}

	changes := make([]Change, 0, len(patch))
	for _, op := range patch {
		changes = append(changes, Change{Op: op.Type, Path: op.Path})
	}
	return changes, nil
}

// ChangedPaths is a convenience wrapper returning only the paths of Changes.
// Errors are logged and yield nil.
func ChangedPaths(baseline, current ir.IRObject) []string {
	changes, err := Changes(baseline, current)
	if err != nil {
		slog.Warn("snapshot diff failed", "error", err)
		return nil
	}
	paths := make([]string, len(changes))
	for i, c := range changes {
		paths[i] = c.Path
	}
	return paths
}
