// Package metadata describes the documents a package repository publishes.
package metadata

import (
	"fmt"
	"path"
	"strings"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Masterminds/semver/v3"
)

// Document names at the repository root.
const (
	CurrentFile  = "current"
	VersionsFile = "versions"
	PackagesFile = "packages"
	MetadataExt  = ".metadata"
)

// Current is the repository's current version descriptor.
type Current struct {
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Revision    int    `json:"revision,omitempty"`
}

// VersionEntry describes one published version.
type VersionEntry struct {
	Revision    int    `json:"revision"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// Versions lists every published version.
type Versions struct {
	Versions []VersionEntry `json:"versions"`
}

// PackageRef names a package in the repository index. An empty From marks
// a complete package usable from any state.
type PackageRef struct {
	From string `json:"from"`
	To   string `json:"to"`
	Size int64  `json:"size"`
}

// Packages is the repository package index.
type Packages struct {
	Packages []PackageRef `json:"packages"`
}

// IsComplete reports whether the package is a full snapshot.
func (p PackageRef) IsComplete() bool {
	return p.From == ""
}

// Name returns the package's file name in the repository.
func (p PackageRef) Name() string {
	if p.IsComplete() {
		return "complete_" + p.To
	}
	return "patch_" + p.From + "_" + p.To
}

// Compression is the codec of an operation's payload.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// OpType is the kind of a package operation.
type OpType string

const (
	OpAdd   OpType = "add"
	OpPatch OpType = "patch"
	OpRm    OpType = "rm"
	OpMkdir OpType = "mkdir"
	OpRmdir OpType = "rmdir"
	OpCheck OpType = "check"
)

// Operation is one ordered file operation of a package. Payloads are byte
// ranges of the package data; hashes are BLAKE3 hex digests.
type Operation struct {
	Type            OpType      `json:"type"`
	Path            string      `json:"path"`
	DataOffset      int64       `json:"data_offset,omitempty"`
	DataSize        int64       `json:"data_size,omitempty"`
	DataCompression Compression `json:"data_compression,omitempty"`
	LocalSize       int64       `json:"local_size,omitempty"`
	LocalHash       string      `json:"local_hash,omitempty"`
	FinalSize       int64       `json:"final_size,omitempty"`
	FinalHash       string      `json:"final_hash,omitempty"`
	Exe             bool        `json:"exe,omitempty"`
}

// HasData reports whether the operation reads a payload.
func (op Operation) HasData() bool {
	return op.Type == OpAdd || op.Type == OpPatch
}

// PackageMetadata is the <package>.metadata document.
type PackageMetadata struct {
	From       string      `json:"from"`
	To         string      `json:"to"`
	DataSize   int64       `json:"data_size"`
	DataHash   string      `json:"data_hash"`
	Operations []Operation `json:"operations"`
}

// Totals are the work a package represents.
type Totals struct {
	DataFiles   int64
	Files       int64
	InputBytes  int64
	OutputBytes int64
}

// Totals sums the package's operations.
func (m *PackageMetadata) Totals() Totals {
	var t Totals
	for _, op := range m.Operations {
		t.Files++
		if op.HasData() {
			t.DataFiles++
			t.InputBytes += op.DataSize
			t.OutputBytes += op.FinalSize
		}
	}
	return t
}

// Validate rejects metadata that would write outside the workspace or read
// outside the package data.
func (m *PackageMetadata) Validate() error {
	for i, op := range m.Operations {
		if err := ValidatePath(op.Path); err != nil {
			return sparuserrors.Update(fmt.Sprintf("operation %d: %v", i, err))
		}
		switch op.Type {
		case OpAdd, OpPatch:
			if op.DataOffset < 0 || op.DataSize < 0 || op.DataOffset+op.DataSize > m.DataSize {
				return sparuserrors.Update(fmt.Sprintf("operation %d (%s): data range [%d, %d) outside package of %d bytes",
					i, op.Path, op.DataOffset, op.DataOffset+op.DataSize, m.DataSize))
			}
			switch op.DataCompression {
			case "", CompressionNone, CompressionZstd, CompressionLZ4:
			default:
				return sparuserrors.Update(fmt.Sprintf("operation %d (%s): unknown compression %q", i, op.Path, op.DataCompression))
			}
		case OpRm, OpMkdir, OpRmdir, OpCheck:
		default:
			return sparuserrors.Update(fmt.Sprintf("operation %d (%s): unknown type %q", i, op.Path, op.Type))
		}
	}
	return nil
}

// ValidatePath accepts relative, clean, slash-separated paths that stay
// inside the workspace and outside its sidecar directory.
func ValidatePath(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	if strings.Contains(p, "\\") || path.IsAbs(p) {
		return fmt.Errorf("path %q is not relative", p)
	}
	if path.Clean(p) != p {
		return fmt.Errorf("path %q is not clean", p)
	}
	first := strings.SplitN(p, "/", 2)[0]
	if first == ".." || first == "." {
		return fmt.Errorf("path %q escapes the workspace", p)
	}
	if first == ".update" {
		return fmt.Errorf("path %q targets the update directory", p)
	}
	return nil
}

// ParseVersion parses a semantic version.
func ParseVersion(v string) (*semver.Version, error) {
	parsed, err := semver.NewVersion(v)
	if err != nil {
		return nil, sparuserrors.Semver(v, err)
	}
	return parsed, nil
}

// SameVersion reports whether a and b name the same version. Unparsable
// versions compare as strings.
func SameVersion(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return va.Equal(vb)
}
