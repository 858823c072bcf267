// Package repotest writes package repositories for tests.
//
// Trees are registered per version; Complete and Patch then emit the
// package data and metadata that turn one tree into another, in the same
// layout a published repository uses.
package repotest

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/Ludea/Sparus/pkg/updater/metadata"
	"github.com/Ludea/Sparus/state"
	"github.com/klauspost/compress/zstd"
	"github.com/kr/binarydist"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/require"
)

// File is one regular file of a tree.
type File struct {
	Content string
	Exe     bool
}

// Tree maps slash paths to files. Keys ending in "/" are directories.
type Tree map[string]File

// Builder writes a repository into a directory.
type Builder struct {
	t     testing.TB
	dir   string
	trees map[string]Tree

	// AddCompression and PatchCompression select payload codecs.
	AddCompression   metadata.Compression
	PatchCompression metadata.Compression

	packages []metadata.PackageRef
	versions []metadata.VersionEntry
}

// New creates a builder writing to dir.
func New(t testing.TB, dir string) *Builder {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return &Builder{
		t:                t,
		dir:              dir,
		trees:            make(map[string]Tree),
		AddCompression:   metadata.CompressionZstd,
		PatchCompression: metadata.CompressionLZ4,
	}
}

// Dir returns the repository directory.
func (b *Builder) Dir() string {
	return b.dir
}

// Version registers the tree of a version.
func (b *Builder) Version(version string, tree Tree) *Builder {
	b.trees[version] = tree
	b.versions = append(b.versions, metadata.VersionEntry{Revision: len(b.versions) + 1, Version: version})
	b.writeJSON(metadata.VersionsFile, metadata.Versions{Versions: b.versions})
	return b
}

// Current publishes version as the repository's current version.
func (b *Builder) Current(version string) *Builder {
	b.writeJSON(metadata.CurrentFile, metadata.Current{Version: version, Revision: len(b.versions)})
	return b
}

// Complete emits a full snapshot package of version.
func (b *Builder) Complete(version string) metadata.PackageRef {
	return b.emit("", version)
}

// Patch emits an incremental package from one version to another.
func (b *Builder) Patch(from, to string) metadata.PackageRef {
	return b.emit(from, to)
}

// Corrupt flips a byte of a package's data.
func (b *Builder) Corrupt(ref metadata.PackageRef, offset int64) {
	path := filepath.Join(b.dir, ref.Name())
	data, err := os.ReadFile(path)
	require.NoError(b.t, err)
	data[offset] ^= 0xff
	require.NoError(b.t, os.WriteFile(path, data, 0o644))
}

func (b *Builder) emit(from, to string) metadata.PackageRef {
	b.t.Helper()
	newTree, ok := b.trees[to]
	require.True(b.t, ok, "unknown version %s", to)
	oldTree := Tree{}
	if from != "" {
		oldTree, ok = b.trees[from]
		require.True(b.t, ok, "unknown version %s", from)
	}

	var data bytes.Buffer
	meta := metadata.PackageMetadata{From: from, To: to}

	for _, p := range sortedKeys(oldTree) {
		if _, keep := newTree[p]; keep {
			continue
		}
		if isDir(p) {
			meta.Operations = append(meta.Operations, metadata.Operation{Type: metadata.OpRmdir, Path: strings.TrimSuffix(p, "/")})
		} else {
			meta.Operations = append(meta.Operations, metadata.Operation{Type: metadata.OpRm, Path: p})
		}
	}

	for _, p := range sortedKeys(newTree) {
		f := newTree[p]
		if isDir(p) {
			meta.Operations = append(meta.Operations, metadata.Operation{Type: metadata.OpMkdir, Path: strings.TrimSuffix(p, "/")})
			continue
		}
		final := []byte(f.Content)
		op := metadata.Operation{
			Path:      p,
			FinalSize: int64(len(final)),
			FinalHash: metadata.HashBytes(final),
			Exe:       f.Exe,
		}

		old, existed := oldTree[p]
		switch {
		case existed && old.Content == f.Content && old.Exe == f.Exe:
			op.Type = metadata.OpCheck
		case existed && old.Content != "":
			var patch bytes.Buffer
			require.NoError(b.t, binarydist.Diff(strings.NewReader(old.Content), bytes.NewReader(final), &patch))
			op.Type = metadata.OpPatch
			op.LocalSize = int64(len(old.Content))
			op.LocalHash = metadata.HashBytes([]byte(old.Content))
			op.DataCompression = b.PatchCompression
			op.DataOffset = int64(data.Len())
			op.DataSize = b.compress(&data, patch.Bytes(), b.PatchCompression)
		default:
			op.Type = metadata.OpAdd
			op.DataCompression = b.AddCompression
			op.DataOffset = int64(data.Len())
			op.DataSize = b.compress(&data, final, b.AddCompression)
		}
		meta.Operations = append(meta.Operations, op)
	}

	meta.DataSize = int64(data.Len())
	meta.DataHash = metadata.HashBytes(data.Bytes())
	require.NoError(b.t, meta.Validate())

	ref := metadata.PackageRef{From: from, To: to, Size: meta.DataSize}
	require.NoError(b.t, os.WriteFile(filepath.Join(b.dir, ref.Name()), data.Bytes(), 0o644))
	b.writeJSON(ref.Name()+metadata.MetadataExt, meta)

	b.packages = append(b.packages, ref)
	b.writeJSON(metadata.PackagesFile, metadata.Packages{Packages: b.packages})
	return ref
}

func (b *Builder) compress(out *bytes.Buffer, payload []byte, codec metadata.Compression) int64 {
	start := out.Len()
	switch codec {
	case metadata.CompressionZstd:
		enc, err := zstd.NewWriter(out)
		require.NoError(b.t, err)
		_, err = enc.Write(payload)
		require.NoError(b.t, err)
		require.NoError(b.t, enc.Close())
	case metadata.CompressionLZ4:
		enc := lz4.NewWriter(out)
		_, err := enc.Write(payload)
		require.NoError(b.t, err)
		require.NoError(b.t, enc.Close())
	default:
		out.Write(payload)
	}
	return int64(out.Len() - start)
}

func (b *Builder) writeJSON(name string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(b.t, err)
	require.NoError(b.t, os.WriteFile(filepath.Join(b.dir, name), data, 0o644))
}

func isDir(p string) bool {
	return strings.HasSuffix(p, "/")
}

func sortedKeys(tree Tree) []string {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ReadTree reads a workspace back as a tree, skipping the sidecar
// directory.
func ReadTree(t testing.TB, root string) Tree {
	t.Helper()
	tree := Tree{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == state.DirName {
			return filepath.SkipDir
		}
		if info.IsDir() {
			tree[rel+"/"] = File{}
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			return err
		}
		tree[rel] = File{Content: string(content), Exe: info.Mode()&0o111 != 0}
		return nil
	})
	require.NoError(t, err)
	return tree
}

// Normalize adds the parent directories a tree implies, so it compares
// equal to ReadTree output.
func Normalize(tree Tree) Tree {
	out := Tree{}
	for p, f := range tree {
		out[p] = f
		parts := strings.Split(strings.TrimSuffix(p, "/"), "/")
		for i := 1; i < len(parts); i++ {
			out[strings.Join(parts[:i], "/")+"/"] = File{}
		}
	}
	return out
}
