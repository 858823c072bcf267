package workspace

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/pkg/updater/metadata"
	"github.com/klauspost/compress/zstd"
	"github.com/kr/binarydist"
	"github.com/pierrec/lz4/v4"
	"github.com/sirupsen/logrus"
)

// stage writes every output of the package under its staging directory
// and verifies it. Nothing outside the sidecar directory is touched.
func (r *run) stage(pkg string, meta *metadata.PackageMetadata) error {
	staging := r.ws.stagingPath(pkg)
	if err := os.RemoveAll(staging); err != nil {
		return sparuserrors.IO("clear staging", staging, err)
	}
	if err := os.MkdirAll(filepath.Join(staging, stagedFilesDir), 0o755); err != nil {
		return sparuserrors.IO("create staging", staging, err)
	}

	part := r.ws.partPath(pkg)
	data, err := os.Open(part)
	if err != nil {
		return sparuserrors.IO("open", part, err)
	}
	defer data.Close()

	var failed []string
	for _, op := range meta.Operations {
		ok, err := r.stageOp(staging, data, op)
		if err != nil {
			return err
		}
		if !ok {
			failed = append(failed, op.Path)
			r.tracker.Failed(1)
			r.logger.WithFields(logrus.Fields{"path": op.Path, "op": op.Type}).Warn("File failed verification")
		}
		var in, out int64
		if op.HasData() {
			in, out = op.DataSize, op.FinalSize
		}
		r.tracker.Applied(1, in, out)
		if err := r.emit(); err != nil {
			return err
		}
	}
	if len(failed) > 0 {
		return r.fail(fmt.Sprintf("package %s: %d file(s) failed verification, first %s", pkg, len(failed), failed[0]))
	}
	return r.ws.saveStaged(pkg, meta)
}

// stageOp applies one operation into the staging area. It reports false
// when the produced or checked content does not match the metadata.
func (r *run) stageOp(staging string, data io.ReaderAt, op metadata.Operation) (bool, error) {
	switch op.Type {
	case metadata.OpAdd:
		payload, closer, err := openPayload(data, op)
		if err != nil {
			return false, err
		}
		defer closer()
		return writeStaged(staging, op, payload)

	case metadata.OpPatch:
		local := r.ws.target(op.Path)
		old, err := os.ReadFile(local)
		if err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, sparuserrors.IO("read", local, err)
		}
		if !matches(old, op.LocalSize, op.LocalHash) {
			return false, nil
		}
		payload, closer, err := openPayload(data, op)
		if err != nil {
			return false, err
		}
		defer closer()

		var out bytes.Buffer
		if err := binarydist.Patch(bytes.NewReader(old), &out, payload); err != nil {
			r.logger.WithError(err).WithField("path", op.Path).Warn("Patch failed to apply")
			return false, nil
		}
		return writeStaged(staging, op, &out)

	case metadata.OpCheck:
		local := r.ws.target(op.Path)
		sum, size, err := metadata.HashFile(local)
		if err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, sparuserrors.IO("hash", local, err)
		}
		wantHash, wantSize := op.FinalHash, op.FinalSize
		if wantHash == "" {
			wantHash, wantSize = op.LocalHash, op.LocalSize
		}
		return (wantSize == 0 || size == wantSize) && (wantHash == "" || metadata.HashEqual(sum, wantHash)), nil
	}
	return true, nil
}

// openPayload returns a decoder over the operation's slice of package data.
func openPayload(data io.ReaderAt, op metadata.Operation) (io.Reader, func(), error) {
	section := io.NewSectionReader(data, op.DataOffset, op.DataSize)
	switch op.DataCompression {
	case metadata.CompressionZstd:
		dec, err := zstd.NewReader(section)
		if err != nil {
			return nil, nil, sparuserrors.Wrap(err, sparuserrors.KindUpdate, "zstd payload of "+op.Path)
		}
		return dec, dec.Close, nil
	case metadata.CompressionLZ4:
		return lz4.NewReader(section), func() {}, nil
	default:
		return section, func() {}, nil
	}
}

func writeStaged(staging string, op metadata.Operation, src io.Reader) (bool, error) {
	dest := filepath.Join(staging, stagedFilesDir, filepath.FromSlash(op.Path))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, sparuserrors.IO("create", filepath.Dir(dest), err)
	}
	mode := os.FileMode(0o644)
	if op.Exe {
		mode = 0o755
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return false, sparuserrors.IO("create", dest, err)
	}

	h := metadata.NewHasher()
	n, copyErr := io.Copy(io.MultiWriter(f, h), src)
	if err := f.Close(); err != nil && copyErr == nil {
		return false, sparuserrors.IO("close", dest, err)
	}
	if copyErr != nil {
		var pathErr *os.PathError
		if errors.As(copyErr, &pathErr) {
			return false, sparuserrors.IO("write", dest, copyErr)
		}
		// Corrupt payload.
		return false, nil
	}
	if op.Exe {
		if err := os.Chmod(dest, mode); err != nil {
			return false, sparuserrors.IO("chmod", dest, err)
		}
	}
	if op.FinalSize > 0 && n != op.FinalSize {
		return false, nil
	}
	return op.FinalHash == "" || metadata.HashEqual(hex.EncodeToString(h.Sum(nil)), op.FinalHash), nil
}

func matches(data []byte, size int64, hash string) bool {
	if size > 0 && int64(len(data)) != size {
		return false
	}
	return hash == "" || metadata.HashEqual(metadata.HashBytes(data), hash)
}

// commit moves staged outputs into place and applies removals in operation
// order. It is idempotent so an interrupted commit can be replayed.
func (w *Workspace) commit(pkg string, meta *metadata.PackageMetadata) error {
	staging := w.stagingPath(pkg)
	for _, op := range meta.Operations {
		dest := w.target(op.Path)
		switch op.Type {
		case metadata.OpAdd, metadata.OpPatch:
			src := filepath.Join(staging, stagedFilesDir, filepath.FromSlash(op.Path))
			if _, err := os.Stat(src); os.IsNotExist(err) {
				continue
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return sparuserrors.IO("create", filepath.Dir(dest), err)
			}
			if err := os.Rename(src, dest); err != nil {
				return sparuserrors.IO("rename", dest, err)
			}
		case metadata.OpRm:
			if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
				return sparuserrors.IO("remove", dest, err)
			}
		case metadata.OpRmdir:
			if err := os.RemoveAll(dest); err != nil {
				return sparuserrors.IO("remove", dest, err)
			}
		case metadata.OpMkdir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return sparuserrors.IO("create", dest, err)
			}
		}
	}

	if err := os.RemoveAll(staging); err != nil {
		return sparuserrors.IO("remove", staging, err)
	}
	part := w.partPath(pkg)
	if err := os.Remove(part); err != nil && !os.IsNotExist(err) {
		return sparuserrors.IO("remove", part, err)
	}
	return nil
}
