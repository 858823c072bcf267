package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/pkg/updater/metadata"
)

const chunkSize = 64 * 1024

// fileEnds counts data files whose payload lies entirely below a download
// offset.
type fileEnds struct {
	ends []int64
	done int
}

func newFileEnds(meta *metadata.PackageMetadata) *fileEnds {
	var ends []int64
	for _, op := range meta.Operations {
		if op.HasData() {
			ends = append(ends, op.DataOffset+op.DataSize)
		}
	}
	sort.Slice(ends, func(i, j int) bool { return ends[i] < ends[j] })
	return &fileEnds{ends: ends}
}

// reach returns how many more files completed at offset.
func (f *fileEnds) reach(offset int64) int64 {
	var n int64
	for f.done < len(f.ends) && f.ends[f.done] <= offset {
		f.done++
		n++
	}
	return n
}

// download fetches the package data into its .part file, resuming after
// whatever an earlier run left there, then verifies the data hash.
func (r *run) download(pkg string, meta *metadata.PackageMetadata) error {
	part := r.ws.partPath(pkg)
	if err := os.MkdirAll(filepath.Dir(part), 0o755); err != nil {
		return sparuserrors.IO("create download directory", filepath.Dir(part), err)
	}

	if meta.DataSize == 0 {
		if err := os.WriteFile(part, nil, 0o644); err != nil {
			return sparuserrors.IO("write", part, err)
		}
	}

	var offset int64
	if info, err := os.Stat(part); err == nil {
		offset = info.Size()
	}
	if offset > meta.DataSize {
		offset = 0
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if offset == 0 {
		flags |= os.O_TRUNC
	}

	files := newFileEnds(meta)
	if offset > 0 {
		r.logger.WithField("offset", offset).Info("Resuming package download")
		r.tracker.Downloaded(files.reach(offset), offset)
		if err := r.emit(); err != nil {
			return err
		}
	}

	if offset < meta.DataSize {
		if err := r.fetch(pkg, part, flags, offset, meta.DataSize, files); err != nil {
			return err
		}
	}
	r.tracker.Downloaded(files.reach(meta.DataSize), 0)
	return r.verifyData(pkg, part, meta)
}

func (r *run) fetch(pkg, part string, flags int, offset, size int64, files *fileEnds) (err error) {
	out, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return sparuserrors.IO("open", part, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = sparuserrors.IO("close", part, cerr)
		}
		if u := r.st.State.Updating; u != nil {
			u.DownloadedBytes = offset
		}
	}()

	body, err := r.repo.PackageData(r.ctx, pkg, offset)
	if err != nil {
		return err
	}
	defer body.Close()

	buf := make([]byte, chunkSize)
	src := io.LimitReader(body, size-offset)
	for offset < size {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return sparuserrors.IO("write", part, werr)
			}
			offset += int64(n)
			r.tracker.Downloaded(files.reach(offset), int64(n))
			if err := r.emit(); err != nil {
				return err
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			if ctxErr := r.ctx.Err(); ctxErr != nil {
				return sparuserrors.Cancelled(ctxErr)
			}
			return sparuserrors.Repository("download "+pkg, r.repo.URL(), rerr)
		}
	}
	if offset < size {
		return sparuserrors.Repository("download "+pkg, r.repo.URL(),
			fmt.Errorf("package data truncated at %d of %d bytes", offset, size))
	}
	return nil
}

func (r *run) verifyData(pkg, part string, meta *metadata.PackageMetadata) error {
	if meta.DataHash == "" {
		return nil
	}
	sum, _, err := metadata.HashFile(part)
	if err != nil {
		return sparuserrors.IO("hash", part, err)
	}
	if metadata.HashEqual(sum, meta.DataHash) {
		return nil
	}

	_ = os.Remove(part)
	r.tracker.Failed(meta.Totals().DataFiles)
	reason := fmt.Sprintf("package %s data hash mismatch", pkg)
	return r.fail(reason)
}

// fail marks the workspace broken and reports a verification failure.
func (r *run) fail(reason string) error {
	r.logger.WithField("reason", reason).Error("Workspace verification failed")
	markBroken(r.st, reason)
	if err := r.save(); err != nil {
		return err
	}
	r.observe(r.tracker.Snapshot())
	return sparuserrors.Update(reason).WithDetail("workspace", r.ws.path)
}
