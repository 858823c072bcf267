// Package progress tracks update progress and renders DownloadInfos
// snapshots.
package progress

import (
	"sync"
	"time"

	"github.com/Ludea/Sparus/pkg/updater/metadata"
)

// Counters are the cumulative dimensions of an update run.
type Counters struct {
	DownloadedFiles    int64
	DownloadedBytes    int64
	AppliedFiles       int64
	AppliedInputBytes  int64
	AppliedOutputBytes int64
	FailedFiles        int64
}

func (c Counters) sub(o Counters) Counters {
	return Counters{
		DownloadedFiles:    c.DownloadedFiles - o.DownloadedFiles,
		DownloadedBytes:    c.DownloadedBytes - o.DownloadedBytes,
		AppliedFiles:       c.AppliedFiles - o.AppliedFiles,
		AppliedInputBytes:  c.AppliedInputBytes - o.AppliedInputBytes,
		AppliedOutputBytes: c.AppliedOutputBytes - o.AppliedOutputBytes,
		FailedFiles:        c.FailedFiles - o.FailedFiles,
	}
}

// DownloadInfos is the flat progress snapshot emitted on
// sparus://downloadinfos.
type DownloadInfos struct {
	PackagesStart int `json:"packages_start"`
	PackagesEnd   int `json:"packages_end"`

	DownloadedFilesStart    int64 `json:"downloaded_files_start"`
	DownloadedFilesEnd      int64 `json:"downloaded_files_end"`
	DownloadedBytesStart    int64 `json:"downloaded_bytes_start"`
	DownloadedBytesEnd      int64 `json:"downloaded_bytes_end"`
	AppliedFilesStart       int64 `json:"applied_files_start"`
	AppliedFilesEnd         int64 `json:"applied_files_end"`
	AppliedInputBytesStart  int64 `json:"applied_input_bytes_start"`
	AppliedInputBytesEnd    int64 `json:"applied_input_bytes_end"`
	AppliedOutputBytesStart int64 `json:"applied_output_bytes_start"`
	AppliedOutputBytesEnd   int64 `json:"applied_output_bytes_end"`
	FailedFiles             int64 `json:"failed_files"`

	DownloadedFilesPerSec    float64 `json:"downloaded_files_per_sec"`
	DownloadedBytesPerSec    float64 `json:"downloaded_bytes_per_sec"`
	AppliedFilesPerSec       float64 `json:"applied_files_per_sec"`
	AppliedInputBytesPerSec  float64 `json:"applied_input_bytes_per_sec"`
	AppliedOutputBytesPerSec float64 `json:"applied_output_bytes_per_sec"`
}

// Done reports whether every dimension reached its target.
func (d DownloadInfos) Done() bool {
	return d.PackagesStart >= d.PackagesEnd &&
		d.DownloadedBytesStart >= d.DownloadedBytesEnd &&
		d.AppliedFilesStart >= d.AppliedFilesEnd
}

// Tracker accumulates progress for one update run. It is safe for
// concurrent use.
type Tracker struct {
	mu        sync.Mutex
	now       func() time.Time
	pkg       int
	steps     int
	target    Counters
	current   Counters
	histogram *Histogram
}

// NewTracker creates a tracker for steps packages. A nil now uses
// time.Now.
func NewTracker(steps int, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	t := &Tracker{
		now:       now,
		steps:     steps,
		histogram: NewHistogram(DefaultWindow),
	}
	t.histogram.Add(now(), Counters{})
	return t
}

// AddPackage adds a package's work to the targets.
func (t *Tracker) AddPackage(m *metadata.PackageMetadata) {
	totals := m.Totals()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.target.DownloadedFiles += totals.DataFiles
	t.target.DownloadedBytes += m.DataSize
	t.target.AppliedFiles += totals.Files
	t.target.AppliedInputBytes += totals.InputBytes
	t.target.AppliedOutputBytes += totals.OutputBytes
}

// SetPackage records the index of the package being processed.
func (t *Tracker) SetPackage(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i > t.pkg {
		t.pkg = i
	}
}

// Downloaded advances the download counters.
func (t *Tracker) Downloaded(files, bytes int64) {
	t.advance(Counters{DownloadedFiles: files, DownloadedBytes: bytes})
}

// Applied advances the apply counters.
func (t *Tracker) Applied(files, inputBytes, outputBytes int64) {
	t.advance(Counters{AppliedFiles: files, AppliedInputBytes: inputBytes, AppliedOutputBytes: outputBytes})
}

// Failed records files that failed verification.
func (t *Tracker) Failed(files int64) {
	t.advance(Counters{FailedFiles: files})
}

func (t *Tracker) advance(delta Counters) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = Counters{
		DownloadedFiles:    t.current.DownloadedFiles + nonNegative(delta.DownloadedFiles),
		DownloadedBytes:    t.current.DownloadedBytes + nonNegative(delta.DownloadedBytes),
		AppliedFiles:       t.current.AppliedFiles + nonNegative(delta.AppliedFiles),
		AppliedInputBytes:  t.current.AppliedInputBytes + nonNegative(delta.AppliedInputBytes),
		AppliedOutputBytes: t.current.AppliedOutputBytes + nonNegative(delta.AppliedOutputBytes),
		FailedFiles:        t.current.FailedFiles + nonNegative(delta.FailedFiles),
	}
	t.histogram.Add(t.now(), t.current)
}

// Finish marks every package as processed.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pkg = t.steps
}

// Snapshot renders the current state. Current values never exceed their
// targets.
func (t *Tracker) Snapshot() DownloadInfos {
	t.mu.Lock()
	defer t.mu.Unlock()
	rates := t.histogram.Speed()
	return DownloadInfos{
		PackagesStart: clampInt(t.pkg, t.steps),
		PackagesEnd:   t.steps,

		DownloadedFilesStart:    clamp(t.current.DownloadedFiles, t.target.DownloadedFiles),
		DownloadedFilesEnd:      t.target.DownloadedFiles,
		DownloadedBytesStart:    clamp(t.current.DownloadedBytes, t.target.DownloadedBytes),
		DownloadedBytesEnd:      t.target.DownloadedBytes,
		AppliedFilesStart:       clamp(t.current.AppliedFiles, t.target.AppliedFiles),
		AppliedFilesEnd:         t.target.AppliedFiles,
		AppliedInputBytesStart:  clamp(t.current.AppliedInputBytes, t.target.AppliedInputBytes),
		AppliedInputBytesEnd:    t.target.AppliedInputBytes,
		AppliedOutputBytesStart: clamp(t.current.AppliedOutputBytes, t.target.AppliedOutputBytes),
		AppliedOutputBytesEnd:   t.target.AppliedOutputBytes,
		FailedFiles:             t.current.FailedFiles,

		DownloadedFilesPerSec:    rates.DownloadedFiles,
		DownloadedBytesPerSec:    rates.DownloadedBytes,
		AppliedFilesPerSec:       rates.AppliedFiles,
		AppliedInputBytesPerSec:  rates.AppliedInputBytes,
		AppliedOutputBytesPerSec: rates.AppliedOutputBytes,
	}
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func clamp(v, max int64) int64 {
	if v > max {
		return max
	}
	return v
}

func clampInt(v, max int) int {
	if v > max {
		return max
	}
	return v
}
