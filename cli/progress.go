package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Ludea/Sparus/pkg/events"
	updprogress "github.com/Ludea/Sparus/pkg/updater/progress"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SnapshotMsg carries a progress snapshot into the update view.
type SnapshotMsg updprogress.DownloadInfos

// DoneMsg ends the update view.
type DoneMsg struct{ Err error }

// UpdateModel renders a running workspace update.
type UpdateModel struct {
	title    string
	bar      progress.Model
	snapshot updprogress.DownloadInfos
	started  time.Time
	done     bool
	err      error
}

// NewUpdateModel creates the view for an update into title.
func NewUpdateModel(title string) UpdateModel {
	return UpdateModel{
		title:   title,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		started: time.Now(),
	}
}

func (m UpdateModel) Init() tea.Cmd {
	return nil
}

func (m UpdateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SnapshotMsg:
		m.snapshot = updprogress.DownloadInfos(msg)
		return m, nil
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.done = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		if w := msg.Width - 4; w > 10 && w < 80 {
			m.bar.Width = w
		}
	}
	return m, nil
}

// Fraction is the share of package output already applied.
func (m UpdateModel) Fraction() float64 {
	s := m.snapshot
	if s.AppliedOutputBytesEnd > 0 {
		return clamp(float64(s.AppliedOutputBytesStart) / float64(s.AppliedOutputBytesEnd))
	}
	if s.PackagesEnd > 0 {
		return clamp(float64(s.PackagesStart) / float64(s.PackagesEnd))
	}
	if m.done && m.err == nil {
		return 1
	}
	return 0
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

var (
	viewTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	viewMuted = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	viewFail  = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
)

func (m UpdateModel) View() string {
	s := m.snapshot
	var b strings.Builder
	b.WriteString(viewTitle.Render("Updating "+m.title) + "\n\n")
	b.WriteString(m.bar.ViewAs(m.Fraction()) + "\n\n")
	b.WriteString(fmt.Sprintf("Packages   %d/%d\n", s.PackagesStart, s.PackagesEnd))
	b.WriteString(fmt.Sprintf("Download   %s / %s  %s/s\n",
		humanize.IBytes(uint64(s.DownloadedBytesStart)),
		humanize.IBytes(uint64(s.DownloadedBytesEnd)),
		humanize.IBytes(uint64(s.DownloadedBytesPerSec))))
	b.WriteString(fmt.Sprintf("Applied    %d/%d files  %s written\n",
		s.AppliedFilesStart, s.AppliedFilesEnd,
		humanize.IBytes(uint64(s.AppliedOutputBytesStart))))
	if s.FailedFiles > 0 {
		b.WriteString(viewFail.Render(fmt.Sprintf("Failed     %d files", s.FailedFiles)) + "\n")
	}
	b.WriteString(viewMuted.Render("Elapsed "+time.Since(m.started).Round(time.Second).String()) + "\n")
	return b.String()
}

// RunUpdateView renders progress for work on out until it returns.
// Quitting the view cancels the context passed to work.
func RunUpdateView(ctx context.Context, out io.Writer, title string, work func(context.Context, events.Emitter) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewUpdateModel(title), tea.WithOutput(out), tea.WithContext(ctx))
	emitter := events.EmitterFunc(func(name string, payload interface{}) {
		if snap, ok := payload.(updprogress.DownloadInfos); ok && name == events.DownloadInfos {
			p.Send(SnapshotMsg(snap))
		}
	})

	result := make(chan error, 1)
	go func() {
		err := work(ctx, emitter)
		result <- err
		p.Send(DoneMsg{Err: err})
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		<-result
		return err
	}
	cancel()
	return <-result
}

// LogProgress returns an emitter that logs snapshots, for non-interactive
// output.
func LogProgress(logger *logrus.Entry) events.Emitter {
	return events.EmitterFunc(func(name string, payload interface{}) {
		snap, ok := payload.(updprogress.DownloadInfos)
		if !ok || name != events.DownloadInfos {
			return
		}
		logger.WithFields(logrus.Fields{
			"packages":   fmt.Sprintf("%d/%d", snap.PackagesStart, snap.PackagesEnd),
			"downloaded": humanize.IBytes(uint64(snap.DownloadedBytesStart)),
			"applied":    fmt.Sprintf("%d/%d", snap.AppliedFilesStart, snap.AppliedFilesEnd),
			"failed":     snap.FailedFiles,
		}).Info("Update progress")
	})
}
