package updater

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/state"
)

// Messages reported by CheckIfInstalled.
const (
	MsgNotInstalled  = "Not installed"
	MsgFolderMissing = "folder doesn't exist"
)

// GameExeName returns the file name of an executable at the top level of
// dir. When several qualify the lexically first is returned.
func GameExeName(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", sparuserrors.IO("read", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if entry.Name() == state.DirName || entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Mode().IsRegular() && isExecutable(entry.Name(), info.Mode()) {
			return entry.Name(), nil
		}
	}
	return "", sparuserrors.GameNotInstalled("No game installed").WithDetail("path", dir)
}

// CheckIfInstalled succeeds when dir holds an installed game.
func CheckIfInstalled(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return sparuserrors.GameNotInstalled(MsgFolderMissing).WithDetail("path", dir)
	}
	if _, err := GameExeName(dir); err != nil {
		if sparuserrors.Is(err, sparuserrors.KindIO) {
			return err
		}
		return sparuserrors.GameNotInstalled(MsgNotInstalled).WithDetail("path", dir)
	}
	return nil
}

func isExecutable(name string, mode os.FileMode) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(filepath.Ext(name), ".exe")
	}
	return mode&0o111 != 0
}
