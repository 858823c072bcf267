// Package updater answers version questions about a workspace and the
// repository that feeds it. The update itself lives in the workspace
// subpackage.
package updater

import (
	"context"

	"github.com/Ludea/Sparus/logging"
	"github.com/Ludea/Sparus/pkg/updater/metadata"
	"github.com/Ludea/Sparus/pkg/updater/repository"
	"github.com/Ludea/Sparus/state"
	"github.com/sirupsen/logrus"
)

var log = logging.NewLogger("updater")

// UpdateAvailable reports whether the repository's current version is
// strictly newer than local.
func UpdateAvailable(ctx context.Context, repo repository.Repository, local string) (bool, error) {
	localVersion, err := metadata.ParseVersion(local)
	if err != nil {
		return false, err
	}
	current, err := repo.Current(ctx)
	if err != nil {
		return false, err
	}
	remoteVersion, err := metadata.ParseVersion(current.Version)
	if err != nil {
		return false, err
	}

	available := remoteVersion.GreaterThan(localVersion)
	log.WithFields(logrus.Fields{
		"local":      localVersion.String(),
		"remote":     remoteVersion.String(),
		"repository": repo.URL(),
		"available":  available,
	}).Debug("Checked for update")
	return available, nil
}

// LocalVersion returns the version recorded in the workspace state file,
// falling back to initial when the file is absent or unreadable.
func LocalVersion(workspace, initial string) string {
	st, err := state.Load(workspace)
	if err != nil {
		log.WithError(err).WithField("workspace", workspace).Warn("Falling back to initial version")
		return initial
	}
	if v, ok := st.Version(); ok {
		return v
	}
	return initial
}
