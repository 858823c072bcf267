package engine

import (
	"context"
	"time"

	"github.com/Ludea/Sparus/config"
	"github.com/Ludea/Sparus/pkg/events"
	"github.com/Ludea/Sparus/pkg/launcher"
	"github.com/sirupsen/logrus"
)

type funcService struct {
	name string
	run  func(ctx context.Context) error
}

func (s funcService) Name() string                  { return s.name }
func (s funcService) Run(ctx context.Context) error { return s.run(ctx) }

// NewService wraps a function as a Service.
func NewService(name string, run func(ctx context.Context) error) Service {
	return funcService{name: name, run: run}
}

// ArtifactService serves the plugins directory on loopback.
func ArtifactService(l *launcher.Launcher) Service {
	return NewService("artifact-server", l.ServeArtifacts)
}

// PluginSyncService runs one plugin sync session at startup. Connection
// failures are absorbed by the sync client.
func PluginSyncService(l *launcher.Launcher) Service {
	return NewService("plugin-sync", l.SyncPlugins)
}

// ConfigWatchService reloads the configuration on change, swaps it into
// the launcher and announces it on sparus://config-reload.
func ConfigWatchService(path string, l *launcher.Launcher, bus events.Emitter, logger *logrus.Entry) Service {
	return NewService("config-watcher", func(ctx context.Context) error {
		w, err := config.NewWatcher(path, 200*time.Millisecond, logger, func(cfg *config.Config) {
			l.SetConfig(cfg)
			bus.Emit(events.ConfigReload, map[string]string{"config_file": cfg.Path()})
		})
		if err != nil {
			return err
		}
		w.Start(ctx)
		return nil
	})
}
