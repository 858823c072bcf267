// Package engine runs the long-lived services of `sparus serve`.
package engine

import (
	"context"
	"sync"

	"github.com/Ludea/Sparus/pkg/events"
	"github.com/Ludea/Sparus/pkg/launcher"
	"github.com/sirupsen/logrus"
)

// Service is a background task run for the life of the daemon.
type Service interface {
	Name() string
	Run(ctx context.Context) error
}

// Engine manages and runs all services.
type Engine struct {
	launcher *launcher.Launcher
	bus      *events.Bus
	services []Service
	logger   *logrus.Entry
}

// New creates a new Engine instance.
func New(l *launcher.Launcher, bus *events.Bus, logger *logrus.Entry) *Engine {
	return &Engine{
		launcher: l,
		bus:      bus,
		logger:   logger,
	}
}

// Register adds a service to the engine.
func (e *Engine) Register(s Service) {
	e.services = append(e.services, s)
}

// Start runs all services and blocks until they have all returned. A
// failing service is logged and does not stop the others.
func (e *Engine) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, s := range e.services {
		wg.Add(1)
		go func(svc Service) {
			defer wg.Done()
			e.logger.WithField("service", svc.Name()).Info("Starting service")
			if err := svc.Run(ctx); err != nil {
				e.logger.WithField("service", svc.Name()).WithError(err).Error("Service failed")
				return
			}
			e.logger.WithField("service", svc.Name()).Debug("Service stopped")
		}(s)
	}
	wg.Wait()
}

// Launcher returns the core facade the services share.
func (e *Engine) Launcher() *launcher.Launcher {
	return e.launcher
}

// Bus returns the event bus fanned out to shell listeners.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}
