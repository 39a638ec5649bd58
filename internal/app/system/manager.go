package system

import (
	"context"
	"fmt"

	"github.com/taskforge/platform/pkg/logger"
)

// Manager starts registered services in registration order and stops them in
// reverse. A failed start stops the services already running before returning.
type Manager struct {
	services []Service
	log      *logger.Logger
}

// NewManager creates an empty manager.
func NewManager(log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("system")
	}
	return &Manager{log: log}
}

// Register appends a service to the start order.
func (m *Manager) Register(svc Service) {
	m.services = append(m.services, svc)
}

// Start brings every registered service up.
func (m *Manager) Start(ctx context.Context) error {
	for i, svc := range m.services {
		m.log.WithField("service", svc.Name()).Info("starting service")
		if err := svc.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if stopErr := m.services[j].Stop(ctx); stopErr != nil {
					m.log.WithError(stopErr).WithField("service", m.services[j].Name()).
						Error("stop after failed start")
				}
			}
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
	}
	return nil
}

// Stop shuts services down in reverse registration order, collecting the
// first error but stopping everything regardless.
func (m *Manager) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(m.services) - 1; i >= 0; i-- {
		svc := m.services[i]
		m.log.WithField("service", svc.Name()).Info("stopping service")
		if err := svc.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop %s: %w", svc.Name(), err)
		}
	}
	return firstErr
}

// NoopService satisfies Service for components without a lifecycle of their
// own.
type NoopService struct {
	ServiceName string
}

func (s NoopService) Name() string                  { return s.ServiceName }
func (s NoopService) Start(_ context.Context) error { return nil }
func (s NoopService) Stop(_ context.Context) error  { return nil }
