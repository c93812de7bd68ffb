package health

import (
	"context"
	"sync"
	"time"

	"github.com/Orlik-B/NVR-surveillance/internal/logger"
	"github.com/Orlik-B/NVR-surveillance/internal/service"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a health check
type Check struct {
	Name      string                 `json:"name"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthReport represents the overall health report
type HealthReport struct {
	Status    Status                        `json:"status"`
	Timestamp time.Time                     `json:"timestamp"`
	Uptime    string                        `json:"uptime"`
	Checks    map[string]Check              `json:"checks"`
	Services  map[string]service.StatusInfo `json:"services,omitempty"`
}

// Checker is an interface for health checkers
type Checker interface {
	Name() string
	Check(ctx context.Context) Check
}

// ServiceStatuses is the part of service.Manager the report needs
type ServiceStatuses interface {
	GetAllStatuses() map[string]*service.ServiceStatus
}

// Manager manages health checks
type Manager struct {
	logger    *logger.Logger
	checkers  []Checker
	services  ServiceStatuses
	startTime time.Time
	timeout   time.Duration
	mu        sync.RWMutex
}

// NewManager creates a new health check manager. services may be nil.
func NewManager(log *logger.Logger, services ServiceStatuses) *Manager {
	return &Manager{
		logger:    log,
		checkers:  make([]Checker, 0),
		services:  services,
		startTime: time.Now(),
		timeout:   5 * time.Second,
	}
}

// RegisterChecker registers a health checker
func (m *Manager) RegisterChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// Check performs all health checks
func (m *Manager) Check(ctx context.Context) HealthReport {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	checks := make(map[string]Check, len(checkers))
	overallStatus := StatusHealthy

	for _, checker := range checkers {
		check := checker.Check(ctx)
		checks[check.Name] = check

		if check.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
		} else if check.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	if overallStatus != StatusHealthy {
		m.logger.Debug("Health check not healthy", "status", overallStatus)
	}

	var services map[string]service.StatusInfo
	if m.services != nil {
		all := m.services.GetAllStatuses()
		services = make(map[string]service.StatusInfo, len(all))
		for name, status := range all {
			services[name] = status.Snapshot()
		}
	}

	return HealthReport{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Uptime:    time.Since(m.startTime).Round(time.Second).String(),
		Checks:    checks,
		Services:  services,
	}
}
