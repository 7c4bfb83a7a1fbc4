package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// DependencyProbe describes one backend connectivity check executed during
// readiness probing.
type DependencyProbe struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// DependencyHealthOption customises the probe-backed health repository.
type DependencyHealthOption func(*dependencyHealthRepository)

// WithProbeTimeout overrides the default timeout applied when a probe omits its own.
func WithProbeTimeout(timeout time.Duration) DependencyHealthOption {
	return func(repo *dependencyHealthRepository) {
		if timeout > 0 {
			repo.defaultTimeout = timeout
		}
	}
}

type dependencyHealthRepository struct {
	probes         []DependencyProbe
	defaultTimeout time.Duration
}

var _ HealthRepository = (*dependencyHealthRepository)(nil)

// NewDependencyHealthRepository constructs a HealthRepository that pings every
// configured dependency concurrently and fails on the first unhealthy one.
func NewDependencyHealthRepository(probes []DependencyProbe, opts ...DependencyHealthOption) (HealthRepository, error) {
	if len(probes) == 0 {
		return nil, errors.New("health repository: at least one dependency probe is required")
	}
	for _, probe := range probes {
		if strings.TrimSpace(probe.Name) == "" {
			return nil, errors.New("health repository: dependency probe missing name")
		}
		if probe.Check == nil {
			return nil, fmt.Errorf("health repository: dependency %s missing check function", probe.Name)
		}
	}

	repo := &dependencyHealthRepository{
		probes:         make([]DependencyProbe, len(probes)),
		defaultTimeout: defaultProbeTimeout,
	}
	copy(repo.probes, probes)

	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

func (r *dependencyHealthRepository) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("health repository: context is required")
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	wg.Add(len(r.probes))
	for _, probe := range r.probes {
		go func(probe DependencyProbe) {
			defer wg.Done()

			timeout := probe.Timeout
			if timeout <= 0 {
				timeout = r.defaultTimeout
			}
			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			if err := probe.Check(probeCtx); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("health: dependency %s: %w", probe.Name, err)
				}
				mu.Unlock()
			}
		}(probe)
	}
	wg.Wait()

	return firstErr
}
