package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/marketstall/api/internal/platform/config"
	"github.com/marketstall/api/internal/platform/observability"
	"github.com/marketstall/api/internal/repositories"
	"github.com/marketstall/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders  services.OrderService
	Refunds services.RefundService
	Queries services.QueryService
}

// Deps carries the externally constructed collaborators the container wires
// into services. Inventory defaults to the registry's stock repository when
// left nil; Payments and Events are required.
type Deps struct {
	Registry  repositories.Registry
	Inventory services.InventoryAdapter
	Payments  services.PaymentRefunder
	Events    services.LifecycleEventPublisher
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries and stub adapters.
func NewContainer(ctx context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, _ config.Config, deps Deps) (Services, error) {
	reg := deps.Registry

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	inventory := deps.Inventory
	if inventory == nil {
		inventory = reg.Stocks()
	}

	logger := serviceLogger(deps.Logger)

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Inventory:  inventory,
		UnitOfWork: reg,
		Clock:      clock,
		Events:     deps.Events,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	refundSvc, err := services.NewRefundService(services.RefundServiceDeps{
		Orders:     reg.Orders(),
		Refunds:    reg.Refunds(),
		Inventory:  inventory,
		Payments:   deps.Payments,
		UnitOfWork: reg,
		Clock:      clock,
		Events:     deps.Events,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build refund service: %w", err)
	}

	querySvc, err := services.NewQueryService(services.QueryServiceDeps{
		Orders:  reg.Orders(),
		Refunds: reg.Refunds(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build query service: %w", err)
	}

	return Services{
		Orders:  orderSvc,
		Refunds: refundSvc,
		Queries: querySvc,
	}, nil
}

// serviceLogger adapts the zap logger to the structured event callback the
// services expect. The request-scoped logger from the context wins when
// middleware injected one.
func serviceLogger(fallback *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := observability.FromContextOr(ctx, fallback)
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}
