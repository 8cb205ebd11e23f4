package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/meterline/meterline/internal/api"
	v1 "github.com/meterline/meterline/internal/api/v1"
	"github.com/meterline/meterline/internal/config"
	"github.com/meterline/meterline/internal/domain/subscription"
	"github.com/meterline/meterline/internal/domain/usage"
	"github.com/meterline/meterline/internal/logger"
	"github.com/meterline/meterline/internal/postgres"
	"github.com/meterline/meterline/internal/repository"
	"github.com/meterline/meterline/internal/service"
	"github.com/meterline/meterline/internal/types"
)

func init() {
	// Use UTC for the entire application
	time.Local = time.UTC
}

func main() {
	fx.New(
		fx.Provide(
			config.NewConfig,
			newLogger,
			postgres.NewDB,
			repository.NewUsageRepository,
			newSubscriptionTypeRegistry,
			newSubscriptionResolver,
			newUsageService,
			newHandlers,
			api.NewRouter,
		),
		fx.Invoke(startServer),
	).Run()
}

func newLogger(cfg *config.Configuration) (*logger.Logger, error) {
	return logger.NewLogger(cfg.Logging.Level)
}

// newSubscriptionTypeRegistry registers the subscription types this
// deployment serves. The default type implements both usage capabilities so
// every configured group kind can attach to it.
func newSubscriptionTypeRegistry() *subscription.TypeRegistry {
	registry := subscription.NewTypeRegistry()
	registry.Register(&subscription.SubscriptionType{
		ID:   "default",
		Name: "Default",
		Capabilities: []types.SubscriptionCapability{
			types.CapabilityFreeUsage,
			types.CapabilityInitialUsage,
		},
	})
	return registry
}

// newSubscriptionResolver treats any subscription identifier as valid and of
// the default type. Deployments embedding meterline into a billing system
// replace this with a resolver backed by their subscription store.
func newSubscriptionResolver() subscription.Resolver {
	return passthroughResolver{}
}

type passthroughResolver struct{}

func (passthroughResolver) Resolve(ctx context.Context, id string) (*subscription.Subscription, error) {
	return &subscription.Subscription{ID: id, TypeID: "default"}, nil
}

func newUsageService(
	cfg *config.Configuration,
	log *logger.Logger,
	repo usage.Repository,
	resolver subscription.Resolver,
	registry *subscription.TypeRegistry,
) service.UsageService {
	return service.NewUsageService(service.ServiceParams{
		Logger:       log,
		Repo:         repo,
		Groups:       cfg.Usage.Groups,
		Resolver:     resolver,
		TypeRegistry: registry,
		FreeUsage:    service.NewStaticFreeUsageProvider(cfg.Usage.FreeQuantities),
		InitialUsage: service.NewStaticInitialUsageProvider(cfg.Usage.InitialQuantities),
	})
}

func newHandlers(svc service.UsageService, log *logger.Logger) api.Handlers {
	return api.Handlers{
		Usage:  v1.NewUsageHandler(svc, log),
		Health: v1.NewHealthHandler(log),
	}
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	router *gin.Engine,
	log *logger.Logger,
) {
	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting server", "address", cfg.Server.Address)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("shutting down server")
			return server.Shutdown(ctx)
		},
	})
}
