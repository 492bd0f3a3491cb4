package main

import (
	"context"
	"log/slog"
	"os"

	"storefront/config"
	"storefront/internal/delivery"
	"storefront/internal/delivery/http"
	"storefront/internal/delivery/http/middleware"
	"storefront/internal/delivery/http/router/handler"
	"storefront/internal/domain/repository"
	"storefront/internal/domain/service"
	"storefront/internal/infra/alert"
	"storefront/internal/infra/localstore"
	logs "storefront/internal/infra/log"
	"storefront/internal/infra/metrics"
	"storefront/internal/infra/push"
	"storefront/internal/infra/rest"
	"storefront/internal/usecase"
	"storefront/internal/usecase/impl"

	"go.uber.org/fx"
)

type startParams struct {
	fx.In
	fx.Lifecycle

	Config       *config.Config
	Logger       *slog.Logger
	Push         service.PushChannel
	Notification usecase.NotificationUsecase
	Chat         usecase.ChatUsecase
	Deliveries   []delivery.Delivery `group:"deliveries"`
}

func main() {
	fx.New(
		injectInfra(),
		injectRepo(),
		injectService(),
		injectUsecase(),
		injectDelivery(),
		injectMiddleware(),
		injectHandler(),
		fx.Invoke(
			start,
		),
	).Run()
}

func injectInfra() fx.Option {
	return fx.Provide(
		config.New,
		logs.New,
		context.Background,
		metrics.New,
		rest.NewClient,
	)
}

func injectRepo() fx.Option {
	return fx.Options(
		fx.Provide(
			newCacheRepository,
		),
	)
}

func injectService() fx.Option {
	return fx.Options(
		fx.Provide(
			push.NewClient,
			rest.NewNotificationGateway,
			rest.NewChatGateway,
			newAlerter,
		),
	)
}

// newCacheRepository opens the pebble cache and ties its lifetime to the
// fx lifecycle.
func newCacheRepository(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (repository.CacheRepository, error) {
	store, err := localstore.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})

	return store, nil
}

func newAlerter(lc fx.Lifecycle, cfg *config.Config, cache repository.CacheRepository, logger *slog.Logger) service.Alerter {
	alerter := alert.New(cfg, cache, logger)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			alerter.Close()

			return nil
		},
	})

	return alerter
}

func injectUsecase() fx.Option {
	return fx.Options(
		fx.Provide(
			impl.NewNotificationService,
			impl.NewChatService,
		),
	)
}

func injectMiddleware() fx.Option {
	return fx.Options(
		fx.Provide(
			middleware.NewRequestIDMiddleware,
		),
	)
}

func injectHandler() fx.Option {
	return fx.Options(
		fx.Provide(
			handler.NewNotificationHandler,
			handler.NewChatHandler,
			handler.NewSystemHandler,
		),
	)
}

func injectDelivery() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				http.NewServer,
				fx.ResultTags(`group:"deliveries"`),
			),
		),
	)
}

func start(ctx context.Context, params startParams) {
	for _, delivery := range params.Deliveries {
		go func() {
			if err := delivery.Serve(ctx); err != nil {
				slog.Error("Failed to start server", slog.Any("error", err))
				os.Exit(1)
			}
		}()
	}

	params.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			principal := params.Config.Principal
			if err := params.Push.Connect(startCtx, principal.ID, principal.AuthToken); err != nil {
				return err
			}

			params.Notification.Start()
			params.Chat.Start()

			if err := params.Notification.LoadFromServer(startCtx); err != nil {
				params.Logger.Warn("initial notification load failed", slog.Any("error", err))
			}
			if _, err := params.Chat.LoadConversations(startCtx); err != nil {
				params.Logger.Warn("initial conversation listing load failed", slog.Any("error", err))
			}

			return nil
		},
		OnStop: func(context.Context) error {
			params.Chat.Close()
			params.Notification.Close()

			return nil
		},
	})
}
