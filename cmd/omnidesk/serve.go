package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/email"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/telegram"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/vk"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/webchat"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/whatsapp"
	"github.com/omnidesk/omnidesk/internal/config"
	"github.com/omnidesk/omnidesk/internal/conversation"
	"github.com/omnidesk/omnidesk/internal/db"
	"github.com/omnidesk/omnidesk/internal/handlers"
	"github.com/omnidesk/omnidesk/internal/logger"
	"github.com/omnidesk/omnidesk/internal/notify"
	"github.com/omnidesk/omnidesk/internal/pipeline"
	"github.com/omnidesk/omnidesk/internal/realtime"
	"github.com/omnidesk/omnidesk/internal/retry"
	"github.com/omnidesk/omnidesk/internal/server"
	"github.com/omnidesk/omnidesk/internal/webhook"

	"github.com/jackc/pgx/v5/pgxpool"
)

func runServe() {
	app := fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBPool,
			provideTelegramAdapter,
			provideVKAdapter,
			provideWhatsAppAdapter,
			provideWebChatAdapter,
			provideRegistry,
			realtime.NewHub,
			conversation.NewStore,
			webhook.NewDeduplicator,
			provideRetryQueue,
			providePipeline,
			notify.NewDispatcher,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewAuthHandler),
			provideServerHandler(handlers.NewConversationsHandler),
			provideServerHandler(provideWebhooksHandler),
			provideServerHandler(handlers.NewNotifyHandler),
			provideServerHandler(handlers.NewWebChatHandler),
			provideServerHandler(handlers.NewWSHandler),
			provideServer,
		),
		fx.Invoke(
			registerNotifiers,
			startEmailReceiver,
			startRetrySweeper,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	)
	app.Run()
}

// provideServerHandler annotates a handler constructor into the
// server_handlers group the server collects at startup.
func provideServerHandler(fn any) any {
	return fx.Annotate(fn, fx.As(new(server.Handler)), fx.ResultTags(`group:"server_handlers"`))
}

func provideConfig() (config.Config, error) {
	return config.Load(os.Getenv("CONFIG_PATH"))
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBPool(lc fx.Lifecycle, cfg config.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			pool.Close()
			return nil
		},
	})
	log.Info("database connected",
		slog.String("host", cfg.Postgres.Host), slog.String("database", cfg.Postgres.Database))
	return pool, nil
}

func provideTelegramAdapter(cfg config.Config, log *slog.Logger) *telegram.Adapter {
	return telegram.New(cfg.Telegram.BotToken, log)
}

func provideVKAdapter(cfg config.Config, log *slog.Logger) *vk.Adapter {
	return vk.New(cfg.VK.AccessToken, cfg.VK.GroupID, cfg.VK.ConfirmationCode, cfg.VK.Secret, log)
}

func provideWhatsAppAdapter(cfg config.Config, log *slog.Logger) *whatsapp.Adapter {
	return whatsapp.New(cfg.WhatsApp.BridgeURL, cfg.WhatsApp.BridgeToken, log)
}

func provideWebChatAdapter(hub *realtime.Hub, log *slog.Logger) *webchat.Adapter {
	return webchat.New(hub, log)
}

// provideRegistry registers every adapter whose channel is configured. Web
// chat has no external credentials and is always on; the webhook endpoints
// for unregistered channels still parse and ack but cannot send.
func provideRegistry(cfg config.Config, tg *telegram.Adapter, vkAdapter *vk.Adapter,
	wa *whatsapp.Adapter, wc *webchat.Adapter, log *slog.Logger) (*channel.Registry, error) {
	registry := channel.NewRegistry()
	registry.MustRegister(wc)
	if cfg.Telegram.BotToken != "" {
		registry.MustRegister(tg)
	}
	if cfg.VK.AccessToken != "" {
		registry.MustRegister(vkAdapter)
	}
	if cfg.WhatsApp.BridgeURL != "" {
		registry.MustRegister(wa)
	}
	if cfg.Email.FromAddress != "" {
		provider, err := email.NewProvider(cfg.Email)
		if err != nil {
			return nil, err
		}
		registry.MustRegister(email.New(provider, cfg.Email, log))
	}
	log.Info("channel registry ready", slog.Any("sources", registry.Sources()))
	return registry, nil
}

func provideRetryQueue(cfg config.Config, pool *pgxpool.Pool, log *slog.Logger) *retry.Queue {
	return retry.NewQueue(pool, cfg.Retry.MaxAttempts, log)
}

func providePipeline(store *conversation.Store, registry *channel.Registry,
	hub *realtime.Hub, queue *retry.Queue, log *slog.Logger) *pipeline.Pipeline {
	return pipeline.New(store, registry, hub, queue, log)
}

func provideWebhooksHandler(dedup *webhook.Deduplicator, pipe *pipeline.Pipeline,
	tg *telegram.Adapter, vkAdapter *vk.Adapter, wa *whatsapp.Adapter, log *slog.Logger) *handlers.WebhooksHandler {
	return handlers.NewWebhooksHandler(dedup, pipe, tg, vkAdapter, wa, log)
}

type serverParams struct {
	fx.In

	Config   config.Config
	Logger   *slog.Logger
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(p serverParams) *server.Server {
	return server.New(p.Config.Server.Addr, p.Config.Auth.JWTSecret, p.Logger, p.Handlers)
}

func registerNotifiers(cfg config.Config, dispatcher *notify.Dispatcher,
	registry *channel.Registry, pipe *pipeline.Pipeline, store *conversation.Store) {
	dispatcher.Register(notify.NewChannelNotifier(channel.SourceTelegram, registry))
	dispatcher.Register(notify.NewChannelNotifier(channel.SourceVK, registry))
	dispatcher.Register(notify.NewChannelNotifier(channel.SourceWhatsApp, registry))
	dispatcher.Register(notify.NewEmailNotifier(registry, cfg.Email.UnsubscribeFooter))
	dispatcher.Register(notify.NewWebChatNotifier(pipe, store))
}

// startEmailReceiver runs the IMAP watcher when inbound email is enabled.
// Received mail takes the same dedup-then-intake path as platform webhooks.
func startEmailReceiver(lc fx.Lifecycle, cfg config.Config, pipe *pipeline.Pipeline,
	dedup *webhook.Deduplicator, log *slog.Logger) {
	if !cfg.Email.IMAP.Enabled {
		return
	}
	handler := func(ctx context.Context, in channel.Inbound, eventID string) {
		seen, err := dedup.Seen(ctx, in.Source, eventID)
		if err != nil {
			log.Error("email dedup lookup failed", slog.Any("error", err))
			return
		}
		if seen {
			return
		}
		if _, err := pipe.HandleInbound(ctx, in); err != nil {
			log.Error("inbound email processing failed", slog.Any("error", err))
			return
		}
		if err := dedup.Record(ctx, in.Source, eventID, "email", nil); err != nil {
			log.Error("email dedup record failed", slog.Any("error", err))
		}
	}
	receiver := email.NewReceiver(cfg.Email.IMAP, handler, log)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			receiver.Start(ctx)
			return nil
		},
		OnStop: receiver.Stop,
	})
}

func startRetrySweeper(lc fx.Lifecycle, cfg config.Config, queue *retry.Queue,
	pipe *pipeline.Pipeline, log *slog.Logger) {
	sweeper := retry.NewSweeper(queue, pipe, cfg.Retry.SweepIntervalSeconds, log)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sweeper.Start()
		},
		OnStop: sweeper.Stop,
	})
}

func startServer(lc fx.Lifecycle, srv *server.Server, shutdowner fx.Shutdowner, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: srv.Stop,
	})
}
