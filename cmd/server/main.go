package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/mbeoliero/kit/log"

	"github.com/readowl/realtime/internal/config"
	"github.com/readowl/realtime/internal/dispatcher"
	"github.com/readowl/realtime/internal/feed"
	"github.com/readowl/realtime/internal/gateway"
	"github.com/readowl/realtime/internal/handler"
	"github.com/readowl/realtime/internal/repository"
	"github.com/readowl/realtime/internal/router"
	"github.com/readowl/realtime/internal/service"
	"github.com/readowl/realtime/internal/unread"
	"github.com/readowl/realtime/pkg/constant"
	"github.com/readowl/realtime/pkg/idgen"
)

func main() {
	ctx := context.TODO()

	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		panic(err)
	}

	log.CtxInfo(ctx, "config loaded: mode=%s", cfg.Server.Mode)

	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)
	log.CtxInfo(ctx, "redis key prefix: %s", constant.GetRedisKeyPrefix())

	repos, err := repository.NewRepositories(cfg)
	if err != nil {
		log.CtxError(ctx, "failed to initialize repositories: %v", err)
		panic(err)
	}
	defer repos.Close()

	if err := repos.CheckConnection(ctx); err != nil {
		log.CtxError(ctx, "database connection check failed: %v", err)
		panic(err)
	}
	log.CtxInfo(ctx, "database connection established")

	idGen, err := idgen.NewSonyflakeGenerator(cfg.Server.MachineId)
	if err != nil {
		log.CtxError(ctx, "failed to initialize id generator: %v", err)
		panic(err)
	}

	// Core engines
	unreadEngine := unread.NewEngine(repos.Message, repos.ReadPosition, repos.Group, repos.Conversation,
		repos.Redis, cfg.Feed.SummaryCacheTTL)
	aggregator := feed.NewAggregator(repos.Activity, repos.Shelf, idGen,
		cfg.Feed.DefaultPageSize, cfg.Feed.MaxPageSize)

	// WebSocket gateway
	accessGateway := repository.NewAccessGateway(repos.Conversation, repos.Group)
	wsServer := gateway.NewWsServer(cfg, repos.Redis, accessGateway, unreadEngine)

	// Event dispatcher drives the gateway's room router
	eventDispatcher := dispatcher.NewDispatcher(wsServer.Router(), aggregator, unreadEngine,
		repos.Shelf, repos.Group, repos.Conversation)

	msgService := service.NewMessageService(repos, idGen)
	msgService.SetDispatcher(eventDispatcher)

	wsServer.Run(ctx)
	log.CtxInfo(ctx, "websocket server started")

	handlers := &router.Handlers{
		Message: handler.NewMessageHandler(msgService),
		Unread:  handler.NewUnreadHandler(unreadEngine),
		Feed:    handler.NewFeedHandler(aggregator, eventDispatcher),
	}

	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
	)

	router.SetupRouter(h, handlers, wsServer)

	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.HTTPPort)

	go func() {
		h.Spin()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.CtxInfo(ctx, "shutting down server...")

	if err := h.Shutdown(ctx); err != nil {
		log.CtxError(ctx, "server shutdown error: %v", err)
	}

	log.CtxInfo(ctx, "server stopped")
}
