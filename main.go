package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"groupchat-service/internal/auth"
	"groupchat-service/internal/clients"
	"groupchat-service/internal/config"
	"groupchat-service/internal/db"
	"groupchat-service/internal/handlers"
	"groupchat-service/internal/middleware"
	"groupchat-service/internal/observability"
	"groupchat-service/internal/presence"
	"groupchat-service/internal/rabbitmq"
	"groupchat-service/internal/repositories"
	"groupchat-service/internal/telemetry"
	"groupchat-service/internal/ws"
)

const serviceName = "groupchat-service"

func main() {
	cfg := config.Load()
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer shutdownTracing(ctx)

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	if publisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
		log.Printf("ws event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(publisher)
		defer publisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer auditPublisher.Close()
	audit := telemetry.NewAuditEmitter(auditPublisher, cfg.AuditRoutingKey, serviceName, cfg.Environment)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	membership := clients.NewMembershipClient(cfg.MembershipBaseURL, cfg.UpstreamTimeout)
	messageRepo := repositories.NewMessageRepo(database)
	tracker := presence.NewTracker(cfg.RedisAddr)

	rooms := ws.NewRoomManager(membership, messageRepo, cfg.UpstreamTimeout, cfg.DefaultBacklogLimit, cfg.MaxBacklogLimit)
	registry := ws.NewRegistry(rooms, tracker)
	broadcaster := ws.NewBroadcaster(rooms, registry, messageRepo, cfg.MaxMessageLen, cfg.UpstreamTimeout)
	socketHandler := ws.NewWebSocketHandler(registry, rooms, broadcaster, verifier)

	go registry.Run(ctx, cfg.IdleTimeout/3, cfg.IdleTimeout)

	historyHandler := handlers.NewHistoryHandler(messageRepo, membership, audit, cfg.DefaultBacklogLimit, cfg.MaxBacklogLimit)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/groups/:group_id/messages", authMiddleware, historyHandler.GetGroupMessages)
	router.GET("/ws", socketHandler.Handle)
	router.GET("/healthz", handlers.Healthz(database.Ping))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
