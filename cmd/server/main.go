// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sme-plug-go/internal/citation"
	"sme-plug-go/internal/config"
	"sme-plug-go/internal/guardrail"
	"sme-plug-go/internal/handler"
	"sme-plug-go/internal/middleware"
	"sme-plug-go/internal/persona"
	"sme-plug-go/internal/pipeline"
	"sme-plug-go/internal/repository"
	"sme-plug-go/internal/scoring"
	"sme-plug-go/internal/service"
	"sme-plug-go/pkg/database"
	"sme-plug-go/pkg/embedding"
	"sme-plug-go/pkg/es"
	"sme-plug-go/pkg/kafka"
	"sme-plug-go/pkg/llm"
	"sme-plug-go/pkg/log"
	"sme-plug-go/pkg/storage"
	"sme-plug-go/pkg/token"
	"sme-plug-go/pkg/tracing"
)

func main() {
	configPath := "./configs/config.yaml"
	if p := os.Getenv("SMEPLUG_CONFIG"); p != "" {
		configPath = p
	}

	// 1. 初始化配置
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	shutdownTracing, err := tracing.Init(cfg.Tracing)
	if err != nil {
		log.Fatal("初始化追踪失败", err)
	}

	// 3. 初始化存储与外部依赖
	auditRepo := initAuditRepository(cfg.Audit, cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	publisher := kafka.NewPublisher(cfg.Kafka)

	// 4. 初始化 Repository
	personaStateRepo := repository.NewPersonaStateRepository(database.RDB)

	// 5. 初始化流水线组件
	registry, err := persona.NewRegistry(cfg.Personas.Path, cfg.Personas.DefaultID)
	if err != nil {
		log.Fatal("加载人设失败", err)
	}
	policy, err := guardrail.DefaultPolicy()
	if err != nil {
		log.Fatal("加载护栏策略失败", err)
	}
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	verifier := citation.NewVerifier(citation.DefaultPartialPenalty)

	deps := pipeline.Deps{
		Guardrails: guardrail.NewEngine(policy, cfg.Pipeline.HallucinationThreshold),
		Retriever:  service.NewRetrievalService(embeddingClient, es.ESClient, cfg.Elasticsearch.IndexName),
		LLM:        llmClient,
		Verifier:   verifier,
		Scorer:     scoring.NewScorer(),
		Audit:      auditRepo,
		Pipeline:   cfg.Pipeline,
		Prompt:     cfg.LLM.Prompt,
		Generation: llm.DefaultParams(cfg.LLM.Generation),
	}
	if publisher != nil {
		deps.Events = publisher
		defer publisher.Close()
	}
	orchestrator := pipeline.NewOrchestrator(deps)
	comparison := pipeline.NewComparisonRunner(orchestrator, llmClient, verifier, cfg.Pipeline, cfg.LLM.Prompt, cfg.LLM.Generation)

	// 6. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	personaService := service.NewPersonaService(registry, personaStateRepo, storage.NewCorpusLister(storage.MinioClient, cfg.MinIO))
	queryService := service.NewQueryService(personaService, orchestrator, comparison)
	auditService := service.NewAuditService(auditRepo)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok", "data": nil})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8. 注册路由
	queryHandler := handler.NewQueryHandler(queryService)
	personaHandler := handler.NewPersonaHandler(personaService)
	auditHandler := handler.NewAuditHandler(auditService)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager, cfg.Auth.APIKeys))
	{
		apiV1.POST("/query", queryHandler.Query)
		apiV1.GET("/query/stream", queryHandler.Stream)

		apiV1.GET("/personas", personaHandler.List)
		apiV1.PUT("/personas/switch", personaHandler.Switch)
		apiV1.GET("/plugs", personaHandler.List)
		apiV1.GET("/plugs/:id", personaHandler.Get)

		apiV1.GET("/audit", auditHandler.List)
		apiV1.GET("/audit/:queryId", auditHandler.Get)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Warnf("关闭追踪失败: %v", err)
	}
	if database.KV != nil {
		if err := database.KV.Close(); err != nil {
			log.Warnf("关闭 badger 失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}

// initAuditRepository 根据配置选择审计存储后端。
func initAuditRepository(cfg config.AuditConfig, dsn string) repository.AuditRepository {
	switch cfg.Backend {
	case "mysql":
		database.InitMySQL(dsn)
		return repository.NewAuditRepository(database.DB)
	case "badger", "":
		database.InitBadger(cfg.BadgerPath, cfg.InMemory)
		return repository.NewBadgerAuditRepository(database.KV)
	default:
		log.Fatalf("未知的审计存储后端: %s", cfg.Backend)
		return nil
	}
}
