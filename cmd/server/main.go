// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fashion-curation-go/internal/config"
	"fashion-curation-go/internal/handler"
	"fashion-curation-go/internal/middleware"
	"fashion-curation-go/internal/pipeline"
	"fashion-curation-go/internal/repository"
	"fashion-curation-go/internal/search"
	"fashion-curation-go/internal/service"
	"fashion-curation-go/pkg/database"
	"fashion-curation-go/pkg/embedding"
	"fashion-curation-go/pkg/es"
	"fashion-curation-go/pkg/kafka"
	"fashion-curation-go/pkg/log"
	"fashion-curation-go/pkg/storage"
	"fashion-curation-go/pkg/token"
	"fashion-curation-go/pkg/vlm"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 与对象存储
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	blobStore := storage.NewBlobStore(cfg.MinIO, time.Duration(cfg.Pipeline.DownloadTimeoutSecs)*time.Second)
	if cfg.Store.Backend == repository.BackendCloud {
		if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
			log.Fatalf("es 初始化失败 %s", err)
		}
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	sourceRepo := repository.NewSourceRepository(database.DB)
	docRepo := repository.NewDocumentRepository(cfg.Store, database.DB, cfg.Elasticsearch)
	conversationRepo := repository.NewConversationRepository(database.RDB)
	presignCache := repository.NewPresignCache(database.RDB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TokenExpireHours)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	vlmClient := vlm.NewClient(cfg.VLM)
	queryBuilder := search.NewVectorQueryBuilder(cfg.VectorSearch, cfg.Embedding.Dimensions)
	searchService := service.NewSearchService(embeddingClient, docRepo, queryBuilder, blobStore, presignCache)
	recommendService := service.NewRecommendService(searchService, vlmClient, conversationRepo)

	// 6. 初始化加工管道编排器
	downloader := pipeline.NewDownloader(blobStore)
	orchestrator := pipeline.NewOrchestrator(
		sourceRepo,
		docRepo,
		downloader,
		vlmClient,
		embeddingClient,
		cfg.Pipeline,
	)

	// 7. 启动后台 Kafka 消费者
	go kafka.StartConsumer(cfg.Kafka, orchestrator)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// Search 路由组
		searchGroup := apiV1.Group("/search")
		searchGroup.Use(middleware.AuthMiddleware(jwtManager))
		{
			searchGroup.GET("", handler.NewSearchHandler(searchService).Search)
		}

		// Recommend 路由 (WebSocket)
		recommendHandler := handler.NewRecommendHandler(recommendService, jwtManager)
		recommendGroup := apiV1.Group("/recommend")
		{
			recommendGroup.GET("/websocket-token", recommendHandler.GetWebsocketStopToken)
		}
		r.GET("/recommend/:token", recommendHandler.Handle)

		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin := apiV1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtManager), middleware.AdminAuthMiddleware())
		{
			adminHandler := handler.NewAdminHandler()
			admin.POST("/pipeline/caption", adminHandler.TriggerCaptionPass)
			admin.POST("/pipeline/embedding", adminHandler.TriggerEmbeddingPass)
		}
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

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费者是一个阻塞循环，会随进程退出自然结束。
	log.Info("服务已优雅关闭")
}
