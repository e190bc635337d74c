package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/3Eeeecho/go-stackdash/internal/config"
	"github.com/3Eeeecho/go-stackdash/internal/handlers"
	"github.com/3Eeeecho/go-stackdash/internal/models"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/cache"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/ipfscluster"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/logger"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/provision"
	"github.com/3Eeeecho/go-stackdash/internal/repositories"
	"github.com/3Eeeecho/go-stackdash/internal/router"
	"github.com/3Eeeecho/go-stackdash/internal/services"
	"github.com/3Eeeecho/go-stackdash/internal/services/admin"
	"github.com/3Eeeecho/go-stackdash/internal/services/cluster"
	"github.com/3Eeeecho/go-stackdash/internal/services/deploy"
	"github.com/3Eeeecho/go-stackdash/internal/services/explorer"
	"github.com/3Eeeecho/go-stackdash/internal/services/quota"
	"github.com/3Eeeecho/go-stackdash/internal/setup"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	db          *gorm.DB
	redisClient *redis.Client
}

// NewServer 负责构建所有依赖
func NewServer(cfg *config.Config) (*Server, error) {
	// 初始化数据库连接
	mysqlDB, err := setup.InitMySQL(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MySQL: %w", err)
	}

	// 初始化 Redis 连接
	redisClient, err := setup.InitRedis(context.Background(), &cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	ss, err := setup.InitStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	//  初始化 Repositories
	userRepo := repositories.NewUserRepository(mysqlDB)
	quotaRepo := repositories.NewQuotaRepository(mysqlDB)
	fileRepo := repositories.NewFileRepository(mysqlDB)
	resourceRepo := repositories.NewResourceRepository(mysqlDB)
	tm := services.NewTransactionManager(mysqlDB)

	//  初始化 Services
	quotaService := quota.NewService(userRepo, quotaRepo, fileRepo, tm, models.NewTierLimits(cfg.Quota.ProTierBytes))
	authService := admin.NewAuthService(userRepo, cfg.JWT)
	userService := admin.NewUserService(userRepo)
	fileService := explorer.NewFileService(fileRepo, quotaService, ss)
	deployService := deploy.NewService(resourceRepo, provision.NewClient(cfg.Provisioning))
	clusterService := cluster.NewService(
		ipfscluster.NewClient(cfg.IPFSCluster),
		fileRepo,
		cache.NewRedisCache(redisClient, "stackdash"),
		cfg.IPFSCluster.CacheTTL,
	)

	if err := handlers.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	// 初始化 Gin 引擎和注册路由
	engine := router.InitRouter(router.Handlers{
		Auth:     handlers.NewAuthHandler(authService),
		User:     handlers.NewUserHandler(userService),
		Storage:  handlers.NewStorageHandler(quotaService),
		File:     handlers.NewFileHandler(fileService),
		Resource: handlers.NewResourceHandler(deployService),
		Cluster:  handlers.NewClusterHandler(clusterService),
		Admin:    handlers.NewAdminHandler(quotaService),
	}, cfg)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: engine,
	}

	return &Server{
		router:      engine,
		httpServer:  httpServer,
		db:          mysqlDB,
		redisClient: redisClient,
	}, nil
}

// Run 启动服务器，并处理优雅关机
func (s *Server) Run(ctx context.Context, stopChan chan os.Signal) {
	defer setup.CloseMySQLDB(s.db)
	defer setup.CloseRedis(s.redisClient)

	// 启动 HTTP 服务器
	go func() {
		logger.Info("Server is running", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// 等待停止信号
	select {
	case <-stopChan:
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	// 优雅关机，正在进行的部署 goroutine 不受影响，只等待 HTTP 请求完成
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return
	}
	logger.Info("Server exited gracefully")
}
