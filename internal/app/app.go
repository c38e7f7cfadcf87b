package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizo/internal/config"
	"quizo/internal/controller"
	"quizo/internal/middleware"
	"quizo/internal/quiz"
	"quizo/internal/repository"
	"quizo/internal/service"
	"quizo/pkg/configwatcher"
	"quizo/pkg/database"
	"quizo/pkg/logger"
	"quizo/pkg/monitoring"
	"quizo/pkg/security"
	"quizo/pkg/tracing"

	"github.com/gin-gonic/gin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	Quiz   *service.QuizService
	Store  repository.AttemptStore

	tracer          *sdktrace.TracerProvider
	ctx             context.Context
	cancel          context.CancelFunc
	configCallbacks []func(*config.Config)
}

type controllers struct {
	quiz   *controller.QuizController
	health *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// OpenStore 按配置的驱动打开作答记录存储
func OpenStore(cfg *config.StoreConfig) (repository.AttemptStore, error) {
	switch cfg.Driver {
	case config.StoreSQLite:
		sqlDB, err := database.InitSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return repository.NewSQLiteAttemptRepository(sqlDB), nil
	case config.StoreMySQL:
		db, err := database.InitDB(&cfg.MySQL)
		if err != nil {
			return nil, fmt.Errorf("open mysql store: %w", err)
		}
		return repository.NewAttemptRepository(db), nil
	case config.StoreRedis:
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return repository.NewRedisAttemptRepository(rdb, cfg.Redis.Stream), nil
	case config.StoreMemory:
		return repository.NewMemoryAttemptRepository(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// NewQuiz 加载题库并创建答题服务，Web 服务与终端客户端共用
func NewQuiz(cfg *config.Config, store repository.AttemptStore, log *zap.Logger) (*service.QuizService, error) {
	questions := quiz.LoadQuestions(cfg.Quiz.QuestionsFile, log)
	if cfg.Quiz.Shuffle {
		questions = quiz.Shuffle(questions, rand.New(rand.NewSource(time.Now().UnixNano())))
	}

	session, err := quiz.NewSession(questions, cfg.Quiz.CountdownSeconds)
	if err != nil {
		return nil, err
	}

	return service.NewQuizService(session, store, log, service.QuizOptions{
		TickInterval:    cfg.Quiz.TickInterval,
		WriteTimeout:    cfg.Store.WriteTimeout,
		PauseOnComplete: cfg.Quiz.PauseOnComplete,
		StoreDriver:     cfg.Store.Driver,
	}), nil
}

func (a *App) initControllers() *controllers {
	return &controllers{
		quiz:   controller.NewQuizController(a.Quiz),
		health: controller.NewHealthController(a.Quiz, a.Config.Store.Driver),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger.Log))
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(a.ctx, cfg.RateLimit))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// reloadCountdown 只有倒计时支持热更新，其余配置需要重启
func (a *App) reloadCountdown(newCfg *config.Config) {
	if newCfg.Quiz.CountdownSeconds == a.Config.Quiz.CountdownSeconds {
		return
	}
	a.Quiz.SetCountdown(newCfg.Quiz.CountdownSeconds)
	a.Config.Quiz.CountdownSeconds = newCfg.Quiz.CountdownSeconds
}

func (a *App) notifyConfig(newCfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(newCfg)
	}
}

// startConfigWatcher 配置文件变更时通知已注册的回调
func (a *App) startConfigWatcher() {
	if a.Config.ConfigFile == "" {
		return
	}
	go func() {
		err := configwatcher.WatchConfig(a.ctx, a.Config.ConfigFile, logger.Log, a.notifyConfig)
		if err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()
}

func NewApp(cfg *config.Config) (*App, error) {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	gin.SetMode(cfg.Server.Mode)

	store, err := OpenStore(&cfg.Store)
	if err != nil {
		logger.Log.Error("Failed to initialize attempt store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
		return nil, err
	}

	quizService, err := NewQuiz(cfg, store, logger.Log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config: cfg,
		Quiz:   quizService,
		Store:  store,
		ctx:    ctx,
		cancel: cancel,
	}

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Error("Failed to initialize tracing", zap.Error(err))
		} else {
			app.tracer = tp
		}
	}

	router := gin.New()
	app.Router = router
	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, app.initControllers())

	app.RegisterConfigCallback(app.reloadCountdown)
	app.startConfigWatcher()

	return app, nil
}

func (a *App) Run() error {
	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.Quiz.Start()

	errCh := make(chan error, 1)
	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case <-quit:
	case runErr = <-errCh:
		logger.Log.Error("Server stopped unexpectedly", zap.Error(runErr))
	}
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	a.Shutdown(ctx)

	logger.Log.Info("Server exiting")
	return runErr
}

// Shutdown 停止倒计时，等待未完成的写入后关闭存储
func (a *App) Shutdown(ctx context.Context) {
	a.cancel()

	if err := a.Quiz.Stop(ctx); err != nil {
		logger.Log.Warn("Pending attempt writes abandoned", zap.Error(err))
	}
	if err := a.Store.Close(); err != nil {
		logger.Log.Error("Failed to close attempt store", zap.Error(err))
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	_ = logger.Log.Sync()
}
