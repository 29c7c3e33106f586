package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/cache"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/config"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/export"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/handler"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/logger"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/metrics"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/notify"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/repository"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/scheduler"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	/**********************************************
	 * 加载配置
	 **********************************************/
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法加载配置文件: %v\n", err)
		os.Exit(1)
	}

	/**********************************************
	 * 创建 logger
	 **********************************************/
	log, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法创建 logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	/**********************************************
	 * 连接数据库
	 **********************************************/
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Error("无法创建数据库连接池", zap.Error(err))
		return
	}
	defer dbpool.Close()

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	// sql.Open 只是创建数据库连接池对象，并不会立即连接到数据库，因此需要显式地 ping 一下
	if err := dbpool.PingContext(ctx); err != nil {
		log.Error("无法连接到数据库", zap.Error(err))
		return
	}

	/**********************************************
	 * 创建 repository
	 **********************************************/
	repo := repository.NewRepository(cfg, dbpool)

	// 上次进程退出时仍在运行的任务已经无法恢复
	interrupted, err := repo.MarkInterruptedRuns()
	if err != nil {
		log.Error("无法标记中断的排班任务", zap.Error(err))
		return
	}
	if interrupted > 0 {
		log.Warn("已将中断的排班任务标记为失败", zap.Int64("count", interrupted))
	}

	/**********************************************
	 * 连接 rabbitmq
	 **********************************************/
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		log.Error("无法连接到 rabbitmq", zap.Error(err))
		return
	}
	defer conn.Close()

	// 建立通道
	ch, err := conn.Channel()
	if err != nil {
		log.Error("无法建立通道", zap.Error(err))
		return
	}
	defer ch.Close()

	// 声明队列
	_, err = notify.DeclareQueue(ch, cfg.RabbitMQ.Queue)
	if err != nil {
		log.Error("无法声明队列", zap.Error(err))
		return
	}

	publisher := notify.NewPublisher(ch, cfg.RabbitMQ.Queue, time.Duration(cfg.RabbitMQ.PublishTimeout)*time.Second)

	/**********************************************
	 * 连接 redis
	 **********************************************/
	rdb, err := cache.NewRedis(cfg)
	if err != nil {
		log.Error("无法连接到 redis", zap.Error(err))
		return
	}
	defer rdb.Close()

	progressStore := cache.NewProgressStore(
		rdb,
		time.Duration(cfg.Engine.ProgressTTL)*time.Second,
		time.Duration(cfg.Redis.OperationExpiration)*time.Second,
	)

	/**********************************************
	 * 创建排班任务注册表
	 **********************************************/
	m := metrics.New()

	registry := scheduler.NewRegistry(scheduler.RegistryConfig{
		MaxConcurrentRuns: cfg.Engine.MaxConcurrentRuns,
		Workers:           cfg.Engine.Workers,
		DefaultTimeBudget: cfg.DefaultTimeBudget(),
		Retention:         time.Duration(cfg.Engine.TaskRetention) * time.Second,
		Logger:            log.Named("scheduler"),
		Recorder:          m,
		OnProgress: func(progress domain.RunProgress) {
			if err := progressStore.Save(progress); err != nil {
				log.Warn("无法保存排班进度", zap.String("runID", progress.RunID), zap.Error(err))
			}
		},
		OnSubmit: func(_ context.Context, run domain.Run) error {
			return repo.InsertRun(&run)
		},
		OnComplete: []scheduler.Hook{
			// 持久化结果
			func(_ context.Context, run domain.Run) error {
				return repo.UpdateRunResult(&run)
			},
			// 最终进度
			func(_ context.Context, run domain.Run) error {
				if run.Progress == nil {
					return nil
				}
				return progressStore.Save(*run.Progress)
			},
			// 邮件通知发起人
			func(_ context.Context, run domain.Run) error {
				requester, err := repo.GetProfessorByID(run.RequestedBy)
				if err != nil {
					return err
				}
				return publisher.PublishRunFinished(requester.Email, requester.FullName, run)
			},
		},
	})

	/**********************************************
	 * 创建 handler
	 **********************************************/
	handler, err := handler.NewHandler(cfg, log.Named("http"), handler.Dependencies{
		Store:    repo,
		Runner:   registry,
		Progress: progressStore,
		Exporter: export.NewPDFExporter(cfg.Export.FontPath),
		Metrics:  m,
	})
	if err != nil {
		log.Error("无法创建 handler", zap.Error(err))
		return
	}
	handler.RegisterRoutes()

	/**********************************************
	 * 启动 HTTP 服务器
	 **********************************************/
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      handler.Mux,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		ErrorLog:     zap.NewStdLog(log),
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("正在启动服务器...", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("无法启动服务器", zap.Error(err))
			return
		}
	}()

	<-quit
	log.Info("正在关闭服务器...")

	ctx, cancel = context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("关闭服务器失败", zap.Error(err))
	}

	// 取消所有运行中的排班任务，结束回调会将它们标记为 cancelled
	if err := registry.Shutdown(ctx); err != nil {
		log.Error("等待排班任务结束超时", zap.Error(err))
	}
	log.Info("服务器已成功关闭")
}
