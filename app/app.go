// Package app 负责组件的显式装配与生命周期管理
package app

import (
	"context"
	"fmt"
	"time"

	"maregistry/app/config"
	"maregistry/internal/cluster"
	"maregistry/internal/health"
	"maregistry/internal/registry"
	"maregistry/internal/registry/store"
	"maregistry/pkg/common"
	"maregistry/pkg/scheduler"
	"maregistry/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// App 注册中心应用
// 所有组件在这里显式构造并注入依赖，不使用全局单例
type App struct {
	cfg    *config.BaseConfig
	logger *common.Logger

	service registry.RegistryService
	store   store.RegistryStore
	sched   *scheduler.Scheduler
	checker *health.Checker

	cluster      *cluster.Cluster
	serverHealth *cluster.ServerHealth

	fiberApp       *fiber.App
	snapshotTaskID string
}

// New 创建应用实例
func New() *App {
	return &App{}
}

// LoadConfig 加载配置文件
func (a *App) LoadConfig(path string) error {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// Start 启动应用
// 装配顺序：日志 -> 调度器 -> 状态机 -> 持久化恢复 -> 存活检查 ->
// 集群控制面 -> HTTP服务
func (a *App) Start() error {
	if a.cfg == nil {
		a.cfg = config.NewDefaultConfig()
	}

	logger, err := common.NewLogger(*a.cfg.Logger)
	if err != nil {
		return fmt.Errorf("初始化日志器失败: %w", err)
	}
	a.logger = logger
	common.SetLogger(logger)

	a.sched = scheduler.NewScheduler(&scheduler.SchedulerConfig{
		NodeID: a.cfg.System.NodeId,
	})
	if err := a.sched.Start(); err != nil {
		return err
	}

	a.service = registry.NewMemoryRegistry(
		registry.WithLogger(logger.GetZapLogger("registry")),
	)

	a.setupStore(logger.GetZapLogger("store"))

	a.checker = health.NewChecker(
		a.service,
		a.sched,
		logger.GetZapLogger("health"),
		health.WithInterval(time.Duration(a.cfg.Registry.CheckInterval)*time.Millisecond),
		health.WithTimeout(time.Duration(a.cfg.Registry.NodeTimeout)*time.Millisecond),
	)
	if err := a.checker.Start(); err != nil {
		return err
	}

	if a.cfg.Cluster.Enabled && len(a.cfg.Cluster.ServerList) > 0 {
		a.setupCluster(logger)
	} else if a.cfg.Cluster.Enabled {
		logger.Warn("未配置集群节点列表，使用单节点模式")
	}

	return a.startHTTP(logger.GetZapLogger("fiber"))
}

// setupStore 恢复持久化快照并安排周期保存任务
func (a *App) setupStore(logger *zap.Logger) {
	a.store = store.NewFileStore(a.cfg.Registry.SnapshotPath, logger)

	snapshot, err := a.store.Load()
	if err != nil {
		logger.Error("加载持久化快照失败，以空状态启动", zap.Error(err))
	} else if snapshot != nil {
		a.service.Restore(snapshot)
		logger.Info("从持久化快照恢复完成", zap.Int64("version", snapshot.Version))
	}

	interval := time.Duration(a.cfg.Registry.SnapshotInterval) * time.Second
	task := scheduler.NewIntervalTask(
		"registry-snapshot-save",
		time.Now().Add(interval),
		interval,
		30*time.Second,
		func(ctx context.Context) error {
			return a.store.Save(a.service.Snapshot())
		},
	)

	if err := a.sched.AddTask(task); err != nil {
		logger.Error("添加快照保存任务失败", zap.Error(err))
		return
	}
	a.snapshotTaskID = task.GetID()
}

// setupCluster 装配集群控制面：视图、选举、复制器、检查循环
func (a *App) setupCluster(logger *common.Logger) {
	clusterLogger := logger.GetZapLogger("cluster")

	opts := []cluster.ClusterOption{
		cluster.WithClusterLogger(clusterLogger),
	}
	if a.cfg.Network.LocalIp != "" {
		localIP := a.cfg.Network.LocalIp
		opts = append(opts, cluster.WithLocalIPFunc(func() string { return localIP }))
	}

	a.cluster = cluster.NewCluster(a.cfg.Cluster.ServerList, a.cfg.Cluster.MyUrl, opts...)

	election := cluster.NewElection(a.cluster,
		cluster.WithElectionLogger(logger.GetZapLogger("election")),
	)

	invoker := cluster.NewHTTPInvoker(
		cluster.WithInvokerLogger(clusterLogger),
	)

	replicator := cluster.NewReplicator(a.service, a.cluster, invoker,
		logger.GetZapLogger("replicator"),
	)

	a.serverHealth = cluster.NewServerHealth(
		a.cluster, election, replicator, invoker, a.sched, clusterLogger,
		cluster.WithHealthInterval(time.Duration(a.cfg.Cluster.HeartbeatInterval)*time.Millisecond),
	)
	if err := a.serverHealth.Start(); err != nil {
		clusterLogger.Error("启动集群健康检查失败", zap.Error(err))
	}
}

// startHTTP 启动fiber HTTP服务
func (a *App) startHTTP(logger *zap.Logger) error {
	a.fiberApp = fiber.New(fiber.Config{
		AppName:               "MaRegistry",
		DisableStartupMessage: true,
	})

	a.fiberApp.Use(recover.New())
	a.fiberApp.Use(fiberlogger.New())
	a.fiberApp.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	var clusterState registry.ClusterState
	if a.cluster != nil {
		clusterState = a.cluster
	}

	registryAPI := registry.NewAPI(a.service, clusterState, logger)
	registryAPI.RegisterRoutes(a.fiberApp)

	if a.cluster != nil {
		clusterAPI := cluster.NewAPI(a.cluster, a.service, logger)
		clusterAPI.RegisterRoutes(a.fiberApp)
	}

	addr := fmt.Sprintf(":%d", a.cfg.Network.HttpPort)
	logger.Info("HTTP服务启动", zap.String("addr", addr))

	go func() {
		if err := a.fiberApp.Listen(addr); err != nil {
			logger.Error("HTTP服务退出", zap.Error(err))
		}
	}()

	return nil
}

// Stop 停止应用
// 先停止接收外部写入，再停掉周期任务，最后保存一次快照
func (a *App) Stop() error {
	if a.fiberApp != nil {
		if err := a.fiberApp.ShutdownWithTimeout(5 * time.Second); err != nil {
			a.logger.Error("HTTP服务关闭失败", common.ErrorField(err))
		}
	}

	if a.serverHealth != nil {
		a.serverHealth.Stop()
	}
	if a.checker != nil {
		a.checker.Stop()
	}
	if a.sched != nil {
		if a.snapshotTaskID != "" {
			a.sched.RemoveTask(a.snapshotTaskID)
		}
		if err := a.sched.Stop(); err != nil {
			a.logger.Error("停止调度器失败", common.ErrorField(err))
		}
	}

	// 退出前保存最终快照
	if a.store != nil && a.service != nil {
		if err := a.store.Save(a.service.Snapshot()); err != nil {
			a.logger.Error("保存最终快照失败", common.ErrorField(err))
		}
	}

	if a.logger != nil {
		a.logger.Sync()
	}

	return nil
}

// Service 获取注册中心状态机，测试和嵌入场景使用
func (a *App) Service() registry.RegistryService {
	return a.service
}

// Cluster 获取集群视图
func (a *App) Cluster() *cluster.Cluster {
	return a.cluster
}

// LocalIP 获取本机IP
func (a *App) LocalIP() string {
	if a.cluster != nil {
		return a.cluster.LocalIP()
	}
	return utils.GetLocalIP()
}
