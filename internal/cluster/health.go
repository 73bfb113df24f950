package cluster

import (
	"context"
	"time"

	"maregistry/pkg/scheduler"

	"go.uber.org/zap"
)

const (
	// DefaultHealthInterval 默认集群检查间隔
	DefaultHealthInterval = 5 * time.Second
)

// ServerHealth 集群健康检查循环
//
// 固定周期驱动三个步骤：探测所有节点可达性、必要时重新选举、
// Follower侧快照同步。任何一步出错都只记录日志，不影响后续步骤
// 和后续轮次
type ServerHealth struct {
	cluster    *Cluster
	election   *Election
	replicator *Replicator
	invoker    Invoker

	sched    *scheduler.Scheduler
	taskID   string
	interval time.Duration

	logger *zap.Logger
}

// HealthOption 集群健康检查配置选项
type HealthOption func(*ServerHealth)

// WithHealthInterval 设置检查间隔
func WithHealthInterval(interval time.Duration) HealthOption {
	return func(h *ServerHealth) {
		if interval > 0 {
			h.interval = interval
		}
	}
}

// NewServerHealth 创建集群健康检查循环
func NewServerHealth(cluster *Cluster, election *Election, replicator *Replicator,
	invoker Invoker, sched *scheduler.Scheduler, logger *zap.Logger, opts ...HealthOption) *ServerHealth {
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &ServerHealth{
		cluster:    cluster,
		election:   election,
		replicator: replicator,
		invoker:    invoker,
		sched:      sched,
		interval:   DefaultHealthInterval,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Start 启动周期检查任务
func (h *ServerHealth) Start() error {
	if h.sched == nil {
		h.logger.Warn("未配置调度器，集群健康检查不会自动执行")
		return nil
	}

	task := scheduler.NewIntervalTask(
		"cluster-health-checker",
		time.Now().Add(h.interval),
		h.interval,
		h.interval,
		func(ctx context.Context) error {
			h.Tick()
			return nil
		},
	)

	if err := h.sched.AddTask(task); err != nil {
		h.logger.Error("添加集群健康检查任务失败", zap.Error(err))
		return err
	}
	h.taskID = task.GetID()

	h.logger.Info("集群健康检查已启动", zap.Duration("interval", h.interval))

	return nil
}

// Stop 停止检查任务
func (h *ServerHealth) Stop() {
	if h.sched != nil && h.taskID != "" {
		h.sched.RemoveTask(h.taskID)
		h.taskID = ""
	}
	h.logger.Info("集群健康检查已停止")
}

// Tick 执行一轮集群检查：探活 -> 选举 -> 同步
func (h *ServerHealth) Tick() {
	h.UpdateServers()

	if h.election.ShouldReelect() {
		h.election.ElectLeader()
	}

	h.replicator.Sync()
}

// UpdateServers 探测所有节点的可达性并更新状态
// 本机节点始终标记为在线；探活成功时一并更新观察到的版本号
func (h *ServerHealth) UpdateServers() {
	self := h.cluster.Self()

	for _, server := range h.cluster.Servers() {
		if server == self {
			server.SetStatus(true)
			continue
		}

		alive, version := h.invoker.Probe(server.URL())
		if alive != server.Status() {
			h.logger.Info("节点状态变化",
				zap.String("url", server.URL()),
				zap.Bool("alive", alive))
		}
		server.SetStatus(alive)
		if alive {
			server.SetVersion(version)
		}
	}
}
