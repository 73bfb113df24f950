// Package health 提供基于心跳时间戳的服务实例存活检查
package health

import (
	"context"
	"time"

	"maregistry/internal/registry"
	"maregistry/pkg/scheduler"

	"go.uber.org/zap"
)

const (
	// DefaultCheckInterval 默认检查间隔
	DefaultCheckInterval = 10 * time.Second
	// DefaultTimeout 默认实例超时阈值
	DefaultTimeout = 20 * time.Second
)

// HealthChecker 存活检查器接口
type HealthChecker interface {
	// Start 启动周期检查任务
	Start() error

	// Stop 停止检查任务
	Stop()

	// Check 执行一轮检查，摘除心跳超时的实例
	Check()
}

// Checker 基于心跳时间戳的存活检查器实现
// 被动检查：依赖实例主动续约，超过阈值未续约的实例被自动摘除。
// 单个条目的处理失败只记录日志，检查循环永不终止
type Checker struct {
	service   registry.RegistryService
	scheduler *scheduler.Scheduler
	taskID    string

	interval time.Duration
	timeout  time.Duration
	nowFunc  func() time.Time

	logger *zap.Logger
}

// CheckerOption 检查器配置选项
type CheckerOption func(*Checker)

// WithInterval 设置检查间隔
func WithInterval(interval time.Duration) CheckerOption {
	return func(c *Checker) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithTimeout 设置实例超时阈值
func WithTimeout(timeout time.Duration) CheckerOption {
	return func(c *Checker) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithClock 设置时钟函数，测试时可注入虚拟时钟
func WithClock(nowFunc func() time.Time) CheckerOption {
	return func(c *Checker) {
		if nowFunc != nil {
			c.nowFunc = nowFunc
		}
	}
}

// NewChecker 创建存活检查器
// sched为nil时Start不做任何事，Check仍可手动调用
func NewChecker(service registry.RegistryService, sched *scheduler.Scheduler, logger *zap.Logger, opts ...CheckerOption) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Checker{
		service:   service,
		scheduler: sched,
		interval:  DefaultCheckInterval,
		timeout:   DefaultTimeout,
		nowFunc:   time.Now,
		logger:    logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start 启动周期检查任务
func (c *Checker) Start() error {
	if c.scheduler == nil {
		c.logger.Warn("未配置调度器，存活检查不会自动执行")
		return nil
	}

	task := scheduler.NewIntervalTask(
		"registry-health-checker",
		time.Now().Add(c.interval),
		c.interval,
		c.interval,
		func(ctx context.Context) error {
			c.Check()
			return nil
		},
	)

	if err := c.scheduler.AddTask(task); err != nil {
		c.logger.Error("添加存活检查任务失败", zap.Error(err))
		return err
	}
	c.taskID = task.GetID()

	c.logger.Info("存活检查器已启动",
		zap.Duration("interval", c.interval),
		zap.Duration("timeout", c.timeout))

	return nil
}

// Stop 停止检查任务
func (c *Checker) Stop() {
	if c.scheduler != nil && c.taskID != "" {
		c.scheduler.RemoveTask(c.taskID)
		c.taskID = ""
	}
	c.logger.Info("存活检查器已停止")
}

// Check 执行一轮存活检查
//
// 两阶段处理：先按阈值筛选超时的时间戳条目，再到注册表中查找
// 对应实例并摘除。实例不存在（孤儿时间戳）时跳过
func (c *Checker) Check() {
	timestamps := c.service.Timestamps()
	if len(timestamps) == 0 {
		return
	}

	now := c.nowFunc().UnixMilli()
	checked := 0
	removed := 0

	for key, lastHeartbeat := range timestamps {
		checked++

		elapsed := now - lastHeartbeat
		if elapsed <= c.timeout.Milliseconds() {
			continue
		}

		if c.removeTimeoutInstance(key, elapsed) {
			removed++
		}
	}

	if removed > 0 {
		c.logger.Info("存活检查完成",
			zap.Int("checked", checked),
			zap.Int("removed", removed))
	} else {
		c.logger.Debug("存活检查完成，无超时实例",
			zap.Int("checked", checked))
	}
}

// removeTimeoutInstance 摘除超时实例
// key格式为 service@scheme://host:port/context
func (c *Checker) removeTimeoutInstance(key string, elapsed int64) bool {
	service, instanceURL, ok := registry.ParseTimestampKey(key)
	if !ok {
		c.logger.Warn("无效的时间戳key", zap.String("key", key))
		return false
	}

	instances := c.service.GetAllInstances(service)
	if len(instances) == 0 {
		return false
	}

	for _, instance := range instances {
		if instance.ToURL() == instanceURL {
			c.logger.Info("摘除超时实例",
				zap.String("service", service),
				zap.String("instance", instanceURL),
				zap.Int64("elapsed_ms", elapsed))
			c.service.Unregister(service, instance)
			c.service.PruneTimestamp(key)
			return true
		}
	}

	return false
}
