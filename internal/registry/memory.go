package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// memoryRegistry RegistryService的内存实现
//
// 存储结构：
//   - registry: 服务名 -> 实例切片（保持插入顺序，按身份去重）
//   - timestamps: 实例key -> 最后心跳时间戳（毫秒），使用sync.Map使
//     存活检查器的读取不与续约写入串行
//   - versions: 服务名 -> 单调递增版本号
//
// 所有变更操作通过互斥锁串行，读操作走读锁或并发安全容器
type memoryRegistry struct {
	mu       sync.RWMutex
	registry map[string][]*InstanceMeta
	versions map[string]int64

	timestamps sync.Map // map[string]int64

	globalVersion   atomic.Int64
	snapshotVersion atomic.Int64

	nowFunc func() time.Time
	logger  *zap.Logger
}

// MemoryOption 内存注册中心配置选项
type MemoryOption func(*memoryRegistry)

// WithClock 设置时钟函数，测试时可注入虚拟时钟
func WithClock(nowFunc func() time.Time) MemoryOption {
	return func(r *memoryRegistry) {
		if nowFunc != nil {
			r.nowFunc = nowFunc
		}
	}
}

// WithLogger 设置日志器
func WithLogger(logger *zap.Logger) MemoryOption {
	return func(r *memoryRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewMemoryRegistry 创建内存注册中心
func NewMemoryRegistry(opts ...MemoryOption) RegistryService {
	r := &memoryRegistry{
		registry: make(map[string][]*InstanceMeta),
		versions: make(map[string]int64),
		nowFunc:  time.Now,
		logger:   zap.NewNop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register 注册服务实例
// 按身份去重：已存在的实例原样返回，不触碰时间戳和版本号
func (r *memoryRegistry) Register(service string, instance *InstanceMeta) *InstanceMeta {
	if service == "" || instance == nil {
		return instance
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.registry[service] {
		if existing.Equals(instance) {
			return existing
		}
	}

	stored := instance.Copy()
	r.registry[service] = append(r.registry[service], stored)

	r.logger.Info("注册服务实例",
		zap.String("service", service),
		zap.String("instance", stored.ToURL()))

	return stored
}

// Unregister 注销服务实例
// 服务或实例不存在时静默成功，不修改时间戳和版本号
func (r *memoryRegistry) Unregister(service string, instance *InstanceMeta) *InstanceMeta {
	if service == "" || instance == nil {
		return instance
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	instances, ok := r.registry[service]
	if !ok {
		return instance
	}

	for i, existing := range instances {
		if existing.Equals(instance) {
			r.registry[service] = append(instances[:i], instances[i+1:]...)
			r.logger.Info("注销服务实例",
				zap.String("service", service),
				zap.String("instance", instance.ToURL()))
			break
		}
	}

	return instance
}

// GetAllInstances 获取服务的全部实例
// 返回防御性拷贝；服务不存在返回nil
func (r *memoryRegistry) GetAllInstances(service string) []*InstanceMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances, ok := r.registry[service]
	if !ok {
		return nil
	}

	result := make([]*InstanceMeta, 0, len(instances))
	for _, instance := range instances {
		result = append(result, instance.Copy())
	}
	return result
}

// Renew 心跳续约单个服务
// 不校验实例是否已注册，孤儿时间戳由存活检查器容忍
func (r *memoryRegistry) Renew(service string, instance *InstanceMeta) *InstanceMeta {
	if service == "" || instance == nil {
		return instance
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.timestamps.Store(TimestampKey(service, instance), r.nowFunc().UnixMilli())
	r.versions[service]++
	r.globalVersion.Add(1)

	return instance
}

// Renews 批量心跳续约
// 每个服务的版本号各加1，全局版本号整批只加1
func (r *memoryRegistry) Renews(services []string, instance *InstanceMeta) *InstanceMeta {
	if len(services) == 0 || instance == nil {
		return instance
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc().UnixMilli()
	for _, service := range services {
		if service == "" {
			continue
		}
		r.timestamps.Store(TimestampKey(service, instance), now)
		r.versions[service]++
	}
	r.globalVersion.Add(1)

	return instance
}

// Version 获取服务版本号
func (r *memoryRegistry) Version(service string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.versions[service]
}

// Versions 批量获取服务版本号
func (r *memoryRegistry) Versions(services []string) map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]int64, len(services))
	for _, service := range services {
		result[service] = r.versions[service]
	}
	return result
}

// Snapshot 生成当前数据快照
// 持锁构造深拷贝，快照版本号加1
func (r *memoryRegistry) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := NewSnapshot()
	snapshot.Version = r.snapshotVersion.Add(1)
	snapshot.CreateTime = r.nowFunc().UnixMilli()

	for service, instances := range r.registry {
		copied := make([]*InstanceMeta, 0, len(instances))
		for _, instance := range instances {
			copied = append(copied, instance.Copy())
		}
		snapshot.Registry[service] = copied
	}

	for service, version := range r.versions {
		snapshot.Versions[service] = version
	}

	r.timestamps.Range(func(key, value interface{}) bool {
		snapshot.Timestamps[key.(string)] = value.(int64)
		return true
	})

	return snapshot
}

// Restore 从快照恢复数据
// 清空现有状态后写入快照内容，全局版本号取当前值与快照版本号的较大者
func (r *memoryRegistry) Restore(snapshot *Snapshot) {
	if snapshot == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.registry = make(map[string][]*InstanceMeta)
	r.versions = make(map[string]int64)
	r.timestamps.Range(func(key, _ interface{}) bool {
		r.timestamps.Delete(key)
		return true
	})

	for service, instances := range snapshot.Registry {
		copied := make([]*InstanceMeta, 0, len(instances))
		for _, instance := range instances {
			if instance != nil {
				copied = append(copied, instance.Copy())
			}
		}
		r.registry[service] = copied
	}

	for service, version := range snapshot.Versions {
		r.versions[service] = version
	}

	for key, ts := range snapshot.Timestamps {
		r.timestamps.Store(key, ts)
	}

	r.snapshotVersion.Store(snapshot.Version)

	for {
		current := r.globalVersion.Load()
		if snapshot.Version <= current {
			break
		}
		if r.globalVersion.CompareAndSwap(current, snapshot.Version) {
			break
		}
	}

	r.logger.Info("从快照恢复注册中心数据",
		zap.Int64("version", snapshot.Version),
		zap.Int("services", len(snapshot.Registry)))
}

// Timestamps 获取心跳时间戳的快照视图
func (r *memoryRegistry) Timestamps() map[string]int64 {
	result := make(map[string]int64)
	r.timestamps.Range(func(key, value interface{}) bool {
		result[key.(string)] = value.(int64)
		return true
	})
	return result
}

// PruneTimestamp 删除指定的时间戳条目，由存活检查器在摘除实例后调用
func (r *memoryRegistry) PruneTimestamp(key string) {
	r.timestamps.Delete(key)
}

// GlobalVersion 获取全局版本号
func (r *memoryRegistry) GlobalVersion() int64 {
	return r.globalVersion.Load()
}

// SnapshotVersion 获取当前快照版本号
func (r *memoryRegistry) SnapshotVersion() int64 {
	return r.snapshotVersion.Load()
}
