package cluster

import (
	"maregistry/internal/registry"

	"go.uber.org/zap"
)

// Replicator 从Leader拉取快照的复制器
//
// 只在本机为Follower且存在在线Leader时工作。版本号门控：只有
// Leader的快照版本号大于本地快照版本号时才执行恢复。拉取失败或
// 快照内容无效时记录日志并放弃本轮，不修改任何状态
type Replicator struct {
	service registry.RegistryService
	cluster *Cluster
	invoker Invoker
	logger  *zap.Logger
}

// NewReplicator 创建复制器
func NewReplicator(service registry.RegistryService, cluster *Cluster, invoker Invoker, logger *zap.Logger) *Replicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replicator{
		service: service,
		cluster: cluster,
		invoker: invoker,
		logger:  logger,
	}
}

// Sync 执行一轮Follower侧的快照同步
func (r *Replicator) Sync() {
	self := r.cluster.Self()
	if self == nil || self.IsLeader() {
		return
	}

	leader := r.cluster.Leader()
	if leader == nil || !leader.Status() {
		return
	}

	data, err := r.invoker.FetchSnapshot(leader.URL())
	if err != nil {
		r.logger.Debug("拉取Leader快照失败",
			zap.String("leader", leader.URL()),
			zap.Error(err))
		return
	}
	if len(data) == 0 {
		r.logger.Debug("Leader快照为空", zap.String("leader", leader.URL()))
		return
	}

	snapshot, err := registry.DecodeSnapshot(data)
	if err != nil {
		r.logger.Warn("Leader快照内容无效",
			zap.String("leader", leader.URL()),
			zap.Error(err))
		return
	}

	localVersion := r.service.SnapshotVersion()
	if !snapshot.ShouldSync(localVersion) {
		r.logger.Debug("本地快照已是最新，跳过同步",
			zap.Int64("local", localVersion),
			zap.Int64("leader", snapshot.Version))
		return
	}

	r.service.Restore(snapshot)

	r.logger.Info("从Leader同步快照完成",
		zap.String("leader", leader.URL()),
		zap.Int64("version", snapshot.Version),
		zap.Int("services", snapshot.Size()))
}
