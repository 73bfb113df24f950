package registry

// RegistryService 服务注册中心状态机接口
// 是REGISTRY、TIMESTAMPS、VERSIONS以及全局版本号的唯一权威，
// 所有变更操作相互串行，非法输入降级为静默空操作，不抛错
type RegistryService interface {
	// Register 注册服务实例，实例已存在时原样返回且不做任何修改
	Register(service string, instance *InstanceMeta) *InstanceMeta

	// Unregister 注销服务实例，服务或实例不存在时静默成功
	Unregister(service string, instance *InstanceMeta) *InstanceMeta

	// GetAllInstances 获取服务的全部实例
	// 服务不存在返回nil，与"存在但为空"可区分
	GetAllInstances(service string) []*InstanceMeta

	// Renew 心跳续约单个服务，写入时间戳并递增服务版本号和全局版本号
	Renew(service string, instance *InstanceMeta) *InstanceMeta

	// Renews 批量心跳续约，每个服务版本号各加1，全局版本号只加1
	Renews(services []string, instance *InstanceMeta) *InstanceMeta

	// Version 获取服务版本号，服务不存在返回0
	Version(service string) int64

	// Versions 批量获取服务版本号
	Versions(services []string) map[string]int64

	// Snapshot 生成当前数据快照，快照版本号加1
	Snapshot() *Snapshot

	// Restore 从快照恢复数据，清空现有状态后写入快照内容
	Restore(snapshot *Snapshot)

	// Timestamps 获取心跳时间戳的快照视图，供存活检查器使用
	Timestamps() map[string]int64

	// PruneTimestamp 删除指定的时间戳条目，存活检查器摘除实例后清理用
	PruneTimestamp(key string)

	// GlobalVersion 获取全局版本号
	GlobalVersion() int64

	// SnapshotVersion 获取当前快照版本号，复制器用于判断是否需要同步
	SnapshotVersion() int64
}
