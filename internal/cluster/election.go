package cluster

import (
	"hash/fnv"

	"go.uber.org/zap"
)

// Election 确定性Leader选举
//
// 在在线节点中选择URL哈希值最小的节点作为Leader，哈希相同时取
// 字典序较小的URL。各节点对相同的在线集合独立计算会得到相同结果，
// 不需要交换选票。可达性不对称时各子集可能选出不同Leader（脑裂），
// 该缺陷由上层文档声明，不在此处解决
type Election struct {
	cluster  *Cluster
	hashFunc func(string) uint32
	logger   *zap.Logger
}

// ElectionOption 选举配置选项
type ElectionOption func(*Election)

// WithHashFunc 设置URL哈希函数，测试哈希相同的情况时可注入常量函数
func WithHashFunc(fn func(string) uint32) ElectionOption {
	return func(e *Election) {
		if fn != nil {
			e.hashFunc = fn
		}
	}
}

// WithElectionLogger 设置日志器
func WithElectionLogger(logger *zap.Logger) ElectionOption {
	return func(e *Election) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewElection 创建选举器
func NewElection(cluster *Cluster, opts ...ElectionOption) *Election {
	e := &Election{
		cluster:  cluster,
		hashFunc: hashURL,
		logger:   zap.NewNop(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// hashURL 默认的URL哈希，FNV-32a在所有节点上结果一致
func hashURL(url string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(url))
	return h.Sum32()
}

// ElectLeader 执行Leader选举
// 没有在线节点时清空Leader并返回nil
func (e *Election) ElectLeader() *Server {
	online := e.cluster.Online()

	if len(online) == 0 {
		e.logger.Warn("没有在线节点，无法进行选举")
		e.cluster.SetLeader(nil)
		return nil
	}

	if len(online) == 1 {
		sole := online[0]
		e.logger.Info("只有一个在线节点，自动成为Leader", zap.String("url", sole.URL()))
		e.cluster.SetLeader(sole)
		return sole
	}

	elected := e.performElection(online)
	e.cluster.SetLeader(elected)

	e.logger.Info("选举完成",
		zap.String("leader", elected.URL()),
		zap.Int("candidates", len(online)))

	return elected
}

// performElection 在候选节点中选出哈希值最小者，相同哈希取字典序较小的URL
func (e *Election) performElection(candidates []*Server) *Server {
	winner := candidates[0]
	winnerHash := e.hashFunc(winner.URL())

	for _, candidate := range candidates[1:] {
		h := e.hashFunc(candidate.URL())
		if h < winnerHash || (h == winnerHash && candidate.URL() < winner.URL()) {
			winner = candidate
			winnerHash = h
		}
	}

	return winner
}

// ShouldReelect 检查是否需要重新选举
//
// 触发条件：没有Leader、当前Leader离线、或存在多个Leader标记（病态
// 状态，重新选举可以修复）
func (e *Election) ShouldReelect() bool {
	leader := e.cluster.Leader()

	if leader == nil {
		e.logger.Debug("当前无Leader，需要选举")
		return true
	}

	if !leader.Status() {
		e.logger.Info("当前Leader已离线，需要重新选举", zap.String("url", leader.URL()))
		return true
	}

	leaderCount := 0
	for _, server := range e.cluster.Servers() {
		if server.IsLeader() {
			leaderCount++
		}
	}

	if leaderCount > 1 {
		e.logger.Warn("检测到多Leader，需要重新选举", zap.Int("count", leaderCount))
		return true
	}

	return false
}
