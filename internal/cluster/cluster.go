package cluster

import (
	"sync"

	"maregistry/pkg/utils"

	"go.uber.org/zap"
)

// Cluster 集群节点视图
// 从静态配置初始化，节点列表此后不增不减，只有status/leader/version字段变化
type Cluster struct {
	servers []*Server
	self    *Server
	localIP string

	mu     sync.RWMutex
	leader *Server

	logger *zap.Logger
}

// ClusterOption 集群配置选项
type ClusterOption func(*clusterOptions)

type clusterOptions struct {
	localIPFunc func() string
	logger      *zap.Logger
}

// WithLocalIPFunc 设置本机IP解析函数，测试时可注入固定值
func WithLocalIPFunc(fn func() string) ClusterOption {
	return func(o *clusterOptions) {
		if fn != nil {
			o.localIPFunc = fn
		}
	}
}

// WithClusterLogger 设置日志器
func WithClusterLogger(logger *zap.Logger) ClusterOption {
	return func(o *clusterOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewCluster 创建集群视图
//
// 初始化流程：
//  1. 解析本机IP，将配置中的localhost/127.0.0.1替换为本机IP
//  2. 为每个配置URL创建节点，默认在线
//  3. host与本机IP匹配的节点作为self；没有匹配时根据myURL补建一个
func NewCluster(serverList []string, myURL string, opts ...ClusterOption) *Cluster {
	options := &clusterOptions{
		localIPFunc: utils.GetLocalIP,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(options)
	}

	c := &Cluster{
		localIP: options.localIPFunc(),
		logger:  options.logger,
	}

	c.logger.Info("本机IP地址", zap.String("ip", c.localIP))

	for _, url := range serverList {
		if url == "" {
			continue
		}
		processed := utils.ReplaceLoopbackHost(url, c.localIP)
		server := NewServer(processed)

		if c.self == nil && server.IsLocal(c.localIP) {
			c.self = server
			c.logger.Info("识别到本机节点", zap.String("url", processed))
		}

		c.servers = append(c.servers, server)
	}

	// 没有识别到本机节点时，根据myURL补建一个
	if c.self == nil && myURL != "" {
		url := utils.ReplaceLoopbackHost(myURL, c.localIP)
		c.self = NewServer(url)
		c.servers = append(c.servers, c.self)
		c.logger.Info("创建本机节点", zap.String("url", url))
	}

	c.logger.Info("集群初始化完成", zap.Int("servers", len(c.servers)))

	return c
}

// Servers 获取所有集群节点
func (c *Cluster) Servers() []*Server {
	result := make([]*Server, len(c.servers))
	copy(result, c.servers)
	return result
}

// Online 获取所有在线节点
func (c *Cluster) Online() []*Server {
	var online []*Server
	for _, server := range c.servers {
		if server.Status() {
			online = append(online, server)
		}
	}
	return online
}

// Self 获取本机节点
func (c *Cluster) Self() *Server {
	return c.self
}

// LocalIP 获取解析出的本机IP
func (c *Cluster) LocalIP() string {
	return c.localIP
}

// Leader 获取当前Leader节点，没有时返回nil
func (c *Cluster) Leader() *Server {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.leader
}

// SetLeader 设置Leader节点
// 先清除所有节点的Leader标记，再设置新Leader；传nil表示清空
func (c *Cluster) SetLeader(leader *Server) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, server := range c.servers {
		server.SetLeader(false)
	}

	if leader != nil {
		leader.SetLeader(true)
		c.leader = leader
		c.logger.Info("选举产生新的Leader", zap.String("url", leader.URL()))
	} else {
		c.leader = nil
		c.logger.Info("Leader节点已清空")
	}
}

// ByURL 根据URL查找节点
func (c *Cluster) ByURL(url string) *Server {
	if url == "" {
		return nil
	}
	for _, server := range c.servers {
		if server.URL() == url {
			return server
		}
	}
	return nil
}

// IsSelfLeader 检查本机节点是否为Leader
func (c *Cluster) IsSelfLeader() bool {
	return c.self != nil && c.self.IsLeader()
}

// LeaderURL 获取Leader节点URL，没有Leader时返回空串
func (c *Cluster) LeaderURL() string {
	leader := c.Leader()
	if leader == nil {
		return ""
	}
	return leader.URL()
}

// Size 获取集群节点总数
func (c *Cluster) Size() int {
	return len(c.servers)
}

// Infos 获取所有节点信息的快照
func (c *Cluster) Infos() []ServerInfo {
	result := make([]ServerInfo, 0, len(c.servers))
	for _, server := range c.servers {
		result = append(result, server.Info())
	}
	return result
}
