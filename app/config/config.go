// Package config 提供注册中心的配置加载与校验
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"maregistry/pkg/common"
	"maregistry/pkg/utils"

	"gopkg.in/yaml.v3"
)

// SystemConfig 系统配置
type SystemConfig struct {
	NodeId  string `yaml:"node_id"`  // 节点标识，空时自动生成
	DataDir string `yaml:"data_dir"` // 数据目录
}

// NetworkConfig 网络配置
type NetworkConfig struct {
	LocalIp  string `yaml:"local_ip" json:"local_ip"`   // 本机IP，空时自动探测
	HttpPort int    `yaml:"http_port" json:"http_port"` // HTTP监听端口
}

// RegistryConfig 注册中心配置
type RegistryConfig struct {
	// SnapshotPath 快照持久化文件路径
	SnapshotPath string `yaml:"snapshot_path"`
	// SnapshotInterval 快照持久化间隔（秒）
	SnapshotInterval int `yaml:"snapshot_interval"`
	// NodeTimeout 实例心跳超时阈值（毫秒），必须大于检查间隔
	NodeTimeout int `yaml:"node_timeout"`
	// CheckInterval 实例存活检查间隔（毫秒）
	CheckInterval int `yaml:"check_interval"`
}

// ClusterConfig 集群配置
type ClusterConfig struct {
	// Enabled 是否启用集群模式
	Enabled bool `yaml:"enabled"`
	// ServerList 集群节点URL列表，形如 scheme://host:port
	ServerList []string `yaml:"server_list"`
	// MyUrl 本机节点URL，本机IP能匹配ServerList时可省略
	MyUrl string `yaml:"my_url"`
	// HeartbeatInterval 集群检查循环间隔（毫秒）
	HeartbeatInterval int `yaml:"heartbeat_interval"`
}

// BaseConfig 应用程序配置
type BaseConfig struct {
	System   *SystemConfig     `yaml:"system"`
	Network  *NetworkConfig    `yaml:"network"`
	Logger   *common.LogConfig `yaml:"logger"`
	Registry *RegistryConfig   `yaml:"registry"`
	Cluster  *ClusterConfig    `yaml:"cluster"`
}

// 默认值
const (
	DefaultHttpPort          = 8484
	DefaultSnapshotInterval  = 30
	DefaultNodeTimeout       = 20000
	DefaultCheckInterval     = 10000
	DefaultHeartbeatInterval = 5000
)

// NewDefaultConfig 创建带默认值的配置
func NewDefaultConfig() *BaseConfig {
	cfg := &BaseConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults 填充缺省配置项
func (c *BaseConfig) ApplyDefaults() {
	if c.System == nil {
		c.System = &SystemConfig{}
	}
	if c.System.DataDir == "" {
		c.System.DataDir = "./data"
	}

	if c.Network == nil {
		c.Network = &NetworkConfig{}
	}
	if c.Network.HttpPort == 0 {
		c.Network.HttpPort = DefaultHttpPort
	}

	if c.Logger == nil {
		c.Logger = &common.LogConfig{
			Level:      common.InfoLevel,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Console:    true,
		}
	}

	if c.Registry == nil {
		c.Registry = &RegistryConfig{}
	}
	if c.Registry.SnapshotPath == "" {
		c.Registry.SnapshotPath = filepath.Join(c.System.DataDir, "registry-snapshot.json")
	}
	if c.Registry.SnapshotInterval <= 0 {
		c.Registry.SnapshotInterval = DefaultSnapshotInterval
	}
	if c.Registry.NodeTimeout <= 0 {
		c.Registry.NodeTimeout = DefaultNodeTimeout
	}
	if c.Registry.CheckInterval <= 0 {
		c.Registry.CheckInterval = DefaultCheckInterval
	}

	if c.Cluster == nil {
		c.Cluster = &ClusterConfig{Enabled: true}
	}
	if c.Cluster.HeartbeatInterval <= 0 {
		c.Cluster.HeartbeatInterval = DefaultHeartbeatInterval
	}
}

// Validate 校验配置有效性
func (c *BaseConfig) Validate() error {
	if c.Network == nil || c.Network.HttpPort <= 0 || c.Network.HttpPort > 65535 {
		return fmt.Errorf("http_port必须在1-65535之间")
	}

	if c.Registry.NodeTimeout <= c.Registry.CheckInterval {
		return fmt.Errorf("node_timeout(%dms)必须大于check_interval(%dms)",
			c.Registry.NodeTimeout, c.Registry.CheckInterval)
	}

	return nil
}

// LoadFromFile 从yaml文件加载配置
// 文件不存在时返回默认配置
func LoadFromFile(path string) (*BaseConfig, error) {
	if !utils.FileExists(path) {
		cfg := NewDefaultConfig()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &BaseConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
