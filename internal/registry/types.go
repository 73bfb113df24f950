package registry

import (
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// InstanceMeta 服务实例元数据
// scheme+host+port+context四个字段构成实例身份，parameters不参与相等性比较
type InstanceMeta struct {
	Scheme     string            `json:"scheme"`     // 通信协议，如http、https
	Host       string            `json:"host"`       // 主机地址
	Port       int               `json:"port"`       // 端口号
	Context    string            `json:"context"`    // 上下文路径
	Parameters map[string]string `json:"parameters"` // 扩展参数，不参与身份比较
}

// NewInstanceMeta 创建服务实例元数据
func NewInstanceMeta(scheme, host string, port int, context string) *InstanceMeta {
	return &InstanceMeta{
		Scheme:     scheme,
		Host:       host,
		Port:       port,
		Context:    context,
		Parameters: make(map[string]string),
	}
}

// NewHTTPInstance 创建HTTP协议的服务实例，context为空
func NewHTTPInstance(host string, port int) *InstanceMeta {
	return NewInstanceMeta("http", host, port, "")
}

// ToURL 转换为标准URL形式 scheme://host:port/context
// 该形式作为时间戳key的组成部分，必须保持稳定
func (m *InstanceMeta) ToURL() string {
	return fmt.Sprintf("%s://%s:%d/%s", m.Scheme, m.Host, m.Port, m.Context)
}

// Equals 按身份比较两个实例是否相等
func (m *InstanceMeta) Equals(other *InstanceMeta) bool {
	if other == nil {
		return false
	}
	return m.Scheme == other.Scheme &&
		m.Host == other.Host &&
		m.Port == other.Port &&
		m.Context == other.Context
}

// Copy 创建实例的深拷贝
func (m *InstanceMeta) Copy() *InstanceMeta {
	c := &InstanceMeta{
		Scheme:  m.Scheme,
		Host:    m.Host,
		Port:    m.Port,
		Context: m.Context,
	}
	if m.Parameters != nil {
		c.Parameters = make(map[string]string, len(m.Parameters))
		for k, v := range m.Parameters {
			c.Parameters[k] = v
		}
	}
	return c
}

// ToJSON 将实例序列化为JSON
func (m *InstanceMeta) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// InstanceFromJSON 从JSON反序列化实例
func InstanceFromJSON(data []byte) (*InstanceMeta, error) {
	var instance InstanceMeta
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, NewRegistryErrorWithCause(ErrCodeInvalidInstance, "解析服务实例失败", err)
	}
	return &instance, nil
}

// TimestampKey 生成心跳时间戳key，格式为 service@scheme://host:port/context
func TimestampKey(service string, instance *InstanceMeta) string {
	return service + "@" + instance.ToURL()
}

// ParseTimestampKey 解析时间戳key为服务名和实例URL
// @分隔符缺失或位于首位时返回false
func ParseTimestampKey(key string) (service string, instanceURL string, ok bool) {
	idx := strings.Index(key, "@")
	if idx <= 0 {
		return "", "", false
	}
	return key[:idx], key[idx+1:], true
}

// Snapshot 注册中心数据快照
// 包含注册表、版本映射和心跳时间戳的完整副本，自描述且可独立恢复
type Snapshot struct {
	Registry   map[string][]*InstanceMeta `json:"REGISTRY"`   // 服务注册表
	Versions   map[string]int64           `json:"VERSIONS"`   // 服务版本映射
	Timestamps map[string]int64           `json:"TIMESTAMPS"` // 心跳时间戳
	Version    int64                      `json:"version"`    // 快照版本号
	CreateTime int64                      `json:"createTime"` // 快照创建时间（毫秒）
}

// NewSnapshot 创建空快照
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Registry:   make(map[string][]*InstanceMeta),
		Versions:   make(map[string]int64),
		Timestamps: make(map[string]int64),
		CreateTime: time.Now().UnixMilli(),
	}
}

// IsEmpty 检查快照是否不包含任何数据
func (s *Snapshot) IsEmpty() bool {
	return len(s.Registry) == 0 && len(s.Versions) == 0 && len(s.Timestamps) == 0
}

// Size 返回快照中的服务数量
func (s *Snapshot) Size() int {
	return len(s.Registry)
}

// ShouldSync 判断本地版本是否落后于该快照
func (s *Snapshot) ShouldSync(localVersion int64) bool {
	return s.Version > localVersion
}

// Encode 将快照序列化为JSON字节
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, NewRegistryErrorWithCause(ErrCodeSnapshotEncode, "序列化快照失败", err)
	}
	return data, nil
}

// DecodeSnapshot 从JSON字节反序列化快照
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	if len(data) == 0 {
		return nil, NewRegistryError(ErrCodeSnapshotDecode, "快照数据为空")
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, NewRegistryErrorWithCause(ErrCodeSnapshotDecode, "解析快照失败", err)
	}
	return &snapshot, nil
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("Snapshot{version=%d, services=%d, createTime=%d}",
		s.Version, len(s.Registry), s.CreateTime)
}
