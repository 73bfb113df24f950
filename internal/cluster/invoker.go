package cluster

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	// DefaultProbeTimeout 默认探活与拉取超时
	DefaultProbeTimeout = 500 * time.Millisecond
)

// Invoker 集群节点间的HTTP调用接口
// 测试时可替换为内存实现
type Invoker interface {
	// Probe 探测节点是否可达，可达时一并返回对方的全局版本号
	Probe(url string) (alive bool, version int64)

	// FetchSnapshot 拉取节点的快照字节
	FetchSnapshot(url string) ([]byte, error)
}

// HTTPInvoker 基于fasthttp的节点调用实现
// 连接池大小和超时都有界，保证集群循环的单轮耗时可控
type HTTPInvoker struct {
	client  *fasthttp.Client
	timeout time.Duration
	logger  *zap.Logger
}

// InvokerOption 调用器配置选项
type InvokerOption func(*HTTPInvoker)

// WithProbeTimeout 设置请求超时
func WithProbeTimeout(timeout time.Duration) InvokerOption {
	return func(i *HTTPInvoker) {
		if timeout > 0 {
			i.timeout = timeout
		}
	}
}

// WithInvokerLogger 设置日志器
func WithInvokerLogger(logger *zap.Logger) InvokerOption {
	return func(i *HTTPInvoker) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewHTTPInvoker 创建HTTP调用器
func NewHTTPInvoker(opts ...InvokerOption) *HTTPInvoker {
	i := &HTTPInvoker{
		client: &fasthttp.Client{
			MaxConnsPerHost:     4,
			MaxIdleConnDuration: 30 * time.Second,
		},
		timeout: DefaultProbeTimeout,
		logger:  zap.NewNop(),
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// get 执行一次带超时的GET请求，返回响应体副本
func (i *HTTPInvoker) get(url string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(url)

	if err := i.client.DoTimeout(req, resp, i.timeout); err != nil {
		return nil, err
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("非预期的响应状态码: %d", resp.StatusCode())
	}

	// 响应体缓冲区随resp归还，必须拷贝
	body := resp.Body()
	result := make([]byte, len(body))
	copy(result, body)
	return result, nil
}

// Probe 探测节点的/info端点
func (i *HTTPInvoker) Probe(url string) (bool, int64) {
	body, err := i.get(url + "/info")
	if err != nil {
		i.logger.Debug("节点探活失败",
			zap.String("url", url),
			zap.Error(err))
		return false, 0
	}

	version := gjson.GetBytes(body, "version").Int()
	return true, version
}

// FetchSnapshot 拉取节点的/snapshot端点
func (i *HTTPInvoker) FetchSnapshot(url string) ([]byte, error) {
	body, err := i.get(url + "/snapshot")
	if err != nil {
		i.logger.Debug("拉取快照失败",
			zap.String("url", url),
			zap.Error(err))
		return nil, err
	}
	return body, nil
}
