package health

import (
	"sync"
	"testing"
	"time"

	"maregistry/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock 测试用的可推进时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestChecker(t *testing.T, clock *fakeClock) (*Checker, registry.RegistryService) {
	t.Helper()
	service := registry.NewMemoryRegistry(registry.WithClock(clock.Now))
	checker := NewChecker(service, nil, nil,
		WithTimeout(20*time.Second),
		WithClock(clock.Now),
	)
	return checker, service
}

func TestCheckEvictsTimeoutInstance(t *testing.T) {
	clock := newFakeClock()
	checker, service := newTestChecker(t, clock)

	instance := registry.NewHTTPInstance("localhost", 8080)
	service.Register("S", instance)
	service.Renew("S", instance) // t=0续约

	// 推进到t=25s，超过20s阈值
	clock.Advance(25 * time.Second)
	checker.Check()

	assert.Empty(t, service.GetAllInstances("S"))
}

func TestCheckKeepsAliveInstance(t *testing.T) {
	clock := newFakeClock()
	checker, service := newTestChecker(t, clock)

	instance := registry.NewHTTPInstance("localhost", 8080)
	service.Register("S", instance)
	service.Renew("S", instance)

	// 15s未超过阈值
	clock.Advance(15 * time.Second)
	checker.Check()

	assert.Len(t, service.GetAllInstances("S"), 1)
}

func TestCheckEvictsExactlyTimeoutSet(t *testing.T) {
	// 只摘除最近心跳早于阈值且在注册表中存在对应实例的条目
	clock := newFakeClock()
	checker, service := newTestChecker(t, clock)

	stale := registry.NewHTTPInstance("stale-host", 8080)
	fresh := registry.NewHTTPInstance("fresh-host", 8081)
	service.Register("S", stale)
	service.Register("S", fresh)

	service.Renew("S", stale) // t=0
	clock.Advance(15 * time.Second)
	service.Renew("S", fresh) // t=15s

	clock.Advance(10 * time.Second) // t=25s：stale超时25s，fresh只有10s
	checker.Check()

	instances := service.GetAllInstances("S")
	require.Len(t, instances, 1)
	assert.Equal(t, "fresh-host", instances[0].Host)
}

func TestCheckToleratesOrphanTimestamp(t *testing.T) {
	// 续约过但从未注册的实例产生孤儿时间戳，检查器跳过即可
	clock := newFakeClock()
	checker, service := newTestChecker(t, clock)

	service.Renew("ghost", registry.NewHTTPInstance("localhost", 8080))
	clock.Advance(30 * time.Second)

	assert.NotPanics(t, func() {
		checker.Check()
	})
}

func TestCheckUnregisteredBeforeSweep(t *testing.T) {
	// 实例先被手动注销，残留时间戳在后续轮次中被忽略
	clock := newFakeClock()
	checker, service := newTestChecker(t, clock)

	instance := registry.NewHTTPInstance("localhost", 8080)
	service.Register("S", instance)
	service.Renew("S", instance)
	service.Unregister("S", instance)

	clock.Advance(30 * time.Second)
	checker.Check()

	instances := service.GetAllInstances("S")
	assert.Empty(t, instances)
}

func TestCheckPrunesTimestampAfterEviction(t *testing.T) {
	clock := newFakeClock()
	checker, service := newTestChecker(t, clock)

	instance := registry.NewHTTPInstance("localhost", 8080)
	service.Register("S", instance)
	service.Renew("S", instance)

	clock.Advance(30 * time.Second)
	checker.Check()

	assert.NotContains(t, service.Timestamps(), registry.TimestampKey("S", instance))
}

func TestCheckRenewAfterEviction(t *testing.T) {
	// 摘除后的实例重新注册续约即可恢复
	clock := newFakeClock()
	checker, service := newTestChecker(t, clock)

	instance := registry.NewHTTPInstance("localhost", 8080)
	service.Register("S", instance)
	service.Renew("S", instance)

	clock.Advance(30 * time.Second)
	checker.Check()
	require.Empty(t, service.GetAllInstances("S"))

	service.Register("S", instance)
	service.Renew("S", instance)
	clock.Advance(5 * time.Second)
	checker.Check()

	assert.Len(t, service.GetAllInstances("S"), 1)
}

func TestCheckEmptyTimestamps(t *testing.T) {
	clock := newFakeClock()
	checker, _ := newTestChecker(t, clock)

	assert.NotPanics(t, func() {
		checker.Check()
	})
}
