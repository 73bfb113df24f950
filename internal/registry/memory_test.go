package registry

import (
	"sync"
	"testing"
	"time"

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

func TestRegister(t *testing.T) {
	t.Run("基本注册与查询", func(t *testing.T) {
		r := NewMemoryRegistry()
		instance := NewHTTPInstance("localhost", 8080)

		stored := r.Register("UserService", instance)
		require.NotNil(t, stored)
		assert.True(t, stored.Equals(instance))

		instances := r.GetAllInstances("UserService")
		require.Len(t, instances, 1)
		assert.True(t, instances[0].Equals(instance))
	})

	t.Run("重复注册不产生重复实例", func(t *testing.T) {
		r := NewMemoryRegistry()
		instance := NewHTTPInstance("localhost", 8080)

		r.Register("UserService", instance)
		r.Register("UserService", instance)

		assert.Len(t, r.GetAllInstances("UserService"), 1)
	})

	t.Run("注册保持插入顺序", func(t *testing.T) {
		r := NewMemoryRegistry()
		first := NewHTTPInstance("host-a", 8080)
		second := NewHTTPInstance("host-b", 8081)
		third := NewHTTPInstance("host-c", 8082)

		r.Register("S", first)
		r.Register("S", second)
		r.Register("S", third)
		r.Register("S", second) // 重复注册不改变顺序

		instances := r.GetAllInstances("S")
		require.Len(t, instances, 3)
		assert.Equal(t, "host-a", instances[0].Host)
		assert.Equal(t, "host-b", instances[1].Host)
		assert.Equal(t, "host-c", instances[2].Host)
	})

	t.Run("注册不影响版本号和时间戳", func(t *testing.T) {
		r := NewMemoryRegistry()
		r.Register("S", NewHTTPInstance("localhost", 8080))

		assert.Equal(t, int64(0), r.Version("S"))
		assert.Equal(t, int64(0), r.GlobalVersion())
		assert.Empty(t, r.Timestamps())
	})

	t.Run("parameters不参与身份比较", func(t *testing.T) {
		r := NewMemoryRegistry()
		a := NewHTTPInstance("localhost", 8080)
		a.Parameters["env"] = "dev"
		b := NewHTTPInstance("localhost", 8080)
		b.Parameters["env"] = "prod"

		r.Register("S", a)
		r.Register("S", b)

		assert.Len(t, r.GetAllInstances("S"), 1)
	})
}

func TestUnregister(t *testing.T) {
	t.Run("注销指定实例", func(t *testing.T) {
		r := NewMemoryRegistry()
		a := NewHTTPInstance("localhost", 8080)
		b := NewHTTPInstance("localhost", 8081)

		r.Register("UserService", a)
		r.Register("UserService", b)
		r.Unregister("UserService", a)

		instances := r.GetAllInstances("UserService")
		require.Len(t, instances, 1)
		assert.Equal(t, 8081, instances[0].Port)
	})

	t.Run("注销不存在的服务静默成功", func(t *testing.T) {
		r := NewMemoryRegistry()
		instance := NewHTTPInstance("localhost", 8080)

		result := r.Unregister("unknown", instance)
		assert.Equal(t, instance, result)
	})

	t.Run("注销不存在的实例静默成功", func(t *testing.T) {
		r := NewMemoryRegistry()
		r.Register("S", NewHTTPInstance("localhost", 8080))
		r.Unregister("S", NewHTTPInstance("localhost", 9999))

		assert.Len(t, r.GetAllInstances("S"), 1)
	})

	t.Run("注册后注销再注册实例仍存在", func(t *testing.T) {
		r := NewMemoryRegistry()
		instance := NewHTTPInstance("localhost", 8080)

		r.Register("S", instance)
		r.Unregister("S", instance)
		r.Register("S", instance)

		assert.Len(t, r.GetAllInstances("S"), 1)
	})
}

func TestGetAllInstances(t *testing.T) {
	t.Run("不存在的服务返回nil", func(t *testing.T) {
		r := NewMemoryRegistry()
		assert.Nil(t, r.GetAllInstances("unknown"))
	})

	t.Run("注销最后一个实例后返回空列表而非nil", func(t *testing.T) {
		r := NewMemoryRegistry()
		instance := NewHTTPInstance("localhost", 8080)
		r.Register("S", instance)
		r.Unregister("S", instance)

		instances := r.GetAllInstances("S")
		assert.NotNil(t, instances)
		assert.Empty(t, instances)
	})

	t.Run("返回防御性拷贝", func(t *testing.T) {
		r := NewMemoryRegistry()
		r.Register("S", NewHTTPInstance("localhost", 8080))

		instances := r.GetAllInstances("S")
		instances[0].Host = "mutated"

		assert.Equal(t, "localhost", r.GetAllInstances("S")[0].Host)
	})
}

func TestRenew(t *testing.T) {
	t.Run("续约递增服务版本号和全局版本号", func(t *testing.T) {
		r := NewMemoryRegistry()
		instance := NewHTTPInstance("localhost", 8080)

		assert.Equal(t, int64(0), r.Version("X"))

		r.Renew("X", instance)
		assert.Equal(t, int64(1), r.Version("X"))
		assert.Equal(t, int64(1), r.GlobalVersion())

		r.Renews([]string{"X", "Y"}, instance)
		assert.Equal(t, int64(2), r.Version("X"))
		assert.Equal(t, int64(1), r.Version("Y"))
		assert.Equal(t, int64(2), r.GlobalVersion())
	})

	t.Run("续约写入时间戳", func(t *testing.T) {
		clock := newFakeClock()
		clock.Advance(1234 * time.Millisecond)
		r := NewMemoryRegistry(WithClock(clock.Now))
		instance := NewHTTPInstance("localhost", 8080)

		r.Renew("S", instance)

		timestamps := r.Timestamps()
		key := TimestampKey("S", instance)
		require.Contains(t, timestamps, key)
		assert.Equal(t, int64(1234), timestamps[key])
	})

	t.Run("不校验实例是否已注册", func(t *testing.T) {
		r := NewMemoryRegistry()
		instance := NewHTTPInstance("localhost", 8080)

		r.Renew("never-registered", instance)

		assert.Len(t, r.Timestamps(), 1)
		assert.Nil(t, r.GetAllInstances("never-registered"))
	})

	t.Run("同一实例两次续约时间戳按续约顺序覆盖", func(t *testing.T) {
		clock := newFakeClock()
		r := NewMemoryRegistry(WithClock(clock.Now))
		instance := NewHTTPInstance("localhost", 8080)
		key := TimestampKey("S", instance)

		r.Renew("S", instance)
		first := r.Timestamps()[key]

		clock.Advance(5 * time.Second)
		r.Renew("S", instance)
		second := r.Timestamps()[key]

		assert.Greater(t, second, first)
	})
}

func TestVersions(t *testing.T) {
	r := NewMemoryRegistry()
	instance := NewHTTPInstance("localhost", 8080)

	r.Renew("A", instance)
	r.Renew("A", instance)
	r.Renew("B", instance)

	result := r.Versions([]string{"A", "B", "C"})
	assert.Equal(t, int64(2), result["A"])
	assert.Equal(t, int64(1), result["B"])
	assert.Equal(t, int64(0), result["C"])
}

func TestSnapshotRestore(t *testing.T) {
	t.Run("快照版本号递增", func(t *testing.T) {
		r := NewMemoryRegistry()

		first := r.Snapshot()
		second := r.Snapshot()

		assert.Equal(t, int64(1), first.Version)
		assert.Equal(t, int64(2), second.Version)
	})

	t.Run("快照与原状态机读操作不可区分", func(t *testing.T) {
		sm1 := NewMemoryRegistry()
		i1 := NewHTTPInstance("host-a", 8080)
		i2 := NewHTTPInstance("host-b", 8081)
		i3 := NewHTTPInstance("host-c", 8082)

		sm1.Register("UserService", i1)
		sm1.Register("UserService", i2)
		sm1.Register("OrderService", i3)
		sm1.Renew("UserService", i1)
		sm1.Renew("UserService", i2)
		sm1.Renews([]string{"UserService", "OrderService"}, i3)

		snap := sm1.Snapshot()

		sm2 := NewMemoryRegistry()
		sm2.Restore(snap)

		for _, service := range []string{"UserService", "OrderService"} {
			expect := sm1.GetAllInstances(service)
			actual := sm2.GetAllInstances(service)
			require.Len(t, actual, len(expect))
			for i := range expect {
				assert.True(t, expect[i].Equals(actual[i]))
			}
			assert.Equal(t, sm1.Version(service), sm2.Version(service))
		}

		assert.Equal(t, sm1.Timestamps(), sm2.Timestamps())
	})

	t.Run("恢复后的快照版本号等于快照版本号加1", func(t *testing.T) {
		sm1 := NewMemoryRegistry()
		sm1.Register("S", NewHTTPInstance("localhost", 8080))
		snap := sm1.Snapshot()

		sm2 := NewMemoryRegistry()
		sm2.Restore(snap)

		next := sm2.Snapshot()
		assert.Equal(t, snap.Version+1, next.Version)
		assert.Len(t, next.Registry["S"], 1)
	})

	t.Run("恢复清空原有状态", func(t *testing.T) {
		sm1 := NewMemoryRegistry()
		sm1.Register("old", NewHTTPInstance("localhost", 1111))
		sm1.Renew("old", NewHTTPInstance("localhost", 1111))

		sm2 := NewMemoryRegistry()
		sm2.Register("new", NewHTTPInstance("localhost", 2222))
		snap := sm2.Snapshot()

		sm1.Restore(snap)

		assert.Nil(t, sm1.GetAllInstances("old"))
		assert.Equal(t, int64(0), sm1.Version("old"))
		assert.Empty(t, sm1.Timestamps())
		require.Len(t, sm1.GetAllInstances("new"), 1)
	})

	t.Run("恢复后全局版本号取较大者", func(t *testing.T) {
		r := NewMemoryRegistry()
		instance := NewHTTPInstance("localhost", 8080)
		for i := 0; i < 10; i++ {
			r.Renew("S", instance)
		}
		require.Equal(t, int64(10), r.GlobalVersion())

		// 快照版本号小于当前全局版本号时保持不变
		low := NewSnapshot()
		low.Version = 3
		r.Restore(low)
		assert.Equal(t, int64(10), r.GlobalVersion())
		assert.Equal(t, int64(3), r.SnapshotVersion())

		// 快照版本号更大时抬升全局版本号
		high := NewSnapshot()
		high.Version = 42
		r.Restore(high)
		assert.Equal(t, int64(42), r.GlobalVersion())
		assert.Equal(t, int64(42), r.SnapshotVersion())
	})

	t.Run("恢复nil快照不做任何事", func(t *testing.T) {
		r := NewMemoryRegistry()
		r.Register("S", NewHTTPInstance("localhost", 8080))

		r.Restore(nil)

		assert.Len(t, r.GetAllInstances("S"), 1)
	})
}

func TestConcurrentRenewAndSweepRead(t *testing.T) {
	// 续约写入与存活检查读取并发执行不应产生竞争
	r := NewMemoryRegistry()
	instance := NewHTTPInstance("localhost", 8080)
	r.Register("S", instance)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.Renew("S", instance)
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = r.Timestamps()
		}
	}()

	time.Sleep(20 * time.Millisecond)
	close(stop)
	wg.Wait()

	assert.Greater(t, r.GlobalVersion(), int64(0))
}
