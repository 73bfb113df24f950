package store

import (
	"os"
	"path/filepath"
	"testing"

	"maregistry/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	s := NewFileStore(path, nil)

	snapshot := registry.NewSnapshot()
	snapshot.Version = 5
	snapshot.Registry["UserService"] = []*registry.InstanceMeta{
		registry.NewHTTPInstance("localhost", 8080),
	}
	snapshot.Versions["UserService"] = 3
	snapshot.Timestamps["UserService@http://localhost:8080/"] = 1000

	require.NoError(t, s.Save(snapshot))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(5), loaded.Version)
	require.Len(t, loaded.Registry["UserService"], 1)
	assert.Equal(t, 8080, loaded.Registry["UserService"][0].Port)
	assert.Equal(t, int64(3), loaded.Versions["UserService"])
	assert.Equal(t, int64(1000), loaded.Timestamps["UserService@http://localhost:8080/"])
}

func TestFileStoreMissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "missing.json"), nil)

	loaded, err := s.Load()
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	s := NewFileStore(path, nil)
	loaded, err := s.Load()
	assert.Error(t, err)
	assert.Nil(t, loaded)
	assert.Equal(t, registry.ErrCodeSnapshotDecode, registry.GetErrorCode(err))
}

func TestFileStoreAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	s := NewFileStore(path, nil)

	snapshot := registry.NewSnapshot()
	snapshot.Version = 1
	require.NoError(t, s.Save(snapshot))

	snapshot.Version = 2
	require.NoError(t, s.Save(snapshot))

	// 写入完成后不残留临时文件
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "snapshot.json", entries[0].Name())

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Version)
}

func TestFileStoreCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "snapshot.json")
	s := NewFileStore(path, nil)

	require.NoError(t, s.Save(registry.NewSnapshot()))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.NotNil(t, loaded)
}

func TestFileStoreNilSnapshot(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "snapshot.json"), nil)
	assert.NoError(t, s.Save(nil))
}

func TestFileStoreRoundTripThroughRegistry(t *testing.T) {
	// 状态机 -> 持久化 -> 新状态机的完整链路
	path := filepath.Join(t.TempDir(), "snapshot.json")
	s := NewFileStore(path, nil)

	sm1 := registry.NewMemoryRegistry()
	instance := registry.NewHTTPInstance("localhost", 8080)
	sm1.Register("S", instance)
	sm1.Renew("S", instance)

	require.NoError(t, s.Save(sm1.Snapshot()))

	loaded, err := s.Load()
	require.NoError(t, err)

	sm2 := registry.NewMemoryRegistry()
	sm2.Restore(loaded)

	require.Len(t, sm2.GetAllInstances("S"), 1)
	assert.Equal(t, sm1.Version("S"), sm2.Version("S"))
	assert.Equal(t, sm1.Timestamps(), sm2.Timestamps())
}
