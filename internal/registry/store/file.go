package store

import (
	"os"

	"maregistry/internal/registry"
	"maregistry/pkg/utils"

	"go.uber.org/zap"
)

// FileStore 基于单个JSON文件的快照存储
// 通过临时文件加重命名实现原子写入，文件缺失视为无历史状态
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore 创建文件快照存储
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		path:   path,
		logger: logger,
	}
}

// Save 将快照写入文件
func (s *FileStore) Save(snapshot *registry.Snapshot) error {
	if snapshot == nil {
		return nil
	}

	data, err := snapshot.Encode()
	if err != nil {
		s.logger.Error("序列化快照失败", zap.Error(err))
		return err
	}

	if err := utils.WriteFileAtomic(s.path, data, 0644); err != nil {
		s.logger.Error("保存快照失败",
			zap.String("path", s.path),
			zap.Error(err))
		return registry.NewRegistryErrorWithCause(registry.ErrCodeStoreIO, "保存快照失败", err)
	}

	s.logger.Debug("快照已保存",
		zap.String("path", s.path),
		zap.Int64("version", snapshot.Version))

	return nil
}

// Load 从文件加载快照
func (s *FileStore) Load() (*registry.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		s.logger.Error("读取快照文件失败",
			zap.String("path", s.path),
			zap.Error(err))
		return nil, registry.NewRegistryErrorWithCause(registry.ErrCodeStoreIO, "读取快照文件失败", err)
	}

	snapshot, err := registry.DecodeSnapshot(data)
	if err != nil {
		s.logger.Warn("快照文件内容无效",
			zap.String("path", s.path),
			zap.Error(err))
		return nil, err
	}

	return snapshot, nil
}
