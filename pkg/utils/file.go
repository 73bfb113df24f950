package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic 先写临时文件再重命名，保证并发读取方不会看到半写状态
// filename: 目标文件路径
// content: 要写入的内容
// perm: 文件权限，如果为0则默认使用0644
func WriteFileAtomic(filename string, content []byte, perm os.FileMode) error {
	if perm == 0 {
		perm = 0644
	}

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, content, perm); err != nil {
		return fmt.Errorf("写入临时文件失败: %w", err)
	}

	if err := os.Rename(tmp, filename); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("重命名临时文件失败: %w", err)
	}

	return nil
}

// FileExists 检查文件是否存在
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
