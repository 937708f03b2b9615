package analysis

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/h2non/filetype"
)

// StorageCheck 存储文件检测结果
type StorageCheck struct {
	Exists   bool
	Empty    bool
	IsSQLite bool
	RealExt  string // 根据文件头识别出的类型
	Message  string
}

// Usable reports whether the file can be opened as the sqlite store.
func (c StorageCheck) Usable() bool {
	return !c.Exists || c.Empty || c.IsSQLite
}

// InspectStorage 读取文件头，判断 storage_path 是否是 sqlite 数据库
// 不存在或为空的文件视为可用，sqlite 会自己初始化
func InspectStorage(path string) (StorageCheck, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return StorageCheck{Message: "does not exist yet"}, nil
	}
	if err != nil {
		return StorageCheck{}, fmt.Errorf("open storage file failed: %w", err)
	}
	defer f.Close()

	// 262 bytes 是 filetype 库建议的最佳长度
	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return StorageCheck{}, fmt.Errorf("read storage header failed: %w", err)
	}
	if n == 0 {
		return StorageCheck{Exists: true, Empty: true, Message: "empty file"}, nil
	}

	kind, _ := filetype.Match(head[:n])
	if kind == filetype.Unknown {
		return StorageCheck{Exists: true, RealExt: "unknown", Message: "unknown signature"}, nil
	}
	check := StorageCheck{Exists: true, RealExt: kind.Extension}
	if kind.Extension == "sqlite" {
		check.IsSQLite = true
	} else {
		check.Message = fmt.Sprintf("header is '%s', not sqlite", kind.Extension)
	}
	return check, nil
}
