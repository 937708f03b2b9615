package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Hara602/inputSentry/internal/model"
)

// Mirror 将已提交的事件逐行写成 JSON，"-" 表示标准输出
type Mirror struct {
	enc    *json.Encoder
	closer io.Closer
}

func OpenMirror(path string) (*Mirror, error) {
	if path == "-" {
		return NewMirror(os.Stdout), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open mirror %s: %w", path, err)
	}
	m := NewMirror(f)
	m.closer = f
	return m, nil
}

func NewMirror(w io.Writer) *Mirror {
	return &Mirror{enc: json.NewEncoder(w)}
}

func (m *Mirror) Write(batch model.Batch) error {
	for _, ev := range batch {
		if err := m.enc.Encode(ev); err != nil {
			return fmt.Errorf("mirror event %s: %w", ev.ID, err)
		}
	}
	return nil
}

func (m *Mirror) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer.Close()
}
