package objectstore

import (
	"context"
	"io"
	"strings"

	"github.com/laurikarhu/streamcdn/internal/apperr"
)

// MemoryReader is an in-memory Reader backed by a plain map, used by the
// gateway's handler tests in place of a live MinIO bucket.
type MemoryReader struct {
	Objects map[string][]byte
}

// NewMemoryReader builds a MemoryReader over objects.
func NewMemoryReader(objects map[string][]byte) *MemoryReader {
	return &MemoryReader{Objects: objects}
}

func (m *MemoryReader) ReadText(_ context.Context, key string) (string, error) {
	data, ok := m.Objects[key]
	if !ok {
		return "", apperr.ErrResourceAbsent
	}
	return string(data), nil
}

func (m *MemoryReader) Stream(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.Objects[key]
	if !ok {
		return nil, apperr.ErrResourceAbsent
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}
