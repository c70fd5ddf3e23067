package blob

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

type memoryEntry struct {
	info Info
	data []byte
}

// Memory implements Store backed by process memory. Intended for tests and
// local demos.
type Memory struct {
	mu   sync.RWMutex
	objs map[string]memoryEntry
}

// NewMemory returns an in-memory blob store.
func NewMemory() *Memory {
	return &Memory{objs: make(map[string]memoryEntry)}
}

func (s *Memory) Driver() Driver { return DriverMemory }

func (s *Memory) Put(_ context.Context, key string, r io.Reader, contentType string) (Info, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Info{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return Info{}, ErrExists
	}
	info := Info{
		Key:          key,
		Size:         int64(len(b)),
		ContentType:  contentType,
		LastModified: time.Now().UTC(),
	}
	s.objs[key] = memoryEntry{info: info, data: b}
	return info, nil
}

func (s *Memory) Get(_ context.Context, key string) (Info, io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return Info{}, nil, ErrNotFound
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return obj.info, io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Memory) Head(_ context.Context, key string) (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objs[key]
	if !ok {
		return Info{}, ErrNotFound
	}
	return obj.info, nil
}

func (s *Memory) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[key]
	delete(s.objs, key)
	return ok, nil
}
