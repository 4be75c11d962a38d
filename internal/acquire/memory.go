package acquire

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Memory is an in-process Acquirer. Delay holds every Fetch back.
type Memory struct {
	Bucket string
	Delay  time.Duration

	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemory creates an empty store for bucket.
func NewMemory(bucket string) *Memory {
	return &Memory{Bucket: bucket, objects: make(map[string][]byte)}
}

// Fetch implements Acquirer. The delay ignores cancellation.
func (m *Memory) Fetch(_ context.Context, ref string) ([]byte, error) {
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	bucket, object, err := ParseURI(ref)
	if err != nil {
		bucket, object = m.Bucket, ref
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[URI(bucket, object)]
	if !ok {
		return nil, fmt.Errorf("Fetch: no object %s", URI(bucket, object))
	}
	return data, nil
}

// Upload implements Acquirer.
func (m *Memory) Upload(_ context.Context, objectName string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("Upload: %w", err)
	}
	ref := URI(m.Bucket, objectName)
	m.mu.Lock()
	m.objects[ref] = data
	m.mu.Unlock()
	return ref, nil
}
