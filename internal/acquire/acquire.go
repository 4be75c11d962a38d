// Package acquire fetches statement documents from object storage.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrTimeout reports an acquisition that did not finish in time.
var ErrTimeout = errors.New("acquisition timed out")

// Acquirer stores and retrieves documents by reference.
type Acquirer interface {
	// Fetch returns the document bytes for ref.
	Fetch(ctx context.Context, ref string) ([]byte, error)
	// Upload stores the content under objectName and returns its reference.
	Upload(ctx context.Context, objectName string, r io.Reader) (string, error)
}

// FetchWithTimeout bounds a.Fetch by d. The bound holds even when the
// acquirer ignores cancellation.
func FetchWithTimeout(ctx context.Context, a Acquirer, ref string, d time.Duration) ([]byte, error) {
	if d <= 0 {
		return a.Fetch(ctx, ref)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := a.Fetch(ctx, ref)
		done <- result{data, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, ref, d)
		}
		return r.data, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, ref, d)
		}
		return nil, ctx.Err()
	}
}

// ParseURI splits gs://bucket/path/to/object into bucket and object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// URI builds the reference of an object.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// Filename returns the last path element of a reference.
// e.g., "gs://bucket/folder/file.json" → "file.json"
func Filename(ref string) string {
	if _, object, err := ParseURI(ref); err == nil {
		return path.Base(object)
	}
	return path.Base(ref)
}
