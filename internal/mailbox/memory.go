package mailbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type storedMessage struct {
	raw    []byte
	parsed *Message
}

// MemorySource is an in-process Source. Sequence numbers and UIDs are the
// 1-based append position.
type MemorySource struct {
	mu          sync.Mutex
	messages    []storedMessage
	subscribers map[chan Notification]struct{}
	// SearchErr and FetchErr, when set, fail the corresponding calls.
	SearchErr error
	FetchErr  map[uint32]error
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{subscribers: make(map[chan Notification]struct{})}
}

// Append stores raw messages and notifies subscribers once for the batch.
// Unparseable messages are stored but never match a search.
func (s *MemorySource) Append(raws ...[]byte) Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raw := range raws {
		parsed, _ := Parse(raw)
		s.messages = append(s.messages, storedMessage{raw: raw, parsed: parsed})
	}
	n := Notification{Total: uint32(len(s.messages)), Added: uint32(len(raws))}
	for ch := range s.subscribers {
		select {
		case ch <- n:
		default:
		}
	}
	return n
}

// Len returns the number of stored messages.
func (s *MemorySource) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Subscribe implements Source.
func (s *MemorySource) Subscribe(ctx context.Context) (<-chan Notification, error) {
	ch := make(chan Notification, 16)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subscribers, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

// Search implements Source.
func (s *MemorySource) Search(ctx context.Context, q Query) ([]Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}

	since := sinceDay(q.Since)
	var out []Handle
	for i, m := range s.messages {
		if m.parsed == nil {
			continue
		}
		p := m.parsed
		if !since.IsZero() && p.Date.Before(since) {
			continue
		}
		if q.From != "" && !containsFold(p.Sender, q.From) {
			continue
		}
		if q.Subject != "" && !containsFold(p.Subject, q.Subject) {
			continue
		}
		if len(q.BodyAny) > 0 && !containsAny(p.Text, q.BodyAny) {
			continue
		}
		n := uint32(i + 1)
		out = append(out, Handle{UID: n, Seq: n})
	}
	return out, nil
}

// FetchBody implements Source.
func (s *MemorySource) FetchBody(ctx context.Context, h Handle) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := h.UID
	if n == 0 {
		n = h.Seq
	}
	if err, ok := s.FetchErr[n]; ok {
		return nil, err
	}
	if n == 0 || int(n) > len(s.messages) {
		return nil, fmt.Errorf("FetchBody: no message %d", n)
	}
	return s.messages[n-1].raw, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if containsFold(s, tok) {
			return true
		}
	}
	return false
}
