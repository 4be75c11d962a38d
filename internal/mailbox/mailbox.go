// Package mailbox is the mail source the ingestion pipeline reads alerts
// from: new-message notifications, searches and body retrieval, plus MIME
// parsing of fetched bodies.
package mailbox

import (
	"context"
	"errors"
	"time"
)

// ErrParse reports a message body that could not be decoded.
var ErrParse = errors.New("malformed message")

// Notification announces that Added messages arrived and the mailbox now
// holds Total messages.
type Notification struct {
	Total uint32
	Added uint32
}

// Handle addresses one message. UID is used when set, otherwise Seq.
type Handle struct {
	UID uint32
	Seq uint32
}

// TailHandles returns the sequence handles of the messages announced by n,
// oldest first.
func TailHandles(n Notification) []Handle {
	added := n.Added
	if added > n.Total {
		added = n.Total
	}
	out := make([]Handle, 0, added)
	for seq := n.Total - added + 1; seq <= n.Total && added > 0; seq++ {
		out = append(out, Handle{Seq: seq})
	}
	return out
}

// Query selects messages. Zero fields do not constrain. Since has day
// granularity. BodyAny matches messages whose body contains any token.
type Query struct {
	Since   time.Time
	From    string
	Subject string
	BodyAny []string
}

// Source is the mail collaborator of the ingestion pipeline.
type Source interface {
	// Subscribe delivers notifications until ctx is done, then closes the
	// channel.
	Subscribe(ctx context.Context) (<-chan Notification, error)
	// Search returns matching handles in mailbox order.
	Search(ctx context.Context, q Query) ([]Handle, error)
	// FetchBody returns the raw RFC 5322 message.
	FetchBody(ctx context.Context, h Handle) ([]byte, error)
}

func sinceDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
