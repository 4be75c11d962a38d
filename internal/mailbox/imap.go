package mailbox

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/dvloznov/finance-reconciler/internal/logger"
)

// IMAPConfig holds the connection settings of an IMAP mailbox.
type IMAPConfig struct {
	Addr     string
	Username string
	Password string
	Mailbox  string
}

// IMAPSource reads alerts from an IMAP server. Commands share one
// connection; Subscribe opens a dedicated connection for IDLE.
type IMAPSource struct {
	cfg IMAPConfig

	mu sync.Mutex
	c  *client.Client
}

// DialIMAP connects over TLS, logs in and selects the mailbox read-only.
func DialIMAP(ctx context.Context, cfg IMAPConfig) (*IMAPSource, error) {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	c, _, err := dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &IMAPSource{cfg: cfg, c: c}, nil
}

func dial(ctx context.Context, cfg IMAPConfig) (*client.Client, *imap.MailboxStatus, error) {
	log := logger.FromContext(ctx)

	c, err := client.DialTLS(cfg.Addr, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("DialIMAP: connecting to %s: %w", cfg.Addr, err)
	}
	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, nil, fmt.Errorf("DialIMAP: login: %w", err)
	}
	status, err := c.Select(cfg.Mailbox, true)
	if err != nil {
		_ = c.Logout()
		return nil, nil, fmt.Errorf("DialIMAP: selecting %s: %w", cfg.Mailbox, err)
	}

	log.Info().
		Str("addr", cfg.Addr).
		Str("mailbox", cfg.Mailbox).
		Uint32("messages", status.Messages).
		Msg("Connected to IMAP mailbox")
	return c, status, nil
}

// Close logs out.
func (s *IMAPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Logout()
}

// Subscribe implements Source. Notifications carry the growth of the
// mailbox since the previous one.
func (s *IMAPSource) Subscribe(ctx context.Context) (<-chan Notification, error) {
	c, status, err := dial(ctx, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("Subscribe: %w", err)
	}

	updates := make(chan client.Update, 16)
	c.Updates = updates
	out := make(chan Notification, 16)
	stop := make(chan struct{})
	idleDone := make(chan error, 1)

	go func() { idleDone <- c.Idle(stop, nil) }()

	go func() {
		log := logger.FromContext(ctx)
		defer close(out)
		defer func() { _ = c.Logout() }()

		last := status.Messages
		for {
			select {
			case <-ctx.Done():
				close(stop)
				<-idleDone
				return
			case err := <-idleDone:
				log.Error().Err(err).Msg("IMAP IDLE ended")
				return
			case u := <-updates:
				upd, ok := u.(*client.MailboxUpdate)
				if !ok || upd.Mailbox == nil {
					continue
				}
				total := upd.Mailbox.Messages
				if total <= last {
					last = total
					continue
				}
				n := Notification{Total: total, Added: total - last}
				last = total
				select {
				case out <- n:
				case <-ctx.Done():
				}
			}
		}
	}()
	return out, nil
}

// Search implements Source.
func (s *IMAPSource) Search(ctx context.Context, q Query) ([]Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	uids, err := s.c.UidSearch(searchCriteria(q))
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	out := make([]Handle, len(uids))
	for i, uid := range uids {
		out[i] = Handle{UID: uid}
	}
	return out, nil
}

func searchCriteria(q Query) *imap.SearchCriteria {
	c := imap.NewSearchCriteria()
	if since := sinceDay(q.Since); !since.IsZero() {
		c.Since = since
	}
	if q.From != "" {
		c.Header.Add("From", q.From)
	}
	if q.Subject != "" {
		c.Header.Add("Subject", q.Subject)
	}
	switch len(q.BodyAny) {
	case 0:
	case 1:
		c.Body = []string{q.BodyAny[0]}
	default:
		c.Or = orBody(q.BodyAny).Or
	}
	return c
}

func orBody(tokens []string) *imap.SearchCriteria {
	leaf := &imap.SearchCriteria{Body: []string{tokens[0]}}
	if len(tokens) == 1 {
		return leaf
	}
	return &imap.SearchCriteria{Or: [][2]*imap.SearchCriteria{{leaf, orBody(tokens[1:])}}}
}

// FetchBody implements Source.
func (s *IMAPSource) FetchBody(ctx context.Context, h Handle) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	set := new(imap.SeqSet)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem()}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	if h.UID != 0 {
		set.AddNum(h.UID)
		go func() { done <- s.c.UidFetch(set, items, messages) }()
	} else {
		set.AddNum(h.Seq)
		go func() { done <- s.c.Fetch(set, items, messages) }()
	}

	var raw []byte
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		b, err := io.ReadAll(body)
		if err != nil {
			<-done
			return nil, fmt.Errorf("FetchBody: reading %+v: %w", h, err)
		}
		raw = b
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("FetchBody: fetching %+v: %w", h, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("FetchBody: no body for %+v", h)
	}
	return raw, nil
}
