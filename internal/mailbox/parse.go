package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/net/html"
)

// Message is a parsed alert.
type Message struct {
	// From is the bare lower-case sender address.
	From string
	// Sender is the From header as received, display name included.
	Sender  string
	Subject string
	Date    time.Time
	// Text is the body with line breaks removed and whitespace collapsed.
	Text string
}

// Parse decodes a raw message. The plain text part is preferred; an HTML
// part is reduced to its text nodes.
func Parse(raw []byte) (*Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrParse, err)
	}
	defer mr.Close()

	msg := &Message{Sender: strings.TrimSpace(mr.Header.Get("From"))}
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		msg.From = strings.ToLower(addrs[0].Address)
	}
	if s, err := mr.Header.Subject(); err == nil {
		msg.Subject = s
	}
	if d, err := mr.Header.Date(); err == nil {
		msg.Date = d.UTC()
	}

	var plain, markup string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("%w: reading part: %v", ErrParse, err)
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		body, err := io.ReadAll(p.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: reading body: %v", ErrParse, err)
		}
		switch ct {
		case "text/plain", "":
			if plain == "" {
				plain = string(body)
			}
		case "text/html":
			if markup == "" {
				markup = string(body)
			}
		}
	}

	text := plain
	if strings.TrimSpace(text) == "" && markup != "" {
		text = HTMLText(markup)
	}
	msg.Text = collapse(text)
	return msg, nil
}

// HTMLText joins the trimmed text nodes of an HTML document with single
// spaces. Style and script content is dropped.
func HTMLText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var parts []string
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(parts, " ")
		case html.StartTagToken:
			if name, _ := z.TagName(); hidden(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); hidden(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if t := strings.TrimSpace(string(z.Text())); t != "" {
				parts = append(parts, t)
			}
		}
	}
}

func hidden(tag []byte) bool {
	return string(tag) == "style" || string(tag) == "script"
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
