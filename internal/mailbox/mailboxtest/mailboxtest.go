// Package mailboxtest builds raw alert messages for tests.
package mailboxtest

import (
	"bytes"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
)

func header(from, subject string, date time.Time) mail.Header {
	var h mail.Header
	addr, err := mail.ParseAddress(from)
	if err != nil {
		panic(err)
	}
	h.SetAddressList("From", []*mail.Address{addr})
	h.SetAddressList("To", []*mail.Address{{Address: "owner@example.com"}})
	h.SetSubject(subject)
	h.SetDate(date)
	return h
}

func write(w io.WriteCloser, err error, body string) {
	if err != nil {
		panic(err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
}

// Plain builds a single part text/plain message.
func Plain(from, subject string, date time.Time, text string) []byte {
	var buf bytes.Buffer
	h := header(from, subject, date)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	write(w, err, text)
	return buf.Bytes()
}

// HTML builds a single part text/html message.
func HTML(from, subject string, date time.Time, doc string) []byte {
	var buf bytes.Buffer
	h := header(from, subject, date)
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	write(w, err, doc)
	return buf.Bytes()
}

// Alternative builds a multipart/alternative message with an HTML part
// followed by a plain text part.
func Alternative(from, subject string, date time.Time, text, doc string) []byte {
	var buf bytes.Buffer
	iw, err := mail.CreateInlineWriter(&buf, header(from, subject, date))
	if err != nil {
		panic(err)
	}

	var hh mail.InlineHeader
	hh.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	w, err := iw.CreatePart(hh)
	write(w, err, doc)

	var ph mail.InlineHeader
	ph.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	w, err = iw.CreatePart(ph)
	write(w, err, text)

	if err := iw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
