// Package mailbox pulls raw text out of an email inbox and turns it into
// candidate task and meeting records.
package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
)

// Message is a decoded inbox message.
type Message struct {
	UID     uint32
	Subject string
	From    string
	Body    string
}

// Fetcher retrieves unread messages from an inbox.
type Fetcher interface {
	FetchUnseen(ctx context.Context) ([]Message, error)
}

// IMAPConfig holds mail server settings.
type IMAPConfig struct {
	Address  string // host:port, TLS
	Username string
	Password string
	Folder   string
	Limit    int // most recent N unseen messages
}

// IMAPFetcher implements Fetcher over an IMAP mailbox. Each FetchUnseen
// call dials a fresh connection and logs out when done.
type IMAPFetcher struct {
	cfg IMAPConfig
}

// NewIMAPFetcher creates a fetcher for the configured mailbox.
func NewIMAPFetcher(cfg IMAPConfig) *IMAPFetcher {
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	return &IMAPFetcher{cfg: cfg}
}

// FetchUnseen returns the most recent unseen messages, bounded by the
// configured limit. Bodies prefer text/plain, fall back to text/html, and
// degrade to empty on decode failure.
func (f *IMAPFetcher) FetchUnseen(ctx context.Context) ([]Message, error) {
	c, err := imapclient.DialTLS(f.cfg.Address, nil)
	if err != nil {
		return nil, fmt.Errorf("mailbox: dial %s: %w", f.cfg.Address, err)
	}
	defer c.Close()

	if err := c.Login(f.cfg.Username, f.cfg.Password).Wait(); err != nil {
		return nil, fmt.Errorf("mailbox: login: %w", err)
	}
	defer c.Logout()

	if _, err := c.Select(f.cfg.Folder, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("mailbox: select %s: %w", f.cfg.Folder, err)
	}

	searchData, err := c.Search(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("mailbox: search unseen: %w", err)
	}
	nums := searchData.AllSeqNums()
	if len(nums) == 0 {
		return nil, nil
	}
	if len(nums) > f.cfg.Limit {
		nums = nums[len(nums)-f.cfg.Limit:]
	}

	bodySection := &imap.FetchItemBodySection{}
	buffers, err := c.Fetch(imap.SeqSetNum(nums...), &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("mailbox: fetch: %w", err)
	}

	out := make([]Message, 0, len(buffers))
	for _, buf := range buffers {
		msg := Message{UID: uint32(buf.UID)}
		if buf.Envelope != nil {
			msg.Subject = buf.Envelope.Subject
			if len(buf.Envelope.From) > 0 {
				msg.From = buf.Envelope.From[0].Addr()
			}
		}
		msg.Body = decodeBody(buf.FindBodySection(bodySection))
		out = append(out, msg)
	}
	return out, nil
}

// decodeBody extracts a text body from a raw RFC 822 message: text/plain
// first, text/html as fallback, empty string when neither decodes.
func decodeBody(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	var plain, html string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		switch {
		case strings.EqualFold(ct, "text/plain") && plain == "":
			if b, readErr := io.ReadAll(p.Body); readErr == nil {
				plain = string(b)
			}
		case strings.EqualFold(ct, "text/html") && html == "":
			if b, readErr := io.ReadAll(p.Body); readErr == nil {
				html = string(b)
			}
		}
	}
	if plain != "" {
		return plain
	}
	return html
}
