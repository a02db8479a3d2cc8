package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"rfqcrm/internal"
	"rfqcrm/internal/config"
)

const Provider = "imap"

type Connector struct {
	addr          string
	host          string
	secure        bool
	user          string
	password      string
	markSeen      bool
	subjectFilter string
}

func NewConnector(cfg config.Config) (*Connector, error) {
	for _, req := range []struct{ key, value string }{
		{"IMAP_HOST", cfg.IMAPHost},
		{"IMAP_USER", cfg.IMAPUser},
		{"IMAP_PASSWORD", cfg.IMAPPassword},
	} {
		if err := cfg.Require(req.key, req.value); err != nil {
			return nil, err
		}
	}

	return &Connector{
		addr:          fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort),
		host:          cfg.IMAPHost,
		secure:        cfg.IMAPSecure,
		user:          cfg.IMAPUser,
		password:      cfg.IMAPPassword,
		markSeen:      cfg.IMAPMarkSeen,
		subjectFilter: strings.TrimSpace(cfg.IMAPSubjectFilter),
	}, nil
}

func (c *Connector) dial() (*imapclient.Client, error) {
	if c.secure {
		return imapclient.DialTLS(c.addr, &tls.Config{ServerName: c.host})
	}
	return imapclient.Dial(c.addr)
}

// searchCriteria selects unseen messages, narrowed by subject when a filter
// is configured (DIBBS notices all carry the same subject prefix).
func (c *Connector) searchCriteria() *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if c.subjectFilter != "" {
		criteria.Header.Add("Subject", c.subjectFilter)
	}
	return criteria
}

// FetchInbox returns up to max of the newest unseen messages in mailbox.
func (c *Connector) FetchInbox(ctx context.Context, mailbox string, max int) ([]internal.FetchedMailMessage, error) {
	client, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", c.addr, err)
	}
	defer client.Logout()

	// go-imap v1 has no context support; logging out unblocks pending calls.
	stop := context.AfterFunc(ctx, func() { _ = client.Logout() })
	defer stop()

	if err := client.Login(c.user, c.password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := client.Select(mailbox, false); err != nil {
		return nil, fmt.Errorf("imap select %s: %w", mailbox, err)
	}

	ids, err := client.Search(c.searchCriteria())
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if max > 0 && len(ids) > max {
		ids = ids[len(ids)-max:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	section := &imap.BodySectionName{Peek: !c.markSeen}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() { done <- client.Fetch(seqset, items, messages) }()

	out := make([]internal.FetchedMailMessage, 0, len(ids))
	var readErr error
	for msg := range messages {
		if msg == nil || readErr != nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			readErr = err
			continue
		}
		out = append(out, toFetched(msg, raw))
	}
	if err := <-done; err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	return out, nil
}

func toFetched(msg *imap.Message, raw []byte) internal.FetchedMailMessage {
	out := internal.FetchedMailMessage{
		Provider:   Provider,
		MessageID:  fmt.Sprintf("imap-%d", msg.Uid),
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
		Raw:        raw,
	}
	if msg.Envelope != nil {
		if msg.Envelope.MessageId != "" {
			out.MessageID = msg.Envelope.MessageId
		}
		out.Subject = msg.Envelope.Subject
		out.From = formatAddresses(msg.Envelope.From)
	}
	if !msg.InternalDate.IsZero() {
		out.ReceivedAt = msg.InternalDate.UTC().Format(time.RFC3339)
	}
	return out
}

func formatAddresses(addrs []*imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		email := strings.Trim(a.MailboxName+"@"+a.HostName, "@")
		if a.PersonalName != "" {
			email = fmt.Sprintf("%s <%s>", a.PersonalName, email)
		}
		parts = append(parts, email)
	}
	return strings.Join(parts, ", ")
}
