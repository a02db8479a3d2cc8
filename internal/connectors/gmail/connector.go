package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"rfqcrm/internal"
	"rfqcrm/internal/config"
)

const Provider = "gmail"

type Connector struct {
	service *gmail.Service
	query   string
}

func NewConnector(ctx context.Context, cfg config.Config) (*Connector, error) {
	for _, req := range []struct{ key, value string }{
		{"GMAIL_CLIENT_ID", cfg.GmailClientID},
		{"GMAIL_CLIENT_SECRET", cfg.GmailClientSecret},
		{"GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken},
	} {
		if err := cfg.Require(req.key, req.value); err != nil {
			return nil, err
		}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
	tokens := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokens))
	if err != nil {
		return nil, err
	}
	return &Connector{service: svc, query: cfg.GmailQuery}, nil
}

// FetchInbox lists up to max messages under label matching the configured
// search query and downloads each in raw form.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	var refs []*gmail.Message
	call := c.service.Users.Messages.List("me").LabelIds(label).Context(ctx)
	if c.query != "" {
		call = call.Q(c.query)
	}
	if max > 0 {
		call = call.MaxResults(int64(max))
	}
	err := call.Pages(ctx, func(page *gmail.ListMessagesResponse) error {
		refs = append(refs, page.Messages...)
		if max > 0 && len(refs) >= max {
			refs = refs[:max]
			return errStopPaging
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopPaging) {
		return nil, fmt.Errorf("gmail list %s: %w", label, err)
	}

	out := make([]internal.FetchedMailMessage, 0, len(refs))
	for _, ref := range refs {
		if ref.Id == "" {
			continue
		}
		msg, err := c.service.Users.Messages.Get("me", ref.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("gmail get %s: %w", ref.Id, err)
		}
		if msg.Raw == "" {
			continue
		}
		raw, err := decodeBase64URL(msg.Raw)
		if err != nil {
			return nil, err
		}
		out = append(out, fromRaw(ref.Id, msg.InternalDate, raw))
	}
	return out, nil
}

var errStopPaging = errors.New("gmail: page limit reached")

// fromRaw reads the headers the store needs straight from the raw message,
// which saves a metadata round trip per message.
func fromRaw(gmailID string, internalDateMs int64, raw []byte) internal.FetchedMailMessage {
	out := internal.FetchedMailMessage{Provider: Provider, MessageID: gmailID, Raw: raw}
	if internalDateMs > 0 {
		out.ReceivedAt = time.UnixMilli(internalDateMs).UTC().Format(time.RFC3339)
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return out
	}
	if id := strings.TrimSpace(env.GetHeader("Message-Id")); id != "" {
		out.MessageID = id
	}
	out.Subject = env.GetHeader("Subject")
	out.From = env.GetHeader("From")
	if out.ReceivedAt == "" {
		if t, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
			out.ReceivedAt = t.UTC().Format(time.RFC3339)
		} else {
			out.ReceivedAt = time.Now().UTC().Format(time.RFC3339)
		}
	}
	return out
}

func decodeBase64URL(input string) ([]byte, error) {
	if decoded, err := base64.RawURLEncoding.DecodeString(input); err == nil {
		return decoded, nil
	}
	decoded, err := base64.URLEncoding.DecodeString(input)
	if err != nil {
		return nil, fmt.Errorf("decode gmail raw payload: %w", err)
	}
	return decoded, nil
}
