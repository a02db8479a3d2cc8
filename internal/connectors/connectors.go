package connectors

import (
	"context"

	"rfqcrm/internal"
)

// MailConnector pulls raw messages from one mailbox provider.
type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}
