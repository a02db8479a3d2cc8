package imap

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfqcrm/internal/config"
)

func TestNewConnectorRequiresCredentials(t *testing.T) {
	_, err := NewConnector(config.Config{IMAPHost: "mail.example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestSearchCriteriaSubjectFilter(t *testing.T) {
	c, err := NewConnector(config.Config{IMAPHost: "h", IMAPPort: 993, IMAPUser: "u", IMAPPassword: "p", IMAPSubjectFilter: " DIBBS "})
	require.NoError(t, err)
	assert.Equal(t, "h:993", c.addr)

	criteria := c.searchCriteria()
	assert.Equal(t, []string{imap.SeenFlag}, criteria.WithoutFlags)
	assert.Equal(t, "DIBBS", criteria.Header.Get("Subject"))
}

func TestToFetched(t *testing.T) {
	received := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	msg := &imap.Message{
		Uid:          7,
		InternalDate: received,
		Envelope: &imap.Envelope{
			Subject: "RFQ SPE7M125T1234",
			From:    []*imap.Address{{PersonalName: "Jane Doe", MailboxName: "jane.doe", HostName: "dla.mil"}, nil},
		},
	}
	got := toFetched(msg, []byte("raw"))
	assert.Equal(t, Provider, got.Provider)
	assert.Equal(t, "imap-7", got.MessageID, "uid stands in for a missing Message-ID")
	assert.Equal(t, "Jane Doe <jane.doe@dla.mil>", got.From)
	assert.Equal(t, "2025-05-01T09:00:00Z", got.ReceivedAt)
}
