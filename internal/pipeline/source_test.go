package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartEmail = "From: buyer@dla.mil\r\n" +
	"To: sales@example.com\r\n" +
	"Subject: RFQ SPE7M125T1234\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"XYZ\"\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Please see the attached solicitation.\r\n" +
	"--XYZ\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"SPE7M125T1234.PDF\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"bm90IGEgcmVhbCBwZGY=\r\n" +
	"--XYZ\r\n" +
	"Content-Type: image/png\r\n" +
	"Content-Disposition: attachment; filename=\"logo.png\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"iVBORw0KGgo=\r\n" +
	"--XYZ--\r\n"

func TestDocumentsFromEmailAttachments(t *testing.T) {
	content, err := DocumentsFromEmail("imap:42", []byte(multipartEmail))
	require.NoError(t, err)

	assert.Equal(t, "RFQ SPE7M125T1234", content.Subject)
	assert.Contains(t, content.Text, "attached solicitation")
	assert.Equal(t, []string{"SPE7M125T1234.PDF", "logo.png"}, content.AttachmentNames)
	require.Len(t, content.Documents, 1, "only the pdf becomes a document")
	assert.Equal(t, "imap:42/SPE7M125T1234.PDF", content.Documents[0].ID)
	assert.Error(t, content.Documents[0].Err, "junk bytes are not a pdf")
}

func TestDocumentsFromEmailHTMLBody(t *testing.T) {
	raw := "From: buyer@dla.mil\r\n" +
		"Subject: quote request\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><body><p>1. REQUEST NO. SPE7M125T1234</p><p>6. DELIVER BY 120</p><script>x()</script></body></html>\r\n"

	content, err := DocumentsFromEmail("gmail:abc", []byte(raw))
	require.NoError(t, err)
	require.Len(t, content.Documents, 1, "form body is the document")
	assert.Equal(t, "gmail:abc/body", content.Documents[0].ID)

	req := Extract(content.Documents[0])
	assert.Equal(t, "SPE7M125T1234", req.RequestNumber)
	assert.Equal(t, 120, req.DeliveryDays)
}

func TestHTMLToText(t *testing.T) {
	got := htmlToText(`<div>Hello<br>World</div><table><tr><td>A</td><td>B</td></tr></table><style>p{}</style>`)
	assert.Equal(t, "Hello\nWorld\nA B", got)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("1. REQUEST NO. SPE1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.PDF"), []byte("junk"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o644))

	docs, err := LoadDirectory(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "a.PDF", docs[0].ID)
	assert.Error(t, docs[0].Err)
	assert.Equal(t, "b.txt", docs[1].ID)
	assert.NoError(t, docs[1].Err)
	assert.True(t, strings.HasPrefix(docs[1].Text, "1. REQUEST NO."))
	assert.Equal(t, filepath.Join(dir, "b.txt"), docs[1].Path)
}
