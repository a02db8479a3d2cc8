package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
)

// Document is one unit of ingestion: an identifier plus its extracted text.
type Document struct {
	ID   string
	Text string
	// Path is the file the text came from, empty for in-memory documents.
	Path string
	// Err is set when the text could not be obtained; such a document is
	// reported as failed without extraction.
	Err error
}

func DocumentFromText(id, text string) Document {
	return Document{ID: id, Text: text}
}

func DocumentFromPDF(path string) Document {
	doc := Document{ID: filepath.Base(path), Path: path}
	content, err := os.ReadFile(path)
	if err != nil {
		doc.Err = err
		return doc
	}
	doc.Text, doc.Err = pdfText(content)
	return doc
}

func pdfText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("pdf has no extractable text")
	}
	return b.String(), nil
}

// LoadDirectory returns every *.pdf and *.txt file in dir, sorted by name.
// Unreadable files come back as documents with Err set.
func LoadDirectory(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".pdf", ".txt":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	docs := make([]Document, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if strings.EqualFold(filepath.Ext(name), ".pdf") {
			docs = append(docs, DocumentFromPDF(path))
			continue
		}
		content, err := os.ReadFile(path)
		docs = append(docs, Document{ID: name, Text: string(content), Path: path, Err: err})
	}
	return docs, nil
}

// EmailContent is what the mail pipeline needs from a raw message.
type EmailContent struct {
	Subject         string
	Text            string
	AttachmentNames []string
	Documents       []Document
}

// DocumentsFromEmail parses a raw message. Each PDF attachment becomes a
// document; when there is none and the body itself is an RFQ form, the body
// is the document.
func DocumentsFromEmail(id string, raw []byte) (EmailContent, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return EmailContent{}, err
	}

	out := EmailContent{Subject: env.GetHeader("Subject"), Text: env.Text}
	if strings.TrimSpace(out.Text) == "" && env.HTML != "" {
		out.Text = htmlToText(env.HTML)
	}

	for i, att := range env.Attachments {
		name := strings.TrimSpace(att.FileName)
		if name == "" {
			name = fmt.Sprintf("attachment-%d", i+1)
		}
		out.AttachmentNames = append(out.AttachmentNames, name)
		if !strings.EqualFold(filepath.Ext(name), ".pdf") && att.ContentType != "application/pdf" {
			continue
		}
		doc := Document{ID: id + "/" + name}
		doc.Text, doc.Err = pdfText(att.Content)
		out.Documents = append(out.Documents, doc)
	}

	if len(out.Documents) == 0 && rfqFormAnchor.MatchString(out.Text) {
		out.Documents = append(out.Documents, Document{ID: id + "/body", Text: out.Text})
	}
	return out, nil
}

// htmlToText flattens an HTML body to lines, one per block element.
func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script,style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p,div,tr,li,h1,h2,h3,h4,table").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	doc.Find("td,th").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
