package dibbs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"rfqcrm/internal/config"
	"rfqcrm/internal/logging"
)

var (
	ErrInvalidRequest = errors.New("invalid request number")
	ErrNotFound       = errors.New("solicitation not found")

	requestNumberPattern = regexp.MustCompile(`^SP[A-Z0-9]{6,}$`)
)

const maxAttempts = 5

// Client downloads solicitation documents from the DIBBS RFQ file share.
type Client struct {
	baseURL    string
	uploadDir  string
	httpClient *http.Client
	limiter    *RateLimiter
	logger     *slog.Logger
	backoff    func(attempt int) time.Duration
}

func NewClient(cfg config.Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.DibbsBaseURL, "/"),
		uploadDir:  cfg.UploadDir,
		httpClient: &http.Client{Timeout: time.Duration(cfg.DibbsTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.DibbsRateLimitRPS),
		logger:     logging.Or(logger),
		backoff: func(attempt int) time.Duration {
			return time.Duration(250*(1<<(attempt-1))+rand.IntN(100)) * time.Millisecond
		},
	}
}

// NormalizeRequestNumber uppercases and strips dashes and blanks.
func NormalizeRequestNumber(request string) (string, error) {
	r := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(request)))
	if !requestNumberPattern.MatchString(r) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRequest, request)
	}
	return r, nil
}

// SolicitationURL is where DIBBS files a request's PDF: folders are keyed by
// the request number's last character.
func SolicitationURL(baseURL, request string) (string, error) {
	r, err := NormalizeRequestNumber(request)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(baseURL, "/") + "/" + r[len(r)-1:] + "/" + r + ".PDF", nil
}

// FetchSolicitation downloads the request's PDF into the upload directory
// and returns the written path.
func (c *Client) FetchSolicitation(ctx context.Context, request string) (string, error) {
	u, err := SolicitationURL(c.baseURL, request)
	if err != nil {
		return "", err
	}
	body, err := c.get(ctx, u)
	if err != nil {
		return "", err
	}
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		return "", fmt.Errorf("%w: %s did not return a pdf", ErrNotFound, u)
	}

	if err := os.MkdirAll(c.uploadDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(c.uploadDir, path.Base(u))
	if err := os.WriteFile(dst, body, 0o644); err != nil {
		return "", err
	}
	c.logger.Info("solicitation downloaded", "url", u, "path", dst, "bytes", len(body))
	return dst, nil
}

// Link is one solicitation listed on an index page.
type Link struct {
	RequestNumber string
	URL           string
}

// ListSolicitations returns the PDF links on an HTML index page, resolved
// against the page URL, in page order without duplicates.
func (c *Client) ListSolicitations(ctx context.Context, pageURL string) ([]Link, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	body, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var links []Link
	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil || !strings.EqualFold(path.Ext(ref.Path), ".pdf") {
			return
		}
		abs := base.ResolveReference(ref).String()
		if seen[abs] {
			return
		}
		seen[abs] = true
		name := strings.TrimSuffix(path.Base(ref.Path), path.Ext(ref.Path))
		links = append(links, Link{RequestNumber: strings.ToUpper(name), URL: abs})
	})
	return links, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, u)
		case isRetryableStatus(resp.StatusCode):
			lastErr = fmt.Errorf("dibbs status %d", resp.StatusCode)
			c.logger.Warn("dibbs request retry", "url", u, "status", resp.StatusCode, "attempt", attempt)
			if attempt < maxAttempts {
				if err := sleep(ctx, c.backoff(attempt)); err != nil {
					return nil, err
				}
			}
			continue
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, fmt.Errorf("dibbs error: status=%d url=%s", resp.StatusCode, u)
		}
		if readErr != nil {
			lastErr = readErr
			continue
		}
		return body, nil
	}
	return nil, fmt.Errorf("dibbs request failed after %d attempts: %w", maxAttempts, lastErr)
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
