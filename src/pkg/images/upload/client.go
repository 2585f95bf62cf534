package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/q-controller/imagestore/src/pkg/metrics"
	"github.com/q-controller/imagestore/src/pkg/utils"
)

const (
	// DefaultSettleDelay keeps a session busy after its call returned.
	DefaultSettleDelay = 3 * time.Second

	FieldName    = "file"
	APIKeyHeader = "X-Api-Key"
	uploadPath   = "file"
)

var ErrUploadFailed = errors.New("upload failed")

// Result is the raw response of the upload endpoint.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Opener provides the content of the image to upload.
type Opener func() (io.ReadCloser, error)

type Client struct {
	url     string
	apiKey  string
	httpCli *http.Client
	settle  time.Duration
	tracker *Tracker
}

type ClientOption func(*Client)

func WithHTTPClient(cli *http.Client) ClientOption {
	return func(c *Client) {
		c.httpCli = cli
	}
}

func WithSettleDelay(delay time.Duration) ClientOption {
	return func(c *Client) {
		c.settle = delay
	}
}

func WithTracker(tracker *Tracker) ClientOption {
	return func(c *Client) {
		c.tracker = tracker
	}
}

func NewClient(endpoint, apiKey string, opts ...ClientOption) (*Client, error) {
	url, urlErr := utils.JoinURL(endpoint, uploadPath)
	if urlErr != nil {
		return nil, fmt.Errorf("invalid upload endpoint: %w", urlErr)
	}

	cli := &Client{
		url:     url,
		apiKey:  apiKey,
		httpCli: http.DefaultClient,
		settle:  DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(cli)
	}
	if cli.tracker == nil {
		cli.tracker = NewTracker()
	}
	return cli, nil
}

func (c *Client) URL() string {
	return c.url
}

func (c *Client) Tracker() *Tracker {
	return c.tracker
}

// Upload sends the content and returns once the call has returned. The
// session stays busy for the settle delay afterwards.
func (c *Client) Upload(ctx context.Context, name string, open Opener) (*Result, error) {
	return c.Start(ctx, name, open).Wait(ctx)
}

// Start launches an upload session in the background.
func (c *Client) Start(ctx context.Context, name string, open Opener) *Session {
	session := newSession(uuid.NewString(), name)
	c.tracker.begin(session.ID)
	slog.Debug("Upload started", "session", session.ID, "image", name, "url", c.url)

	go func() {
		result, err := c.run(ctx, name, open)
		metrics.Uploads.WithLabelValues(metrics.StatusLabel(statusOf(result), err)).Inc()
		if err != nil {
			slog.Warn("Upload failed", "session", session.ID, "image", name, "error", err)
		} else {
			slog.Info("Upload finished", "session", session.ID, "image", name, "status", result.StatusCode)
		}
		session.finish(result, err)

		time.AfterFunc(c.settle, func() {
			c.tracker.end(session.ID)
			session.markIdle()
		})
	}()

	return session
}

func (c *Client) run(ctx context.Context, name string, open Opener) (result *Result, retErr error) {
	content, openErr := open()
	if openErr != nil {
		return nil, openErr
	}
	defer func() {
		if closeErr := content.Close(); closeErr != nil {
			retErr = errors.Join(retErr, closeErr)
		}
	}()

	return c.send(ctx, name, content)
}

func (c *Client) send(ctx context.Context, name string, content io.Reader) (result *Result, retErr error) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		part, partErr := form.CreatePart(fileHeader(name))
		if partErr != nil {
			pw.CloseWithError(partErr)
			return
		}
		if _, copyErr := io.Copy(part, content); copyErr != nil {
			pw.CloseWithError(copyErr)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.url, pr)
	if reqErr != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, reqErr)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set(APIKeyHeader, c.apiKey)

	resp, doErr := c.httpCli.Do(req)
	if doErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, doErr)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			retErr = errors.Join(retErr, closeErr)
		}
	}()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrUploadFailed, readErr)
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func fileHeader(name string) textproto.MIMEHeader {
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldName, quoteEscaper.Replace(name)))
	header.Set("Content-Type", contentType)
	return header
}

func statusOf(result *Result) int {
	if result == nil {
		return 0
	}
	return result.StatusCode
}
