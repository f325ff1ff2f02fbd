// Package transport delivers report payloads to a collector.
//
// Client performs a timed JSON POST and validates the response. Beacon is a
// fire-and-forget sender: it accepts a body into a bounded queue and a single
// worker posts it in the background, detached from the caller's context.
// Sender picks between the two per destination.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"

	"github.com/coffersTech/logbuf/internal/apperrors"
)

// DefaultTimeout bounds a regular report POST.
const DefaultTimeout = time.Second

// Response is a completed HTTP exchange.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
	// JSON is true when Body parsed as JSON.
	JSON bool
}

// Value parses Body with fastjson. The result is independent of the client.
func (r *Response) Value() (*fastjson.Value, error) {
	return fastjson.ParseBytes(r.Body)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// APIKey is sent as a bearer token when set.
	APIKey string

	// Compress encodes request bodies with zstd.
	Compress bool

	// HTTPClient defaults to a client with no overall timeout; deadlines
	// come from the per-call timeout.
	HTTPClient *http.Client

	Logger zerolog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	http     *http.Client
	apiKey   string
	encoder  *zstd.Encoder
	validate fastjson.ParserPool
	logger   zerolog.Logger
}

// NewClient returns a Client. It fails only if the zstd encoder cannot be
// created.
func NewClient(opts ClientOptions) (*Client, error) {
	c := &Client{
		http:   opts.HTTPClient,
		apiKey: opts.APIKey,
		logger: opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if opts.Compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		c.encoder = enc
	}
	return c, nil
}

// Post sends body as JSON to url and waits at most timeout for the response.
// A zero timeout means no deadline beyond ctx.
func (c *Client) Post(ctx context.Context, url string, body []byte, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if c.encoder != nil {
		body = c.encoder.EncodeAll(body, make([]byte, 0, len(body)/2))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request to %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.encoder != nil {
		req.Header.Set("Content-Encoding", "zstd")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if apperrors.IsTimeout(err) {
			return nil, &apperrors.TimeoutError{Method: "post", URL: url, Cause: err}
		}
		return nil, fmt.Errorf("request to post %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 0 {
		return nil, &apperrors.NoStatusCodeError{Method: "post", URL: url}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if apperrors.IsTimeout(err) {
			return nil, &apperrors.TimeoutError{Method: "post", URL: url, Cause: err}
		}
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}

	out := &Response{Status: resp.StatusCode, Headers: resp.Header, Body: raw}
	if err := c.checkBody(out); err != nil {
		if isJSONContentType(resp.Header.Get("Content-Type")) {
			return nil, &apperrors.InvalidResponseBodyError{URL: url, Body: string(raw), Cause: err}
		}
	} else {
		out.JSON = true
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &apperrors.StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return out, nil
}

func (c *Client) checkBody(r *Response) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return errors.New("empty body")
	}
	p := c.validate.Get()
	defer c.validate.Put(p)
	_, err := p.ParseBytes(r.Body)
	return err
}

// Close releases the zstd encoder.
func (c *Client) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
}

func isJSONContentType(value string) bool {
	if value == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || mediaType == "text/json"
}
