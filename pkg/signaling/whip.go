// Package signaling provides the thin HTTP glue that hands an SDP offer or
// answer to a remote endpoint: WHIP/WHEP single-POST exchange and the
// mediasoup broadcaster four-step REST sequence.
package signaling

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethan/streamkit/pkg/logger"
)

const sdpContentType = "application/sdp"

// WHIPClient publishes a local SDP offer to a WHIP endpoint and returns the
// server's SDP answer plus the resource URL used to tear the session down.
type WHIPClient struct {
	endpoint   string
	bearer     string
	httpClient *http.Client
	log        *logger.Logger
}

// NewWHIPClient builds a client POSTing offers to endpoint. bearer may be
// empty when the endpoint requires no authentication.
func NewWHIPClient(endpoint, bearer string, log *logger.Logger) *WHIPClient {
	return &WHIPClient{
		endpoint:   endpoint,
		bearer:     bearer,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger.OrDefault(log),
	}
}

// WHIPSession is the result of a successful Publish: the SDP answer and the
// resource URL returned in the Location header, used later by Delete.
type WHIPSession struct {
	Answer      []byte
	ResourceURL string
}

// Publish POSTs offer as application/sdp and returns the answer.
func (c *WHIPClient) Publish(ctx context.Context, offer []byte) (*WHIPSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(offer))
	if err != nil {
		return nil, fmt.Errorf("signaling: create whip request: %w", err)
	}
	req.Header.Set("Content-Type", sdpContentType)
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signaling: whip publish request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("signaling: read whip response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signaling: whip publish failed: %s (status %d)", body, resp.StatusCode)
	}

	resource := resp.Header.Get("Location")
	if resource != "" && !strings.HasPrefix(resource, "http") {
		resource = resolveAgainst(c.endpoint, resource)
	}

	c.log.Info("whip publish succeeded", "resource", resource, "answer_bytes", len(body))
	return &WHIPSession{Answer: body, ResourceURL: resource}, nil
}

// Delete tears down the session by issuing DELETE on the resource URL
// returned from Publish.
func (c *WHIPClient) Delete(ctx context.Context, resourceURL string) error {
	if resourceURL == "" {
		return fmt.Errorf("signaling: empty whip resource url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, resourceURL, nil)
	if err != nil {
		return fmt.Errorf("signaling: create whip delete request: %w", err)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("signaling: whip delete request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("signaling: whip delete failed: %s (status %d)", body, resp.StatusCode)
	}
	c.log.Info("whip session deleted", "resource", resourceURL)
	return nil
}

// PublishWithRetry retries Publish with exponential backoff.
func (c *WHIPClient) PublishWithRetry(ctx context.Context, offer []byte, maxRetries int) (*WHIPSession, error) {
	var lastErr error
	backoff := 100 * time.Millisecond
	const maxBackoff = 10 * time.Second

	for attempt := 0; attempt < maxRetries; attempt++ {
		session, err := c.Publish(ctx, offer)
		if err == nil {
			return session, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if attempt < maxRetries-1 {
			delay := backoff
			if delay > maxBackoff {
				delay = maxBackoff
			}
			backoff *= 2

			c.log.Warn("retrying whip publish", "attempt", attempt+1, "max_retries", maxRetries,
				"delay_ms", delay.Milliseconds(), "err", err)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, fmt.Errorf("signaling: whip publish max retries exceeded: %w", lastErr)
}

func resolveAgainst(base, ref string) string {
	if idx := strings.Index(base, "://"); idx >= 0 {
		if slash := strings.Index(base[idx+3:], "/"); slash >= 0 {
			origin := base[:idx+3+slash]
			if strings.HasPrefix(ref, "/") {
				return origin + ref
			}
		}
	}
	return ref
}
