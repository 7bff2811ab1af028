package signaling

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethan/streamkit/pkg/logger"
)

// WHEPClient requests playback of a remote stream: POST an SDP offer,
// receive an SDP answer plus a resource URL, same shape as WHIP but for
// the consuming side.
type WHEPClient struct {
	endpoint   string
	bearer     string
	httpClient *http.Client
	log        *logger.Logger
}

// NewWHEPClient builds a client POSTing offers to endpoint.
func NewWHEPClient(endpoint, bearer string, log *logger.Logger) *WHEPClient {
	return &WHEPClient{
		endpoint:   endpoint,
		bearer:     bearer,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger.OrDefault(log),
	}
}

// WHEPSession mirrors WHIPSession for the play side.
type WHEPSession struct {
	Answer      []byte
	ResourceURL string
}

// Play POSTs offer as application/sdp and returns the playback answer.
func (c *WHEPClient) Play(ctx context.Context, offer []byte) (*WHEPSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(offer))
	if err != nil {
		return nil, fmt.Errorf("signaling: create whep request: %w", err)
	}
	req.Header.Set("Content-Type", sdpContentType)
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signaling: whep play request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("signaling: read whep response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signaling: whep play failed: %s (status %d)", body, resp.StatusCode)
	}

	resource := resp.Header.Get("Location")
	if resource != "" && resource[0] == '/' {
		resource = resolveAgainst(c.endpoint, resource)
	}

	c.log.Info("whep play succeeded", "resource", resource, "answer_bytes", len(body))
	return &WHEPSession{Answer: body, ResourceURL: resource}, nil
}

// Delete tears down the playback session.
func (c *WHEPClient) Delete(ctx context.Context, resourceURL string) error {
	if resourceURL == "" {
		return fmt.Errorf("signaling: empty whep resource url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, resourceURL, nil)
	if err != nil {
		return fmt.Errorf("signaling: create whep delete request: %w", err)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("signaling: whep delete request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("signaling: whep delete failed: %s (status %d)", body, resp.StatusCode)
	}
	c.log.Info("whep session deleted", "resource", resourceURL)
	return nil
}
