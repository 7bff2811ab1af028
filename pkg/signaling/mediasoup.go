package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethan/streamkit/pkg/logger"
)

// MediasoupBroadcaster drives the mediasoup-demo REST broadcaster flow:
// create broadcaster, create transport, connect transport, produce. Same
// request/response shape as the WHIP/WHEP clients in this package (each
// step is a single attempt, with no retry), with a top-level
// {"error": ...} body convention in place of WHIP's plain status-code
// failures.
type MediasoupBroadcaster struct {
	baseURL    string
	roomID     string
	httpClient *http.Client
	log        *logger.Logger
}

// NewMediasoupBroadcaster builds a client against baseURL (the
// mediasoup-demo server's HTTP API root) for roomID.
func NewMediasoupBroadcaster(baseURL, roomID string, log *logger.Logger) *MediasoupBroadcaster {
	return &MediasoupBroadcaster{
		baseURL:    baseURL,
		roomID:     roomID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger.OrDefault(log),
	}
}

// CreateBroadcasterRequest registers a new broadcaster identity in the room.
type CreateBroadcasterRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Device      struct {
		Name    string `json:"name"`
		Version string `json:"version,omitempty"`
	} `json:"device"`
}

// CreateBroadcasterResponse mirrors mediasoup's broadcaster registration
// reply; mediasoup returns an empty 200 body on success.
type CreateBroadcasterResponse struct {
	Error string `json:"error,omitempty"`
}

// CreateBroadcaster is step 1 of the four-step sequence.
func (c *MediasoupBroadcaster) CreateBroadcaster(ctx context.Context, req *CreateBroadcasterRequest) error {
	url := fmt.Sprintf("%s/rooms/%s/broadcasters", c.baseURL, c.roomID)
	var resp CreateBroadcasterResponse
	if err := c.postJSON(ctx, url, req, &resp); err != nil {
		return fmt.Errorf("create broadcaster: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("create broadcaster error: %s", resp.Error)
	}
	c.log.Info("created mediasoup broadcaster", "broadcaster_id", req.ID, "room_id", c.roomID)
	return nil
}

// CreateTransportRequest asks for a new send (or recv) plain/WebRTC
// transport on the broadcaster.
type CreateTransportRequest struct {
	Type    string `json:"type"` // "webrtc" or "plain"
	RtcpMux bool   `json:"rtcpMux,omitempty"`
	Comedia bool   `json:"comedia,omitempty"`
}

// CreateTransportResponse carries the ICE/DTLS parameters the caller needs
// to complete its own local negotiation.
type CreateTransportResponse struct {
	ID             string `json:"id"`
	IceParameters  any    `json:"iceParameters"`
	IceCandidates  any    `json:"iceCandidates"`
	DtlsParameters any    `json:"dtlsParameters"`
	Error          string `json:"error,omitempty"`
}

// CreateTransport is step 2 of the four-step sequence.
func (c *MediasoupBroadcaster) CreateTransport(ctx context.Context, broadcasterID string, req *CreateTransportRequest) (*CreateTransportResponse, error) {
	url := fmt.Sprintf("%s/rooms/%s/broadcasters/%s/transports", c.baseURL, c.roomID, broadcasterID)
	var resp CreateTransportResponse
	if err := c.postJSON(ctx, url, req, &resp); err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("create transport error: %s", resp.Error)
	}
	c.log.Info("created mediasoup transport", "transport_id", resp.ID, "broadcaster_id", broadcasterID)
	return &resp, nil
}

// ConnectTransportRequest finalizes DTLS parameters against an existing
// transport.
type ConnectTransportRequest struct {
	DtlsParameters any `json:"dtlsParameters"`
}

type connectTransportResponse struct {
	Error string `json:"error,omitempty"`
}

// ConnectTransport is step 3 of the four-step sequence.
func (c *MediasoupBroadcaster) ConnectTransport(ctx context.Context, broadcasterID, transportID string, req *ConnectTransportRequest) error {
	url := fmt.Sprintf("%s/rooms/%s/broadcasters/%s/transports/%s/connect", c.baseURL, c.roomID, broadcasterID, transportID)
	var resp connectTransportResponse
	if err := c.postJSON(ctx, url, req, &resp); err != nil {
		return fmt.Errorf("connect transport: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("connect transport error: %s", resp.Error)
	}
	c.log.Info("connected mediasoup transport", "transport_id", transportID)
	return nil
}

// ProduceRequest starts sending one media kind over an already-connected
// transport.
type ProduceRequest struct {
	Kind          string `json:"kind"` // "audio" or "video"
	RtpParameters any    `json:"rtpParameters"`
}

// ProduceResponse carries the new producer's id.
type ProduceResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// Produce is step 4 of the four-step sequence.
func (c *MediasoupBroadcaster) Produce(ctx context.Context, broadcasterID, transportID string, req *ProduceRequest) (*ProduceResponse, error) {
	url := fmt.Sprintf("%s/rooms/%s/broadcasters/%s/transports/%s/producers", c.baseURL, c.roomID, broadcasterID, transportID)
	var resp ProduceResponse
	if err := c.postJSON(ctx, url, req, &resp); err != nil {
		return nil, fmt.Errorf("produce: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("produce error: %s", resp.Error)
	}
	c.log.Info("mediasoup producer created", "producer_id", resp.ID, "kind", req.Kind)
	return &resp, nil
}

func (c *MediasoupBroadcaster) postJSON(ctx context.Context, url string, reqBody, respBody any) error {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed: %s (status %d)", raw, resp.StatusCode)
	}

	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
