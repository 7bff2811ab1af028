package signaling_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethan/streamkit/pkg/signaling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediasoupBroadcasterFourStepSequence(t *testing.T) {
	var calls []string
	mux := http.NewServeMux()
	mux.HandleFunc("/rooms/room1/broadcasters", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "create-broadcaster")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/rooms/room1/broadcasters/bcast1/transports", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "create-transport")
		_ = json.NewEncoder(w).Encode(signaling.CreateTransportResponse{ID: "transport1"})
	})
	mux.HandleFunc("/rooms/room1/broadcasters/bcast1/transports/transport1/connect", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "connect-transport")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/rooms/room1/broadcasters/bcast1/transports/transport1/producers", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "produce")
		_ = json.NewEncoder(w).Encode(signaling.ProduceResponse{ID: "producer1"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := signaling.NewMediasoupBroadcaster(srv.URL, "room1", nil)
	ctx := context.Background()

	require.NoError(t, c.CreateBroadcaster(ctx, &signaling.CreateBroadcasterRequest{ID: "bcast1", DisplayName: "cam"}))

	transport, err := c.CreateTransport(ctx, "bcast1", &signaling.CreateTransportRequest{Type: "webrtc"})
	require.NoError(t, err)
	assert.Equal(t, "transport1", transport.ID)

	require.NoError(t, c.ConnectTransport(ctx, "bcast1", transport.ID, &signaling.ConnectTransportRequest{}))

	produced, err := c.Produce(ctx, "bcast1", transport.ID, &signaling.ProduceRequest{Kind: "video"})
	require.NoError(t, err)
	assert.Equal(t, "producer1", produced.ID)

	assert.Equal(t, []string{"create-broadcaster", "create-transport", "connect-transport", "produce"}, calls)
}

func TestMediasoupBroadcasterErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(signaling.CreateBroadcasterResponse{Error: "broadcaster already exists"})
	}))
	defer srv.Close()

	c := signaling.NewMediasoupBroadcaster(srv.URL, "room1", nil)
	err := c.CreateBroadcaster(context.Background(), &signaling.CreateBroadcasterRequest{ID: "bcast1"})
	assert.Error(t, err)
}
