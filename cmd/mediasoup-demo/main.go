// Command mediasoup-demo drives the mediasoup broadcaster REST sequence
// (create broadcaster, create transport, connect transport, produce)
// without establishing local media — it exists to exercise
// pkg/signaling.MediasoupBroadcaster end to end against a running
// mediasoup-demo server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethan/streamkit/pkg/config"
	"github.com/ethan/streamkit/pkg/logger"
	"github.com/ethan/streamkit/pkg/signaling"
)

func main() {
	fs := flag.NewFlagSet("mediasoup-demo", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)
	envPath := fs.String("env", ".env", "path to .env config file")
	baseURL := fs.String("base-url", "", "mediasoup-demo server HTTP API root (overrides .env mediasoup_base_url)")
	room := fs.String("room", "", "room id")
	broadcasterID := fs.String("broadcaster-id", "cam-1", "broadcaster id to register")
	displayName := fs.String("display-name", "camera", "broadcaster display name")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\nRegister a broadcaster and produce one video track.\n\nOptions:\n", os.Args[0])
		fs.PrintDefaults()
		logger.PrintUsageExamples()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	logCfg, err := logFlags.ToConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error configuring logger: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logger.SetDefault(log)

	cfg, err := config.Load(*envPath)
	if err != nil {
		log.Warn("no .env config loaded, using defaults", "err", err)
		cfg = config.Default()
	}

	endpoint := *baseURL
	if endpoint == "" {
		endpoint = cfg.Signaling.MediasoupBaseURL
	}
	if endpoint == "" || *room == "" {
		fmt.Fprintln(os.Stderr, "mediasoup-demo requires --base-url (or mediasoup_base_url in .env) and --room")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	broadcaster := signaling.NewMediasoupBroadcaster(endpoint, *room, log.With("component", "mediasoup"))

	createReq := &signaling.CreateBroadcasterRequest{ID: *broadcasterID, DisplayName: *displayName}
	createReq.Device.Name = "streamkit"
	if err := broadcaster.CreateBroadcaster(ctx, createReq); err != nil {
		log.Error("failed to create broadcaster", "err", err)
		os.Exit(1)
	}

	transport, err := broadcaster.CreateTransport(ctx, *broadcasterID, &signaling.CreateTransportRequest{Type: "webrtc", RtcpMux: true})
	if err != nil {
		log.Error("failed to create transport", "err", err)
		os.Exit(1)
	}

	// A real publisher would negotiate its own DTLS fingerprint here via
	// pkg/dtlsengine and send that; this demo echoes the server's own
	// parameters back since it never opens a local media transport.
	if err := broadcaster.ConnectTransport(ctx, *broadcasterID, transport.ID, &signaling.ConnectTransportRequest{
		DtlsParameters: transport.DtlsParameters,
	}); err != nil {
		log.Error("failed to connect transport", "err", err)
		os.Exit(1)
	}

	produced, err := broadcaster.Produce(ctx, *broadcasterID, transport.ID, &signaling.ProduceRequest{Kind: "video"})
	if err != nil {
		log.Error("failed to produce", "err", err)
		os.Exit(1)
	}

	log.Info("mediasoup producer ready", "producer_id", produced.ID, "transport_id", transport.ID)

	<-ctx.Done()
	log.Info("mediasoup-demo shutting down")
}
