// Command whip-demo publishes one H.264 video stream to a WHIP endpoint:
// it builds a local SDP offer, POSTs it, then drives the resulting
// PeerConnection through the STUN/DTLS/SRTP handshake against the single
// remote UDP candidate given on the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethan/streamkit/pkg/config"
	"github.com/ethan/streamkit/pkg/logger"
	"github.com/ethan/streamkit/pkg/session"
	"github.com/ethan/streamkit/pkg/signaling"
)

func main() {
	fs := flag.NewFlagSet("whip-demo", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)
	envPath := fs.String("env", ".env", "path to .env config file")
	whipURL := fs.String("whip-url", "", "WHIP endpoint to publish to (overrides .env whip_url)")
	bearer := fs.String("token", "", "bearer token for the WHIP endpoint")
	remoteAddr := fs.String("remote", "", "remote media UDP host:port (the server's single ICE candidate)")
	localUfrag := fs.String("local-ufrag", "localufrag", "local ICE username fragment")
	localPwd := fs.String("local-pwd", "localpasswordforthesessionXX", "local ICE password (at least 22 chars)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\nPublish a stream over WHIP.\n\nOptions:\n", os.Args[0])
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

	endpoint := *whipURL
	if endpoint == "" {
		endpoint = cfg.Signaling.WHIPURL
	}
	if endpoint == "" || *remoteAddr == "" {
		fmt.Fprintln(os.Stderr, "whip-demo requires --whip-url (or whip_url in .env) and --remote")
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

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		log.Error("failed to open udp socket", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	pc := session.New(conn, log.With("component", "session"))

	offer, err := pc.CreateOffer(*localUfrag, *localPwd, "H264", 96, 90000)
	if err != nil {
		log.Error("failed to build sdp offer", "err", err)
		os.Exit(1)
	}

	whip := signaling.NewWHIPClient(endpoint, *bearer, log.With("component", "whip"))
	whipSession, err := whip.PublishWithRetry(ctx, offer, 3)
	if err != nil {
		log.Error("whip publish failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := whip.Delete(stopCtx, whipSession.ResourceURL); err != nil {
			log.Warn("failed to delete whip session", "err", err)
		}
	}()

	if err := pc.CompleteOffer(whipSession.Answer); err != nil {
		log.Error("failed to complete sdp negotiation", "err", err)
		os.Exit(1)
	}

	remote, err := net.ResolveUDPAddr("udp", *remoteAddr)
	if err != nil {
		log.Error("failed to resolve remote address", "err", err)
		os.Exit(1)
	}

	if err := pc.Start(ctx, remote); err != nil {
		log.Error("failed to start session", "err", err)
		os.Exit(1)
	}

	log.Info("whip session published", "resource", whipSession.ResourceURL, "remote", remote.String())

	<-ctx.Done()
	_ = pc.Close()
	log.Info("whip-demo shutting down")
}
