// Package config loads the streamer toolkit's runtime configuration from a
// .env-style file, with a hand-rolled bufio-scanner parser.
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config holds all runtime configuration for a streamkit session.
type Config struct {
	Factory   FactoryConfig
	Signaling SignalingConfig
	ICE       ICEConfig
}

// FactoryConfig configures the streamer Factory.
type FactoryConfig struct {
	// LibPath is the directory searched for streamer modules, preserved as
	// a "<lib_path>/lib<name>.<ext>" convention even though streamers here
	// resolve from a compiled-in registry rather than dynamic modules (see
	// pkg/streamer).
	LibPath string
}

// SignalingConfig configures WHIP/WHEP/mediasoup signaling endpoints.
type SignalingConfig struct {
	WHIPURL          string
	WHEPURL          string
	MediasoupBaseURL string
	RequestTimeout   time.Duration
}

// ICEConfig configures the STUN keepalive.
type ICEConfig struct {
	STUNServer        string
	KeepaliveInterval time.Duration
}

// Default returns a Config with the toolkit's fixed defaults (800ms STUN
// cadence; 1200-byte DTLS MTU is handled in pkg/dtlsengine).
func Default() *Config {
	return &Config{
		Factory: FactoryConfig{LibPath: "./streamers"},
		Signaling: SignalingConfig{
			RequestTimeout: 10 * time.Second,
		},
		ICE: ICEConfig{
			KeepaliveInterval: 800 * time.Millisecond,
		},
	}
}

// Load reads configuration from a .env file, falling back to Default()
// values for any key not present.
func Load(envPath string) (*Config, error) {
	file, err := os.Open(envPath)
	if err != nil {
		return nil, fmt.Errorf("open env file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			decodedValue = value
		}

		switch key {
		case "lib_path":
			cfg.Factory.LibPath = decodedValue
		case "whip_url":
			cfg.Signaling.WHIPURL = decodedValue
		case "whep_url":
			cfg.Signaling.WHEPURL = decodedValue
		case "mediasoup_base_url":
			cfg.Signaling.MediasoupBaseURL = decodedValue
		case "stun_server":
			cfg.ICE.STUNServer = decodedValue
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan env file: %w", err)
	}

	return cfg, nil
}
