package logger

import (
	"flag"
	"fmt"
	"strings"
)

// Flags holds all logging-related command-line flags.
type Flags struct {
	LogLevel    string
	LogFormat   string
	LogFile     string
	DebugSDP    bool
	DebugICE    bool
	DebugDTLS   bool
	DebugSRTP   bool
	DebugRTP    bool
	DebugJitter bool
	DebugAll    bool
}

// RegisterFlags registers logging flags with the given FlagSet.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.LogLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	fs.StringVar(&f.LogLevel, "l", "info",
		"Log level (shorthand)")

	fs.StringVar(&f.LogFormat, "log-format", "console",
		"Log output format: console, json")

	fs.StringVar(&f.LogFile, "log-file", "",
		"Log output file path (default: stdout)")
	fs.StringVar(&f.LogFile, "o", "",
		"Log output file path (shorthand)")

	fs.BoolVar(&f.DebugSDP, "debug-sdp", false,
		"Enable SDP negotiation debugging")
	fs.BoolVar(&f.DebugICE, "debug-ice", false,
		"Enable ICE/STUN keepalive debugging")
	fs.BoolVar(&f.DebugDTLS, "debug-dtls", false,
		"Enable DTLS handshake debugging")
	fs.BoolVar(&f.DebugSRTP, "debug-srtp", false,
		"Enable SRTP encrypt/decrypt debugging")
	fs.BoolVar(&f.DebugRTP, "debug-rtp", false,
		"Enable RTP packet debugging (sequence, timestamp, payload)")
	fs.BoolVar(&f.DebugJitter, "debug-jitter", false,
		"Enable jitter-buffer debugging")
	fs.BoolVar(&f.DebugAll, "debug-all", false,
		"Enable all debug categories")

	return f
}

// ToConfig converts Flags to a logger Config.
func (f *Flags) ToConfig() (*Config, error) {
	cfg := NewConfig()

	level, err := ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	format, err := ParseFormat(f.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg.Format = format

	cfg.OutputFile = f.LogFile

	if f.DebugAll {
		cfg.EnableCategory(DebugAll)
		cfg.Level = LevelDebug
	} else {
		for _, pair := range []struct {
			enabled bool
			cat     DebugCategory
		}{
			{f.DebugSDP, DebugSDP},
			{f.DebugICE, DebugICE},
			{f.DebugDTLS, DebugDTLS},
			{f.DebugSRTP, DebugSRTP},
			{f.DebugRTP, DebugRTP},
			{f.DebugJitter, DebugJitter},
		} {
			if pair.enabled {
				cfg.EnableCategory(pair.cat)
				cfg.Level = LevelDebug
			}
		}
	}

	return cfg, nil
}

// PrintUsageExamples prints usage examples for logging flags.
func PrintUsageExamples() {
	examples := `
Logging Examples:

  Basic usage (INFO level, console format to stdout):
    ./whip-demo

  Enable DEBUG level:
    ./whip-demo --log-level debug

  Log to file:
    ./whip-demo --log-file session.log

  JSON format for structured logging:
    ./whip-demo --log-format json -o session.json

  Debug DTLS handshake and SRTP only:
    ./whip-demo --debug-dtls --debug-srtp

  Debug everything:
    ./whip-demo --debug-all -o debug.log
`
	fmt.Println(examples)
}

// String returns a string representation of enabled flags.
func (f *Flags) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("level=%s", f.LogLevel))
	parts = append(parts, fmt.Sprintf("format=%s", f.LogFormat))

	if f.LogFile != "" {
		parts = append(parts, fmt.Sprintf("output=%s", f.LogFile))
	} else {
		parts = append(parts, "output=stdout")
	}

	var debugCategories []string
	if f.DebugAll {
		debugCategories = append(debugCategories, "all")
	} else {
		for _, pair := range []struct {
			enabled bool
			name    string
		}{
			{f.DebugSDP, "sdp"},
			{f.DebugICE, "ice"},
			{f.DebugDTLS, "dtls"},
			{f.DebugSRTP, "srtp"},
			{f.DebugRTP, "rtp"},
			{f.DebugJitter, "jitter"},
		} {
			if pair.enabled {
				debugCategories = append(debugCategories, pair.name)
			}
		}
	}

	if len(debugCategories) > 0 {
		parts = append(parts, fmt.Sprintf("debug=[%s]", strings.Join(debugCategories, ",")))
	}

	return strings.Join(parts, " ")
}
