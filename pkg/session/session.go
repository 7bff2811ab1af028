// Package session wires the SDP/ICE/DTLS/SRTP/RTP packages into one
// PeerConnection driven over a single UDP socket, with a forward-only
// handshake state machine and one demuxing reader goroutine per transport.
package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ethan/streamkit/pkg/dtlsengine"
	"github.com/ethan/streamkit/pkg/ice"
	"github.com/ethan/streamkit/pkg/logger"
	"github.com/ethan/streamkit/pkg/packet"
	"github.com/ethan/streamkit/pkg/recvstream"
	"github.com/ethan/streamkit/pkg/rtppack"
	"github.com/ethan/streamkit/pkg/sdpneg"
	"github.com/ethan/streamkit/pkg/sendstream"
	"github.com/ethan/streamkit/pkg/srtpsession"
	"github.com/ethan/streamkit/pkg/streamer"
	"github.com/ethan/streamkit/pkg/streamers"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// State is the session's forward-only handshake state.
type State int

const (
	StateInit State = iota
	StateSdpDone
	StateStunDone
	StateDtlsDone
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateSdpDone:
		return "SdpDone"
	case StateStunDone:
		return "StunDone"
	case StateDtlsDone:
		return "DtlsDone"
	case StateClosed:
		return "Closed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// byte-range demux per RFC 7983.
func classify(b byte) string {
	switch {
	case b <= 1:
		return "stun"
	case b >= 20 && b <= 63:
		return "dtls"
	case b >= 128:
		return "srtp"
	default:
		return "unknown"
	}
}

// PeerConnection owns one UDP socket and the full handshake+media stack for
// a single remote peer.
type PeerConnection struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
	log    *logger.Logger
	report streamer.Reporter

	mu    sync.Mutex
	state State

	localSDP  *sdpneg.Session
	remoteSDP *sdpneg.Session

	keepalive *ice.Keepalive
	dtls      *dtlsengine.Engine
	srtp      *srtpsession.Pair

	videoPT uint8

	sendStreams []*sendstream.Stream
	recvStreams []*recvstream.Stream

	videoPacketizer   *rtppack.H264Packetizer
	videoDepacketizer *rtppack.H264Depacketizer
	videoStreamer     streamer.Streamer

	cancel context.CancelFunc
}

// reportInterval is how often Start's report loop ticks sendStreams'
// Sender Reports and builds recvStreams' Receiver Reports.
const reportInterval = 100 * time.Millisecond

// New constructs a PeerConnection bound to conn, in StateInit.
func New(conn *net.UDPConn, log *logger.Logger) *PeerConnection {
	return &PeerConnection{
		conn:  conn,
		log:   logger.OrDefault(log),
		state: StateInit,
	}
}

// SetReporter installs the session-level event sink.
func (pc *PeerConnection) SetReporter(r streamer.Reporter) { pc.report = r }

// State returns the current handshake state.
func (pc *PeerConnection) State() State {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.state
}

func (pc *PeerConnection) advance(to State) {
	pc.mu.Lock()
	pc.state = to
	pc.mu.Unlock()
	if pc.report != nil {
		pc.report("session", streamer.EventHandshake, to.String())
	}
}

// fail transitions to Failed, closing everything and reporting the error.
func (pc *PeerConnection) fail(err error) {
	pc.mu.Lock()
	pc.state = StateFailed
	pc.mu.Unlock()
	pc.log.Error("session failed", "err", err)
	if pc.report != nil {
		pc.report("session", streamer.EventError, err.Error())
	}
	pc.Close()
}

// Negotiate parses the remote SDP, builds the local answer using dtls's
// fingerprint, and transitions Init -> SdpDone.
func (pc *PeerConnection) Negotiate(remoteSDP []byte, localUfrag, localPwd string) ([]byte, error) {
	if pc.State() != StateInit {
		return nil, fmt.Errorf("session: Negotiate called outside Init (state=%s)", pc.State())
	}

	remote, err := sdpneg.Parse(remoteSDP)
	if err != nil {
		return nil, fmt.Errorf("session: parse remote sdp: %w", err)
	}

	engine, err := dtlsengine.New()
	if err != nil {
		return nil, fmt.Errorf("session: dtls engine init: %w", err)
	}
	pc.dtls = engine

	local := &sdpneg.Session{
		Origin:          remote.Origin + 1,
		Name:            remote.Name,
		ICEUfrag:        localUfrag,
		ICEPwd:          localPwd,
		FingerprintAlgo: "sha-256",
		FingerprintHex:  engine.Fingerprint,
		Setup:           "passive",
		BundleMids:      remote.BundleMids,
		Video:           remote.Video,
		Audio:           remote.Audio,
	}

	pc.mu.Lock()
	pc.localSDP = local
	pc.remoteSDP = remote
	if remote.Video != nil && len(remote.Video.Codecs) > 0 {
		pc.videoPT = remote.Video.Codecs[0].PayloadType
	}
	pc.mu.Unlock()

	pc.advance(StateSdpDone)

	keepalive := ice.New(remote.ICEUfrag, localUfrag, remote.ICEPwd, pc.sendToRemote, pc.onCandidateRewrite)
	pc.mu.Lock()
	pc.keepalive = keepalive
	pc.mu.Unlock()

	return local.Marshal(), nil
}

// CreateOffer builds a local SDP offer carrying a single video MediaBlock
// for codec/payloadType at clockRate, for the offerer (WHIP publish) side
// of negotiation. It does not transition state; CompleteOffer does once the
// remote answer arrives.
func (pc *PeerConnection) CreateOffer(localUfrag, localPwd, codecName string, payloadType uint8, clockRate uint32) ([]byte, error) {
	if pc.State() != StateInit {
		return nil, fmt.Errorf("session: CreateOffer called outside Init (state=%s)", pc.State())
	}

	engine, err := dtlsengine.New()
	if err != nil {
		return nil, fmt.Errorf("session: dtls engine init: %w", err)
	}
	pc.dtls = engine

	ssrc, err := randomSSRC()
	if err != nil {
		return nil, fmt.Errorf("session: generate local ssrc: %w", err)
	}

	local := &sdpneg.Session{
		Origin:          1,
		Name:            "-",
		ICEUfrag:        localUfrag,
		ICEPwd:          localPwd,
		FingerprintAlgo: "sha-256",
		FingerprintHex:  engine.Fingerprint,
		Setup:           "actpass",
		BundleMids:      []string{"0"},
		Video: &sdpneg.MediaBlock{
			Kind:      "video",
			Mid:       "0",
			Direction: sdpneg.DirSendOnly,
			Codecs:    []sdpneg.Codec{{PayloadType: payloadType, Name: codecName, ClockRate: clockRate}},
			SSRCs:     []sdpneg.SSRCEntry{{SSRC: ssrc, CName: "streamkit", MSID: "streamkit-video"}},
		},
	}

	pc.mu.Lock()
	pc.localSDP = local
	pc.videoPT = payloadType
	pc.mu.Unlock()

	return local.Marshal(), nil
}

// randomSSRC draws a non-zero 32-bit synchronization source identifier.
func randomSSRC() (uint32, error) {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		if ssrc := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]); ssrc != 0 {
			return ssrc, nil
		}
	}
}

// CompleteOffer ingests the remote SDP answer to a CreateOffer-built
// offer, transitioning Init -> SdpDone and starting the ICE keepalive.
func (pc *PeerConnection) CompleteOffer(remoteAnswer []byte) error {
	if pc.State() != StateInit {
		return fmt.Errorf("session: CompleteOffer called outside Init (state=%s)", pc.State())
	}
	pc.mu.Lock()
	local := pc.localSDP
	pc.mu.Unlock()
	if local == nil {
		return fmt.Errorf("session: CompleteOffer called before CreateOffer")
	}

	remote, err := sdpneg.Parse(remoteAnswer)
	if err != nil {
		return fmt.Errorf("session: parse remote answer: %w", err)
	}

	pc.mu.Lock()
	pc.remoteSDP = remote
	pc.mu.Unlock()

	pc.advance(StateSdpDone)

	keepalive := ice.New(remote.ICEUfrag, local.ICEUfrag, remote.ICEPwd, pc.sendToRemote, pc.onCandidateRewrite)
	pc.mu.Lock()
	pc.keepalive = keepalive
	pc.mu.Unlock()

	return nil
}

func (pc *PeerConnection) sendToRemote(b []byte) error {
	pc.mu.Lock()
	remote := pc.remote
	pc.mu.Unlock()
	if remote == nil {
		return fmt.Errorf("session: remote address not yet known")
	}
	_, err := pc.conn.WriteToUDP(b, remote)
	return err
}

func (pc *PeerConnection) onCandidateRewrite(addr *net.UDPAddr) {
	pc.mu.Lock()
	pc.remote = addr
	pc.mu.Unlock()
}

// Start begins the STUN keepalive and, once it completes, the DTLS
// handshake, then wires SRTP and the send/recv streams. It runs the UDP
// demux read loop on its own goroutine until ctx is canceled.
func (pc *PeerConnection) Start(ctx context.Context, remote *net.UDPAddr) error {
	pc.mu.Lock()
	pc.remote = remote
	keepalive := pc.keepalive
	pc.mu.Unlock()
	if keepalive == nil {
		return fmt.Errorf("session: Start called before Negotiate")
	}

	runCtx, cancel := context.WithCancel(ctx)
	pc.cancel = cancel

	keepalive.Start()
	go pc.readLoop(runCtx)
	go pc.reportLoop(runCtx)

	go func() {
		select {
		case <-keepalive.Done():
			pc.advance(StateStunDone)
			if err := pc.dtls.StartServer(runCtx, pc.sendToRemote, pc.conn.LocalAddr(), pc.remote); err != nil {
				pc.fail(err)
				return
			}
			pc.onDtlsEstablished()
		case <-runCtx.Done():
		}
	}()

	return nil
}

func (pc *PeerConnection) onDtlsEstablished() {
	keys, err := pc.dtls.ExportKeys()
	if err != nil {
		pc.fail(err)
		return
	}
	pair, err := srtpsession.New(keys.ServerKey, keys.ServerSalt, keys.ClientKey, keys.ClientSalt, pc.log)
	if err != nil {
		pc.fail(err)
		return
	}
	pc.mu.Lock()
	pc.srtp = pair
	pc.mu.Unlock()

	pc.wireMediaStreams()

	pc.advance(StateDtlsDone)
	if pc.report != nil {
		pc.report("session", streamer.EventHandshake, streamer.ValuePublish)
	}
}

// wireMediaStreams builds the send/recv streams this PeerConnection
// negotiated: a sendstream.Stream when the local SDP declared its own
// media SSRC (we are the source), a recvstream.Stream plus H.264
// depacketizer and pipeline stage when the remote SDP declared one (the
// remote is the source).
func (pc *PeerConnection) wireMediaStreams() {
	pc.mu.Lock()
	local, remote := pc.localSDP, pc.remoteSDP
	pc.mu.Unlock()
	if local == nil || remote == nil {
		return
	}

	if local.Video != nil && len(local.Video.SSRCs) > 0 && len(local.Video.Codecs) > 0 {
		clockRate := local.Video.Codecs[0].ClockRate
		stream := sendstream.New(local.Video.SSRCs[0].SSRC, clockRate, pc.protectAndSend, pc.log)
		pc.mu.Lock()
		pc.sendStreams = append(pc.sendStreams, stream)
		pc.videoPacketizer = rtppack.NewH264Packetizer()
		pc.mu.Unlock()
	}

	if remote.Video != nil && len(remote.Video.SSRCs) > 0 && len(remote.Video.Codecs) > 0 {
		clockRate := remote.Video.Codecs[0].ClockRate
		stream := recvstream.New(remote.Video.SSRCs[0].SSRC, clockRate, pc.protectAndSend, pc.log)
		depacketizer := rtppack.NewH264Depacketizer()
		depacketizer.OnReset = func() { stream.RequestKeyFrame(stream.SSRC()) }
		pc.mu.Lock()
		pc.recvStreams = append(pc.recvStreams, stream)
		pc.videoDepacketizer = depacketizer
		pc.mu.Unlock()

		stage, err := streamer.DefaultFactory().Make(streamers.Name)
		if err != nil {
			pc.log.Warn("no video streamer stage registered", "err", err)
		} else {
			pc.mu.Lock()
			pc.videoStreamer = stage
			pc.mu.Unlock()
		}
	}
}

// protectAndSend SRTP- or SRTCP-protects a plaintext-marshaled packet,
// distinguishing the two by the RFC 5761 payload-type range the same way
// readLoop demuxes inbound packets, then writes it to the remote address.
// It is the Send every sendstream.Stream/recvstream.Stream delivers its
// marshaled RTP/RTCP packets through.
func (pc *PeerConnection) protectAndSend(raw []byte) error {
	if len(raw) < 2 {
		return fmt.Errorf("session: packet too short to classify")
	}

	pc.mu.Lock()
	pair := pc.srtp
	pc.mu.Unlock()
	if pair == nil {
		return fmt.Errorf("session: srtp not yet established")
	}

	if pt := raw[1]; pt >= 192 && pt <= 223 {
		protected, err := pair.EncryptRTCP(raw)
		if err != nil {
			return err
		}
		return pc.sendToRemote(protected)
	}

	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(raw); err != nil {
		return fmt.Errorf("session: unmarshal outbound rtp: %w", err)
	}
	protected, err := pair.EncryptRTP(&pkt.Header, pkt.Payload)
	if err != nil {
		return err
	}
	return pc.sendToRemote(protected)
}

// SendVideoFrame packetizes one Annex-B-framed NAL unit (start code
// already stripped) over the negotiated video send stream.
func (pc *PeerConnection) SendVideoFrame(nal []byte, isKeyFrame bool, dtsMs int64) error {
	pc.mu.Lock()
	var stream *sendstream.Stream
	if len(pc.sendStreams) > 0 {
		stream = pc.sendStreams[0]
	}
	packetizer := pc.videoPacketizer
	payloadType := pc.videoPT
	pc.mu.Unlock()
	if stream == nil || packetizer == nil {
		return fmt.Errorf("session: no video send stream negotiated")
	}

	ts := stream.TimestampFor(dtsMs)
	for _, pkt := range packetizer.Packetize(nal, isKeyFrame, ts, stream.SSRC(), payloadType) {
		if err := stream.SendRTP(pkt); err != nil {
			return err
		}
	}
	return nil
}

// readLoop is the single goroutine demuxing inbound UDP datagrams by
// first-byte range (RFC 7983) and routing them to the right component.
func (pc *PeerConnection) readLoop(ctx context.Context) {
	buf := make([]byte, 2000)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = pc.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := pc.conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		if n == 0 {
			continue
		}
		data := buf[:n]

		switch classify(data[0]) {
		case "stun":
			pc.mu.Lock()
			keepalive := pc.keepalive
			pc.mu.Unlock()
			if keepalive != nil {
				_ = keepalive.OnResponse(data)
			}
		case "dtls":
			if pc.dtls != nil {
				pc.dtls.Feed(data)
			}
		case "srtp":
			pc.mu.Lock()
			pair := pc.srtp
			pc.mu.Unlock()
			if pair == nil || len(data) < 2 {
				continue
			}
			if pt := data[1]; pt >= 192 && pt <= 223 {
				pc.handleRTCP(pair, data)
			} else {
				pc.handleRTP(pair, data)
			}
		}
	}
}

// handleRTP decrypts one SRTP packet, feeds it to the matching
// recvstream.Stream by SSRC for jitter/loss tracking, and depacketizes
// its payload into Annex-B NAL units for the video pipeline stage.
func (pc *PeerConnection) handleRTP(pair *srtpsession.Pair, data []byte) {
	payload, header, err := pair.DecryptRTP(data)
	if err != nil || header == nil {
		return
	}
	pkt := &rtp.Packet{Header: *header, Payload: payload}

	pc.mu.Lock()
	var stream *recvstream.Stream
	for _, s := range pc.recvStreams {
		if s.SSRC() == pkt.SSRC {
			stream = s
			break
		}
	}
	depacketizer := pc.videoDepacketizer
	mediaStreamer := pc.videoStreamer
	pc.mu.Unlock()

	if stream == nil {
		return
	}
	if _, valid := stream.OnPacket(pkt, time.Now()); !valid || depacketizer == nil {
		return
	}

	for _, nal := range depacketizer.Depacketize(pkt) {
		pc.dispatchNAL(mediaStreamer, nal)
	}
}

// dispatchNAL wraps one Annex-B NAL unit into a MediaPacket and feeds it
// into the negotiated video streamer stage.
func (pc *PeerConnection) dispatchNAL(mediaStreamer streamer.Streamer, nal []byte) {
	if mediaStreamer == nil || len(nal) < 5 {
		return
	}
	pkt, err := packet.New(packet.AVVideo, packet.CodecH264, packet.FormatRaw, nal)
	if err != nil {
		pc.log.Warn("dropping malformed depacketized nal", "err", err)
		return
	}
	if err := pkt.SetKeyFrame(nal[4]&0x1F == rtppack.NALTypeIDR); err != nil {
		pc.log.Warn("failed to mark key frame", "err", err)
	}
	if err := mediaStreamer.SourceData(pkt); err != nil {
		pc.log.Warn("streamer rejected media packet", "err", err)
	}
}

// handleRTCP decrypts one SRTCP compound packet and routes each feedback
// message to the send/recv stream it names by SSRC.
func (pc *PeerConnection) handleRTCP(pair *srtpsession.Pair, data []byte) {
	plain, err := pair.DecryptRTCP(data)
	if err != nil || plain == nil {
		return
	}
	packets, err := rtcp.Unmarshal(plain)
	if err != nil {
		return
	}

	now := time.Now()
	pc.mu.Lock()
	sendStreams := append([]*sendstream.Stream(nil), pc.sendStreams...)
	recvStreams := append([]*recvstream.Stream(nil), pc.recvStreams...)
	pc.mu.Unlock()

	for _, p := range packets {
		switch v := p.(type) {
		case *rtcp.ReceiverReport:
			for _, report := range v.Reports {
				for _, s := range sendStreams {
					if s.SSRC() == report.SSRC {
						s.OnReceiverReport(now, report)
					}
				}
			}
		case *rtcp.SenderReport:
			for _, s := range recvStreams {
				if s.SSRC() == v.SSRC {
					s.OnSenderReport(now, v)
				}
			}
		case *rtcp.TransportLayerNack:
			for _, s := range sendStreams {
				if s.SSRC() == v.MediaSSRC {
					s.OnNack(v)
				}
			}
		}
	}
}

// reportLoop ticks sendStreams' periodic Sender Reports and emits
// recvStreams' Receiver Reports until ctx is canceled.
func (pc *PeerConnection) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			pc.mu.Lock()
			sendStreams := append([]*sendstream.Stream(nil), pc.sendStreams...)
			recvStreams := append([]*recvstream.Stream(nil), pc.recvStreams...)
			pc.mu.Unlock()

			for _, s := range sendStreams {
				s.Tick(now)
			}
			for _, s := range recvStreams {
				rr := s.BuildReceiverReport(now)
				raw, err := rr.Marshal()
				if err != nil {
					continue
				}
				if err := pc.protectAndSend(raw); err != nil {
					pc.log.Warn("failed to send receiver report", "err", err)
				}
			}
		}
	}
}

// Close tears down timers, the UDP read loop, and SRTP state.
func (pc *PeerConnection) Close() error {
	pc.mu.Lock()
	if pc.state == StateClosed {
		pc.mu.Unlock()
		return nil
	}
	pc.state = StateClosed
	keepalive := pc.keepalive
	engine := pc.dtls
	pc.srtp = nil
	pc.mu.Unlock()

	if pc.cancel != nil {
		pc.cancel()
	}
	if keepalive != nil {
		keepalive.Stop()
	}
	if engine != nil {
		_ = engine.Close()
	}
	if pc.report != nil {
		pc.report("session", streamer.EventHandshake, streamer.ValueClose)
	}
	return nil
}
