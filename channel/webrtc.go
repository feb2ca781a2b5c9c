package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codewandler/pharmacyrt-go/internal/pcm"
	"github.com/codewandler/pharmacyrt-go/signaling"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/zaf/g711"
)

const (
	DataChannelLabel = "oai-events"

	pcmuSampleRate = 8000
	pcmuFrame      = 20 * time.Millisecond
)

var pcmuCodec = webrtc.RTPCodecCapability{
	MimeType:  webrtc.MimeTypePCMU,
	ClockRate: pcmuSampleRate,
	Channels:  1,
}

// WebRTCTransport runs the session over a peer connection: a PCMU audio
// track in each direction and the event data channel.
type WebRTCTransport struct {
	signaling   signaling.Client
	logger      *slog.Logger
	iceServers  []webrtc.ICEServer
	openTimeout time.Duration

	ready atomic.Bool

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	dc        *webrtc.DataChannel
	done      chan struct{}
	closeOnce *sync.Once
}

type WebRTCOption func(*WebRTCTransport)

func WithWebRTCLogger(logger *slog.Logger) WebRTCOption {
	return func(t *WebRTCTransport) {
		t.logger = logger
	}
}

func WithICEServers(servers ...webrtc.ICEServer) WebRTCOption {
	return func(t *WebRTCTransport) {
		t.iceServers = servers
	}
}

// WithOpenTimeout bounds the wait for the data channel after the answer was
// applied.
func WithOpenTimeout(d time.Duration) WebRTCOption {
	return func(t *WebRTCTransport) {
		t.openTimeout = d
	}
}

func NewWebRTCTransport(sig signaling.Client, opts ...WebRTCOption) *WebRTCTransport {
	t := &WebRTCTransport{
		signaling:   sig,
		logger:      slog.New(slog.DiscardHandler),
		openTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *WebRTCTransport) newPeerConnection() (*webrtc.PeerConnection, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: pcmuCodec,
		PayloadType:        0,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register codec: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m))
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: t.iceServers})
}

func (t *WebRTCTransport) Connect(ctx context.Context, params TransportParams) error {
	pc, err := t.newPeerConnection()
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	done := make(chan struct{})

	t.mu.Lock()
	t.pc = pc
	t.done = done
	t.closeOnce = &sync.Once{}
	t.mu.Unlock()

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		t.logger.Debug("connection state", slog.String("state", s.String()))
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			t.ready.Store(false)
		}
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t.logger.Info("received remote audio track", slog.String("codec", remote.Codec().MimeType))
		go t.readRemoteAudio(remote, params)
	})

	var track *webrtc.TrackLocalStaticSample
	if params.Audio != nil {
		track, err = webrtc.NewTrackLocalStaticSample(pcmuCodec, "audio", "pharmacyrt")
		if err != nil {
			return fmt.Errorf("create audio track: %w", err)
		}
		sender, err := pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add audio track: %w", err)
		}
		go drainRTCP(sender)
	} else {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("add audio transceiver: %w", err)
		}
	}

	dc, err := pc.CreateDataChannel(DataChannelLabel, nil)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	t.mu.Lock()
	t.dc = dc
	t.mu.Unlock()

	opened := make(chan struct{})
	var openOnce sync.Once
	dc.OnOpen(func() {
		t.logger.Info("data channel opened")
		t.ready.Store(true)
		openOnce.Do(func() { close(opened) })
	})
	dc.OnClose(func() {
		t.logger.Info("data channel closed")
		wasReady := t.ready.Swap(false)
		if wasReady && params.OnClose != nil {
			params.OnClose()
		}
	})
	dc.OnError(func(err error) {
		t.logger.Error("data channel error", slog.Any("err", err))
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !msg.IsString {
			t.logger.Debug("ignoring binary data channel message", slog.Int("len", len(msg.Data)))
			return
		}
		if params.OnMessage != nil {
			params.OnMessage(msg.Data)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return fmt.Errorf("ice gathering: %w", ctx.Err())
	}

	answer, err := t.signaling.ExchangeSDP(ctx, pc.LocalDescription().SDP)
	if err != nil {
		return err
	}
	t.logger.Debug("received sdp answer")

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	timer := time.NewTimer(t.openTimeout)
	defer timer.Stop()
	select {
	case <-opened:
	case <-ctx.Done():
		return fmt.Errorf("wait for data channel: %w", ctx.Err())
	case <-timer.C:
		return fmt.Errorf("wait for data channel: %w", ErrSideChannelClosed)
	}

	if track != nil {
		go t.writeLocalAudio(track, params.Audio, params.SampleRate, done)
	}

	t.logger.Info("webrtc session established")
	return nil
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// writeLocalAudio encodes the capture stream into 20ms PCMU samples.
func (t *WebRTCTransport) writeLocalAudio(track *webrtc.TrackLocalStaticSample, audio io.Reader, sampleRate int, done <-chan struct{}) {
	frames := pcm.NewDurationReader(pcm.NewResampleReader(audio, sampleRate, pcmuSampleRate), pcmuSampleRate, pcmuFrame)
	buf := make([]byte, frames.ChunkSize())

	for {
		n, err := frames.Read(buf)
		if n > 0 {
			samples := n / pcm.BytesPerSample
			sample := media.Sample{
				Data:     g711.EncodeUlaw(buf[:n]),
				Duration: time.Duration(samples) * time.Second / pcmuSampleRate,
			}
			if werr := track.WriteSample(sample); werr != nil {
				if errors.Is(werr, io.ErrClosedPipe) {
					return
				}
				t.logger.Error("failed to write audio sample", slog.Any("err", werr))
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.logger.Debug("microphone stream ended", slog.Any("err", err))
			}
			return
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

// readRemoteAudio decodes PCMU RTP payloads into the playback sink.
func (t *WebRTCTransport) readRemoteAudio(remote *webrtc.TrackRemote, params TransportParams) {
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.logger.Debug("remote audio ended", slog.Any("err", err))
			}
			return
		}
		if len(pkt.Payload) == 0 || params.Playback == nil {
			continue
		}
		out, err := pcm.Resample(g711.DecodeUlaw(pkt.Payload), pcmuSampleRate, params.PlaybackRate)
		if err != nil {
			t.logger.Error("failed to resample remote audio", slog.Any("err", err))
			continue
		}
		if _, err := params.Playback.Write(out); err != nil {
			return
		}
	}
}

func (t *WebRTCTransport) Send(data []byte) error {
	t.mu.Lock()
	dc := t.dc
	t.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrSideChannelClosed
	}
	return dc.SendText(string(data))
}

func (t *WebRTCTransport) Ready() bool {
	return t.ready.Load()
}

// Close closes the data channel, then the peer connection.
func (t *WebRTCTransport) Close() error {
	t.mu.Lock()
	pc, dc, done, once := t.pc, t.dc, t.done, t.closeOnce
	t.pc, t.dc = nil, nil
	t.mu.Unlock()

	t.ready.Store(false)
	if once == nil {
		return nil
	}

	var errs []error
	once.Do(func() {
		close(done)
		if dc != nil {
			if err := dc.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close data channel: %w", err))
			}
		}
		if pc != nil {
			if err := pc.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close peer connection: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}
