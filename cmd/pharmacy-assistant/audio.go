package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/codewandler/pharmacyrt-go/channel"
	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 480

// mic opens the default PortAudio input device as 16-bit mono PCM.
type mic struct {
	sampleRate int
}

func (m mic) Open(ctx context.Context) (channel.AudioStream, error) {
	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, mediaError(err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, mediaError(err)
	}
	return &micStream{stream: stream, buf: buf, sampleRate: m.sampleRate}, nil
}

func mediaError(err error) error {
	switch {
	case errors.Is(err, portaudio.InvalidDevice):
		return fmt.Errorf("%w: %w", channel.ErrDeviceNotFound, err)
	case errors.Is(err, portaudio.DeviceUnavailable):
		return fmt.Errorf("%w: %w", channel.ErrDeviceBusy, err)
	default:
		return err
	}
}

type micStream struct {
	stream     *portaudio.Stream
	buf        []int16
	pending    []byte
	sampleRate int

	closeOnce sync.Once
}

func (s *micStream) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		if err := s.stream.Read(); err != nil {
			return 0, err
		}
		s.pending = make([]byte, len(s.buf)*2)
		for i, v := range s.buf {
			binary.LittleEndian.PutUint16(s.pending[i*2:], uint16(v))
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *micStream) SampleRate() int { return s.sampleRate }

func (s *micStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = errors.Join(s.stream.Stop(), s.stream.Close())
	})
	return err
}

// play writes 16-bit mono PCM from r to the default output device until r
// returns an error.
func play(r io.Reader, sampleRate int, logger *slog.Logger) error {
	out := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), framesPerBuffer, out)
	if err != nil {
		return fmt.Errorf("open speaker: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("start speaker: %w", err)
	}

	go func() {
		defer func() {
			_ = stream.Stop()
			_ = stream.Close()
		}()

		frame := make([]byte, len(out)*2)
		for {
			if _, err := io.ReadFull(r, frame); err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					logger.Error("playback stopped", slog.Any("err", err))
				}
				return
			}
			for i := range out {
				out[i] = int16(binary.LittleEndian.Uint16(frame[i*2:]))
			}
			if err := stream.Write(); err != nil {
				logger.Warn("speaker write failed", slog.Any("err", err))
			}
		}
	}()

	return nil
}
