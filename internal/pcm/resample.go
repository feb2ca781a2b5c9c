package pcm

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/faiface/beep"
)

type pcmStreamer struct {
	data []int16
	pos  int
}

func newPCMStreamer(b []byte) *pcmStreamer {
	samples := make([]int16, len(b)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return &pcmStreamer{data: samples}
}

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if s.pos >= len(s.data) {
			return i, i > 0
		}
		val := float64(s.data[s.pos]) / 32768.0
		samples[i][0] = val
		samples[i][1] = val
		s.pos++
	}
	return len(samples), true
}

func (s *pcmStreamer) Err() error { return nil }

// Resample converts mono PCM16 between sample rates.
func Resample(pcmData []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate == toRate || len(pcmData) < BytesPerSample {
		return pcmData, nil
	}

	resampler := beep.Resample(3, beep.SampleRate(fromRate), beep.SampleRate(toRate), newPCMStreamer(pcmData))

	buf := new(bytes.Buffer)
	sample := make([][2]float64, 512)

	for {
		n, ok := resampler.Stream(sample)
		for i := 0; i < n; i++ {
			mono := clamp((sample[i][0] + sample[i][1]) / 2.0)
			if err := binary.Write(buf, binary.LittleEndian, int16(mono*32767)); err != nil {
				return nil, err
			}
		}
		if !ok {
			break
		}
	}

	return buf.Bytes(), nil
}

func clamp(f float64) float64 {
	switch {
	case f > 1:
		return 1
	case f < -1:
		return -1
	default:
		return f
	}
}

// ResampleReader reads mono PCM16 at FromRate and yields it at ToRate.
type ResampleReader struct {
	src      io.Reader
	fromRate int
	toRate   int
	in       []byte
	pending  []byte
}

func NewResampleReader(src io.Reader, fromRate, toRate int) io.Reader {
	if fromRate == toRate {
		return src
	}
	return &ResampleReader{
		src:      src,
		fromRate: fromRate,
		toRate:   toRate,
		in:       make([]byte, ChunkSize(fromRate, 20*time.Millisecond)),
	}
}

func (r *ResampleReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		n, err := r.src.Read(r.in)
		n -= n % BytesPerSample
		if n > 0 {
			out, rerr := Resample(r.in[:n], r.fromRate, r.toRate)
			if rerr != nil {
				return 0, rerr
			}
			r.pending = out
		}
		if err != nil && len(r.pending) == 0 {
			return 0, err
		}
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
