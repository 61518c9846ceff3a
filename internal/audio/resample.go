package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrPartialSample is returned for PCM16 input with a trailing odd byte.
var ErrPartialSample = errors.New("pcm16 input is not a whole number of samples")

// Resampler converts mono PCM16LE between two rates by linear interpolation.
// It keeps the conversion phase and the last input samples between calls so
// that a stream split into arbitrary chunks resamples exactly as if it had
// been processed in one piece. A Resampler is not safe for concurrent use.
type Resampler struct {
	inRate  int
	outRate int

	primed bool
	phase  int
	prev   int32
	cur    int32
}

func NewResampler(inRate, outRate int) (*Resampler, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("invalid resample rates %d -> %d", inRate, outRate)
	}
	g := gcd(inRate, outRate)
	return &Resampler{inRate: inRate / g, outRate: outRate / g}, nil
}

// Process converts one chunk, advancing the carried state.
func (r *Resampler) Process(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, ErrPartialSample
	}
	if !r.primed {
		r.phase = -r.outRate
		r.primed = true
	}

	n := len(pcm) / 2
	out := make([]byte, 0, (n*r.outRate/r.inRate+2)*2)
	i := 0
	for {
		for r.phase < 0 {
			if i == n {
				return out, nil
			}
			r.prev = r.cur
			r.cur = int32(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
			i++
			r.phase += r.outRate
		}
		for r.phase >= 0 {
			v := (int64(r.prev)*int64(r.phase) + int64(r.cur)*int64(r.outRate-r.phase)) / int64(r.outRate)
			out = binary.LittleEndian.AppendUint16(out, uint16(int16(v)))
			r.phase -= r.inRate
		}
	}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
