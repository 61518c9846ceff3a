package audio

import (
	"fmt"

	"github.com/zaf/g711"
)

const (
	// TelephonySampleRate is the PCMU rate on the telephony side; one byte per sample.
	TelephonySampleRate = 8000
	// DialogueSampleRate is the LINEAR16 rate on the dialogue side.
	DialogueSampleRate = 16000
)

// Direction names which way a Transform moves audio.
type Direction string

const (
	ToDialogue  Direction = "to_dialogue"
	ToTelephony Direction = "to_telephony"
)

// Transform converts audio in one direction with its own resampler state.
type Transform struct {
	dir Direction
	rs  *Resampler
}

func newTransform(dir Direction) *Transform {
	var rs *Resampler
	switch dir {
	case ToDialogue:
		rs, _ = NewResampler(TelephonySampleRate, DialogueSampleRate)
	default:
		rs, _ = NewResampler(DialogueSampleRate, TelephonySampleRate)
	}
	return &Transform{dir: dir, rs: rs}
}

func (t *Transform) Direction() Direction {
	return t.dir
}

// Apply converts one chunk. ToDialogue takes PCMU and yields 16 kHz PCM16LE;
// ToTelephony takes 16 kHz PCM16LE and yields PCMU.
func (t *Transform) Apply(chunk []byte) ([]byte, error) {
	if len(chunk) == 0 {
		return nil, nil
	}
	switch t.dir {
	case ToDialogue:
		return t.rs.Process(g711.DecodeUlaw(chunk))
	case ToTelephony:
		pcm, err := t.rs.Process(chunk)
		if err != nil {
			return nil, err
		}
		return g711.EncodeUlaw(pcm), nil
	default:
		return nil, fmt.Errorf("unknown audio direction %q", t.dir)
	}
}

// Pipeline holds the two per-call transforms. Their state lives as long as
// the call and is never reset.
type Pipeline struct {
	Upstream   *Transform
	Downstream *Transform
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		Upstream:   newTransform(ToDialogue),
		Downstream: newTransform(ToTelephony),
	}
}
