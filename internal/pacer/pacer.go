package pacer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/antoniostano/audiohook-bridge/internal/audio"
	"github.com/antoniostano/audiohook-bridge/internal/dialogue"
	"github.com/antoniostano/audiohook-bridge/internal/observability"
	"github.com/antoniostano/audiohook-bridge/internal/reliability"
)

// Source yields chunks in order, blocking until one is available.
type Source interface {
	Pop(ctx context.Context) ([]byte, error)
}

// Sink writes one binary audio frame to the telephony side.
type Sink interface {
	WriteAudio(chunk []byte) error
}

// Pacer plays queued PCMU audio to the telephony side no faster than real
// time: after each frame it waits for as long as the frame lasts.
type Pacer struct {
	src     Source
	sink    Sink
	rate    int
	log     *zap.Logger
	metrics *observability.Metrics
}

func New(src Source, sink Sink, log *zap.Logger, metrics *observability.Metrics) *Pacer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pacer{src: src, sink: sink, rate: audio.TelephonySampleRate, log: log, metrics: metrics}
}

// Duration is the playout time of a PCMU chunk, one byte per sample.
func Duration(chunk []byte, rate int) time.Duration {
	return time.Duration(len(chunk)) * time.Second / time.Duration(rate)
}

// Run drains the source until it closes, ctx ends or a write fails. Orderly
// endings return nil.
func (p *Pacer) Run(ctx context.Context) error {
	p.log.Info("starting audio pacer")
	defer p.log.Info("audio pacer stopped")

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		chunk, err := p.src.Pop(ctx)
		if err != nil {
			if errors.Is(err, dialogue.ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := p.sink.WriteAudio(chunk); err != nil {
			if reliability.IsConnectionClosed(err) {
				p.log.Info("telephony connection closed, pacer stopping")
				return nil
			}
			p.log.Error("unexpected error in pacer", zap.Error(err))
			return err
		}

		d := Duration(chunk, p.rate)
		p.metrics.AudioPaced(d)
		timer.Reset(d)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}
