package audiohook

import (
	"github.com/antoniostano/audiohook-bridge/internal/audio"
	"github.com/antoniostano/audiohook-bridge/internal/protocol"
)

const (
	mediaTypeAudio  = "audio"
	mediaFormatPCMU = "PCMU"
)

// SelectMedia picks the first offer the bridge can carry: PCMU audio at
// 8 kHz.
func SelectMedia(offers []protocol.Media) (protocol.Media, error) {
	for _, m := range offers {
		if m.Type == mediaTypeAudio && m.Format == mediaFormatPCMU && m.Rate == audio.TelephonySampleRate {
			return m, nil
		}
	}
	return protocol.Media{}, ErrNoCompatibleMedia
}
