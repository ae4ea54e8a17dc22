package speech

import "sync"

// An MPEG-1 Layer III frame at 128 kbit/s, 44.1 kHz, mono, no padding is 417
// bytes and lasts 1152 samples. A header followed by zeroed side info and main
// data decodes as silence.
var silentFrameHeader = [4]byte{0xFF, 0xFB, 0x90, 0xC4}

const (
	silentFrameSize = 417
	silentFrames    = 39 // ~1.02s
)

var (
	silenceOnce sync.Once
	silenceMP3  []byte
)

// Silence returns about one second of silent MP3 audio. Callers must not
// modify the returned slice.
func Silence() []byte {
	silenceOnce.Do(func() {
		buf := make([]byte, silentFrameSize*silentFrames)
		for i := range silentFrames {
			copy(buf[i*silentFrameSize:], silentFrameHeader[:])
		}
		silenceMP3 = buf
	})
	return silenceMP3
}
