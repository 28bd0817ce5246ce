package media

import "bytes"

// Kind classifies a sniffed container.
type Kind int

const (
	KindUnknown Kind = iota
	KindAudio
	KindVideo
)

// Format describes a sniffed media container.
type Format struct {
	Name string
	Kind Kind
}

// sniffLen is how many leading bytes Sniff needs to classify a file.
const sniffLen = 16

// Sniff inspects the leading bytes of a file and classifies the container.
// Content is the source of truth; declared MIME types and file extensions
// are never consulted.
func Sniff(header []byte) Format {
	if len(header) < 4 {
		return Format{Name: "unknown", Kind: KindUnknown}
	}

	switch {
	case bytes.HasPrefix(header, []byte("RIFF")):
		if len(header) >= 12 && bytes.Equal(header[8:12], []byte("WAVE")) {
			return Format{Name: "wav", Kind: KindAudio}
		}
		if len(header) >= 12 && bytes.Equal(header[8:12], []byte("AVI ")) {
			return Format{Name: "avi", Kind: KindVideo}
		}
		return Format{Name: "riff", Kind: KindUnknown}

	case bytes.HasPrefix(header, []byte("OggS")):
		return Format{Name: "ogg", Kind: KindAudio}

	case bytes.HasPrefix(header, []byte("fLaC")):
		return Format{Name: "flac", Kind: KindAudio}

	case bytes.HasPrefix(header, []byte("ID3")):
		return Format{Name: "mp3", Kind: KindAudio}

	// MPEG audio frame sync: 11 set bits.
	case len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		return Format{Name: "mp3", Kind: KindAudio}

	// ISO BMFF (mp4, mov, m4a): size box then "ftyp".
	case len(header) >= 8 && bytes.Equal(header[4:8], []byte("ftyp")):
		if len(header) >= 12 && bytes.HasPrefix(header[8:], []byte("M4A")) {
			return Format{Name: "m4a", Kind: KindAudio}
		}
		return Format{Name: "mp4", Kind: KindVideo}

	// EBML header (mkv, webm).
	case bytes.HasPrefix(header, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return Format{Name: "matroska", Kind: KindVideo}

	case bytes.HasPrefix(header, []byte("FLV")):
		return Format{Name: "flv", Kind: KindVideo}

	// ASF (wmv, wma) GUID prefix.
	case bytes.HasPrefix(header, []byte{0x30, 0x26, 0xB2, 0x75}):
		return Format{Name: "asf", Kind: KindVideo}
	}

	return Format{Name: "unknown", Kind: KindUnknown}
}
