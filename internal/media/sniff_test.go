package media

import "testing"

func TestSniff(t *testing.T) {
	tests := []struct {
		name     string
		header   []byte
		wantName string
		wantKind Kind
	}{
		{"wav", []byte("RIFF\x24\x08\x00\x00WAVEfmt "), "wav", KindAudio},
		{"avi", []byte("RIFF\x24\x08\x00\x00AVI LIST"), "avi", KindVideo},
		{"ogg", []byte("OggS\x00\x02\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"), "ogg", KindAudio},
		{"flac", []byte("fLaC\x00\x00\x00\x22\x00\x00\x00\x00"), "flac", KindAudio},
		{"mp3 id3", []byte("ID3\x04\x00\x00\x00\x00\x00\x00\x00\x00"), "mp3", KindAudio},
		{"mp3 frame sync", []byte{0xFF, 0xFB, 0x90, 0x00, 0, 0, 0, 0}, "mp3", KindAudio},
		{"mp4", []byte("\x00\x00\x00\x20ftypisom\x00\x00\x02\x00"), "mp4", KindVideo},
		{"m4a", []byte("\x00\x00\x00\x20ftypM4A \x00\x00\x00\x00"), "m4a", KindAudio},
		{"matroska", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01, 0x00, 0x00, 0x00}, "matroska", KindVideo},
		{"flv", []byte("FLV\x01\x05\x00\x00\x00\x09"), "flv", KindVideo},
		{"asf", []byte{0x30, 0x26, 0xB2, 0x75, 0x8E, 0x66, 0xCF, 0x11}, "asf", KindVideo},
		{"text", []byte("hello world, not media"), "unknown", KindUnknown},
		{"too short", []byte{0x01}, "unknown", KindUnknown},
		{"riff but not wave or avi", []byte("RIFF\x24\x08\x00\x00WEBPVP8 "), "riff", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sniff(tt.header)
			if got.Name != tt.wantName {
				t.Errorf("name: expected %q, got %q", tt.wantName, got.Name)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("kind: expected %v, got %v", tt.wantKind, got.Kind)
			}
		})
	}
}
