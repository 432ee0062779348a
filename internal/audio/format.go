// Package audio identifies the container format of uploaded audio. The bytes
// themselves are forwarded verbatim to the transcription service; only the
// Content-Type accompanying them is derived here when the browser sends a
// generic one.
package audio

import "bytes"

// Format is a detected audio container content type.
type Format string

const (
	FormatWAV     Format = "audio/wav"
	FormatWebM    Format = "audio/webm"
	FormatOgg     Format = "audio/ogg"
	FormatMP3     Format = "audio/mpeg"
	FormatFLAC    Format = "audio/flac"
	FormatUnknown Format = "application/octet-stream"
)

var (
	riffMagic = []byte("RIFF")
	waveMagic = []byte("WAVE")
	ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}
	oggMagic  = []byte("OggS")
	flacMagic = []byte("fLaC")
	id3Magic  = []byte("ID3")
)

// Detect sniffs the container format from the leading bytes.
func Detect(data []byte) Format {
	switch {
	case len(data) >= 12 && bytes.HasPrefix(data, riffMagic) && bytes.Equal(data[8:12], waveMagic):
		return FormatWAV
	case bytes.HasPrefix(data, ebmlMagic):
		// EBML header: WebM (what MediaRecorder produces) or Matroska.
		return FormatWebM
	case bytes.HasPrefix(data, oggMagic):
		return FormatOgg
	case bytes.HasPrefix(data, flacMagic):
		return FormatFLAC
	case bytes.HasPrefix(data, id3Magic):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// Raw MPEG frame sync without an ID3 tag.
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// ContentType resolves the content type for an upload: a specific declared
// type wins; a missing or generic one falls back to sniffing.
func ContentType(declared string, data []byte) string {
	if declared != "" && declared != string(FormatUnknown) {
		return declared
	}
	return string(Detect(data))
}
