// Package media converts arbitrary uploaded or recorded media into the
// canonical form the recognition engine consumes: mono PCM WAV at 16 kHz.
// Container and codec detection is content-based (ffprobe plus magic bytes);
// video containers have their first audio track extracted before resampling.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/skillsenselab/speechd/internal/apperrors"
	"github.com/skillsenselab/speechd/internal/logger"
	"github.com/skillsenselab/speechd/internal/process"
	"github.com/skillsenselab/speechd/internal/tempstore"
)

// Canonical audio parameters required by the recognition engine.
const (
	TargetSampleRate = 16000
	TargetChannels   = 1
)

// NormalizedAudio is the canonical representation of one job's audio: a mono
// 16 kHz PCM WAV file plus its duration. Owned by exactly one job; Release
// is idempotent.
type NormalizedAudio struct {
	resource   *tempstore.Resource
	Duration   time.Duration
	SampleRate int
	Channels   int
}

// Path returns the location of the normalized WAV file.
func (a *NormalizedAudio) Path() string { return a.resource.Path() }

// Release deletes the normalized file. Safe to call multiple times.
func (a *NormalizedAudio) Release() error { return a.resource.Release() }

// Config configures the normalizer.
type Config struct {
	FFprobeBin string `yaml:"ffprobe_bin" mapstructure:"ffprobe_bin"`
	FFmpegBin  string `yaml:"ffmpeg_bin" mapstructure:"ffmpeg_bin"`
}

// ApplyDefaults sets default tool names resolved via PATH.
func (c *Config) ApplyDefaults() {
	if c.FFprobeBin == "" {
		c.FFprobeBin = "ffprobe"
	}
	if c.FFmpegBin == "" {
		c.FFmpegBin = "ffmpeg"
	}
}

// Normalizer converts media files into NormalizedAudio.
type Normalizer struct {
	cfg    Config
	runner process.Runner
	store  *tempstore.Store
	log    *logger.Logger
}

// NewNormalizer creates a Normalizer writing intermediate files into store.
func NewNormalizer(cfg Config, runner process.Runner, store *tempstore.Store, log *logger.Logger) *Normalizer {
	cfg.ApplyDefaults()
	return &Normalizer{
		cfg:    cfg,
		runner: runner,
		store:  store,
		log:    log.WithComponent("media"),
	}
}

// ffprobe JSON output subset.
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Duration  string `json:"duration"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// Normalize converts the media file at path into canonical mono 16 kHz PCM.
// Fails with UNSUPPORTED_FORMAT when no audio track can be identified and
// CORRUPT_MEDIA when the content is empty, undecodable, or has zero duration.
func (n *Normalizer) Normalize(ctx context.Context, path string) (*NormalizedAudio, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.CorruptMedia("media file unreadable").WithCause(err)
	}
	if info.Size() == 0 {
		return nil, apperrors.CorruptMedia("empty file")
	}

	format, err := n.sniffFile(path)
	if err != nil {
		return nil, apperrors.CorruptMedia("media file unreadable").WithCause(err)
	}

	probe, err := n.probe(ctx, path)
	if err != nil {
		// A recognized container that ffprobe cannot parse is damaged;
		// unrecognized bytes are simply not a supported format.
		if format.Kind != KindUnknown {
			return nil, apperrors.CorruptMedia(fmt.Sprintf("cannot parse %s container", format.Name)).WithCause(err)
		}
		return nil, apperrors.UnsupportedFormat("unrecognized container").WithCause(err)
	}

	audioStream, ok := firstAudioStream(probe.Streams)
	if !ok {
		return nil, apperrors.UnsupportedFormat(fmt.Sprintf("no audio track in %s", probe.Format.FormatName))
	}

	duration := probeDuration(probe, audioStream)
	if duration <= 0 {
		return nil, apperrors.CorruptMedia("zero duration")
	}

	out := n.store.Create(".wav")
	if err := n.extract(ctx, path, out.Path()); err != nil {
		out.Release()
		return nil, err
	}

	n.log.Debug("media normalized", logger.Fields(
		"container", probe.Format.FormatName,
		"codec", audioStream.CodecName,
		"duration", duration.String(),
	))

	return &NormalizedAudio{
		resource:   out,
		Duration:   duration,
		SampleRate: TargetSampleRate,
		Channels:   TargetChannels,
	}, nil
}

// sniffFile reads the magic bytes of the file at path.
func (n *Normalizer) sniffFile(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, err
	}
	defer f.Close()

	header := make([]byte, sniffLen)
	read, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return Format{}, err
	}
	return Sniff(header[:read]), nil
}

// probe runs ffprobe and decodes its JSON description of the container.
func (n *Normalizer) probe(ctx context.Context, path string) (*probeOutput, error) {
	result, err := n.runner.Run(ctx, process.Command{
		Binary: n.cfg.FFprobeBin,
		Args: []string{
			"-v", "error",
			"-print_format", "json",
			"-show_format",
			"-show_streams",
			path,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w (stderr: %s)", err, stderrOf(result))
	}

	var probe probeOutput
	if err := json.Unmarshal(result.Stdout, &probe); err != nil {
		return nil, fmt.Errorf("ffprobe output: %w", err)
	}
	return &probe, nil
}

// extract transcodes the first audio track to mono 16 kHz s16le WAV.
func (n *Normalizer) extract(ctx context.Context, in, out string) error {
	result, err := n.runner.Run(ctx, process.Command{
		Binary: n.cfg.FFmpegBin,
		Args: []string{
			"-hide_banner",
			"-nostdin",
			"-y",
			"-i", in,
			"-vn",
			"-map", "0:a:0",
			"-ac", strconv.Itoa(TargetChannels),
			"-ar", strconv.Itoa(TargetSampleRate),
			"-c:a", "pcm_s16le",
			"-f", "wav",
			out,
		},
	})
	if err != nil {
		return apperrors.CorruptMedia("audio extraction failed").
			WithDetail("stderr", stderrOf(result)).
			WithCause(err)
	}
	return nil
}

// firstAudioStream returns the audio stream with the lowest index so track
// selection stays deterministic for multi-track containers.
func firstAudioStream(streams []probeStream) (probeStream, bool) {
	audio := make([]probeStream, 0, len(streams))
	for _, s := range streams {
		if s.CodecType == "audio" {
			audio = append(audio, s)
		}
	}
	if len(audio) == 0 {
		return probeStream{}, false
	}
	sort.Slice(audio, func(i, j int) bool { return audio[i].Index < audio[j].Index })
	return audio[0], true
}

// probeDuration prefers the container duration, falling back to the stream's.
func probeDuration(probe *probeOutput, stream probeStream) time.Duration {
	if d := parseSeconds(probe.Format.Duration); d > 0 {
		return d
	}
	return parseSeconds(stream.Duration)
}

func parseSeconds(s string) time.Duration {
	if s == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func stderrOf(result *process.Result) string {
	if result == nil {
		return ""
	}
	return string(result.Stderr)
}
