// Package segmenter splits audio into bounded windows and joins chunk files
// back together using ffmpeg and ffprobe.
package segmenter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"audio-isolator/constant"
)

const DefaultBoundary = 29 * time.Second

// Chunk describes one window written by Split.
type Chunk struct {
	Index int
	Path  string
	Start float64
	End   float64
}

// Window is a planned [Start, End) range in seconds.
type Window struct {
	Index int
	Start float64
	End   float64
}

type codec struct {
	name string
	args []string
}

var codecs = map[constant.Encoding]codec{
	constant.EncodingWAV: {name: "pcm_s16le"},
	constant.EncodingMP3: {name: "libmp3lame", args: []string{"-b:a", "192k"}},
}

type Segmenter struct {
	ffmpegPath  string
	ffprobePath string
	boundary    time.Duration
	runner      commandRunner
}

func New(ffmpegPath, ffprobePath string, boundary time.Duration) *Segmenter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if boundary <= 0 {
		boundary = DefaultBoundary
	}
	return &Segmenter{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		boundary:    boundary,
		runner:      &execRunner{},
	}
}

// Duration returns the play length of path in seconds.
func (s *Segmenter) Duration(ctx context.Context, path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, &DecodeError{Path: path, Err: err}
	}

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	res, err := s.runner.Run(ctx, s.ffprobePath, args...)
	if err != nil {
		return 0, &DecodeError{Path: path, Stderr: res.Stderr, Err: err}
	}

	raw := strings.TrimSpace(res.Stdout)
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &DecodeError{Path: path, Err: fmt.Errorf("unreadable duration %q", raw)}
	}
	if seconds <= 0 {
		return 0, &DecodeError{Path: path, Err: errors.New("no audio content")}
	}
	return seconds, nil
}

// Plan partitions [0, duration) into consecutive windows of at most boundary.
// Interior edges fall on whole multiples of boundary so the windows never
// drift. The last window always ends at duration, and any excess over a
// multiple of boundary, however small, gets a window of its own.
func Plan(duration float64, boundary time.Duration) []Window {
	if boundary <= 0 {
		boundary = DefaultBoundary
	}
	if duration <= boundary.Seconds() {
		return []Window{{Index: 0, Start: 0, End: duration}}
	}

	count := int(math.Ceil(duration / boundary.Seconds()))
	windows := make([]Window, 0, count)
	for i := 0; i < count; i++ {
		end := duration
		if i < count-1 {
			end = (time.Duration(i+1) * boundary).Seconds()
		}
		windows = append(windows, Window{
			Index: i,
			Start: (time.Duration(i) * boundary).Seconds(),
			End:   end,
		})
	}
	return windows
}

// Split writes one file per window of duration into outDir. duration is the
// value Duration measured for path. A file no longer than the boundary is
// returned as a single chunk that reuses the original path.
func (s *Segmenter) Split(ctx context.Context, path, outDir string, duration float64) ([]Chunk, error) {
	windows := Plan(duration, s.boundary)
	if len(windows) == 1 {
		return []Chunk{{Index: 0, Path: path, Start: 0, End: duration}}, nil
	}

	if err := os.MkdirAll(outDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}

	chunks := make([]Chunk, 0, len(windows))
	for _, w := range windows {
		out := filepath.Join(outDir, fmt.Sprintf("chunk_%d.mp3", w.Index))
		args := []string{
			"-hide_banner", "-nostdin", "-y",
			"-ss", seconds(w.Start),
			"-t", seconds(w.End - w.Start),
			"-i", path,
			"-vn",
			"-c:a", codecs[constant.EncodingMP3].name,
		}
		args = append(args, codecs[constant.EncodingMP3].args...)
		args = append(args, out)

		res, err := s.runner.Run(ctx, s.ffmpegPath, args...)
		if err != nil {
			return nil, &EncodeError{Path: out, Stderr: res.Stderr, Err: err}
		}

		zerolog.Ctx(ctx).Debug().
			Int("chunk_index", w.Index).
			Float64("start", w.Start).
			Float64("end", w.End).
			Str("path", out).
			Msg("chunk written")

		chunks = append(chunks, Chunk{Index: w.Index, Path: out, Start: w.Start, End: w.End})
	}
	return chunks, nil
}

// Concatenate decodes inputs in the given order and writes one continuous
// file in the requested encoding. The output directory must exist.
func (s *Segmenter) Concatenate(ctx context.Context, inputs []string, output string, encoding constant.Encoding) error {
	c, ok := codecs[encoding]
	if !ok {
		return &EncodeError{Path: output, Err: fmt.Errorf("unsupported encoding %q", encoding)}
	}
	if len(inputs) == 0 {
		return &DecodeError{Path: output, Err: errors.New("no input files")}
	}

	var lines []string
	for _, in := range inputs {
		if _, err := s.Duration(ctx, in); err != nil {
			return err
		}
		abs, err := filepath.Abs(in)
		if err != nil {
			return &DecodeError{Path: in, Err: err}
		}
		escaped := strings.ReplaceAll(abs, "'", "'\\''")
		lines = append(lines, fmt.Sprintf("file '%s'", escaped))
	}

	listPath := output + ".txt"
	if err := os.WriteFile(listPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return &EncodeError{Path: output, Err: fmt.Errorf("write concat list: %w", err)}
	}
	defer os.Remove(listPath)

	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-vn",
		"-c:a", c.name,
	}
	args = append(args, c.args...)
	args = append(args, output)

	res, err := s.runner.Run(ctx, s.ffmpegPath, args...)
	if err != nil {
		return &EncodeError{Path: output, Stderr: res.Stderr, Err: err}
	}

	zerolog.Ctx(ctx).Debug().
		Int("inputs", len(inputs)).
		Str("encoding", string(encoding)).
		Str("output", output).
		Msg("chunks concatenated")
	return nil
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
