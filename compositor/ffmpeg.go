package compositor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// Tools is the ffmpeg adapter configuration shared by the recorder,
// clip loader, and audio decoder.
type Tools struct {
	FFmpegPath   string
	FFprobePath  string
	WorkDir      string
	FrameRate    int
	SampleRate   int
	VideoBitrate string
	AudioBitrate string
	Log          *zap.Logger
}

func (t *Tools) frameRate() int {
	if t.FrameRate == 0 {
		return 30
	}
	return t.FrameRate
}

func (t *Tools) sampleRate() int {
	if t.SampleRate == 0 {
		return 44100
	}
	return t.SampleRate
}

func (t *Tools) tempFile(pattern string) (*os.File, error) {
	return os.CreateTemp(t.WorkDir, pattern)
}

// --- recorder ---

// ffmpegRecorder buffers raw frames to disk during the run and muxes
// them with the audio mix into an mp4 on stop.
type ffmpegRecorder struct {
	t       *Tools
	width   int
	height  int
	raw     *os.File
	frames  int
	started bool
}

// NewRecorderFactory returns the production recorder factory.
func (t *Tools) NewRecorderFactory() RecorderFactory {
	return recorderFactory{t: t}
}

type recorderFactory struct {
	t *Tools
}

func (f recorderFactory) NewRecorder(width, height int) (Recorder, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid recorder dimensions %dx%d", width, height)
	}
	raw, err := f.t.tempFile("capture-*.raw")
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	return &ffmpegRecorder{t: f.t, width: width, height: height, raw: raw}, nil
}

func (r *ffmpegRecorder) Start() error {
	r.started = true
	return nil
}

func (r *ffmpegRecorder) WriteFrame(frame image.Image) error {
	if !r.started {
		return fmt.Errorf("recorder not started")
	}
	nrgba, ok := frame.(*image.NRGBA)
	if !ok || nrgba.Stride != nrgba.Rect.Dx()*4 {
		converted := image.NewNRGBA(image.Rect(0, 0, r.width, r.height))
		draw.Draw(converted, converted.Bounds(), frame, frame.Bounds().Min, draw.Src)
		nrgba = converted
	}
	if _, err := r.raw.Write(nrgba.Pix); err != nil {
		return fmt.Errorf("buffer frame: %w", err)
	}
	r.frames++
	return nil
}

func (r *ffmpegRecorder) Stop(mix *AudioBuffer) (*Artifact, error) {
	defer func() {
		name := r.raw.Name()
		r.raw.Close()
		os.Remove(name)
	}()
	if err := r.raw.Sync(); err != nil {
		return nil, fmt.Errorf("flush capture file: %w", err)
	}

	wavFile, err := r.t.tempFile("mix-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create mix file: %w", err)
	}
	defer os.Remove(wavFile.Name())
	if mix == nil {
		mix = &AudioBuffer{SampleRate: r.t.sampleRate()}
	}
	if err := writeWAV(wavFile, mix); err != nil {
		wavFile.Close()
		return nil, fmt.Errorf("write mix: %w", err)
	}
	wavFile.Close()

	outFile, err := r.t.tempFile("movie-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	outName := outFile.Name()
	outFile.Close()
	defer os.Remove(outName)

	args := []string{
		"-y", "-hide_banner",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", r.width, r.height),
		"-r", strconv.Itoa(r.t.frameRate()),
		"-i", r.raw.Name(),
		"-i", wavFile.Name(),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-b:v", r.t.VideoBitrate,
		"-c:a", "aac",
		"-b:a", r.t.AudioBitrate,
		"-shortest",
		"-f", "mp4",
		outName,
	}
	cmd := exec.Command(r.t.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg mux: %w: %s", err, stderr.String())
	}

	data, err := os.ReadFile(outName)
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	duration := time.Duration(r.frames) * time.Second / time.Duration(r.t.frameRate())
	r.t.Log.Info("recording finalized",
		zap.Int("frames", r.frames),
		zap.Int("bytes", len(data)))
	return &Artifact{Data: data, MimeType: "video/mp4", Duration: duration}, nil
}

// --- clip loader ---

// NewClipLoader returns the production clip loader, which preloads a
// scene video by pre-decoding its frames and audio track.
func (t *Tools) NewClipLoader(fetcher Fetcher) ClipLoader {
	return &ffmpegClipLoader{t: t, fetcher: fetcher}
}

type ffmpegClipLoader struct {
	t       *Tools
	fetcher Fetcher
}

func (l *ffmpegClipLoader) Load(ctx context.Context, url string) (Clip, error) {
	data, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	in, err := l.t.tempFile("clip-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create clip file: %w", err)
	}
	defer os.Remove(in.Name())
	if _, err := in.Write(data); err != nil {
		in.Close()
		return nil, fmt.Errorf("write clip file: %w", err)
	}
	in.Close()

	duration, err := l.probeDuration(ctx, in.Name())
	if err != nil {
		return nil, err
	}

	frameDir, err := os.MkdirTemp(l.t.WorkDir, "clip-frames-")
	if err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}
	cmd := exec.CommandContext(ctx, l.t.FFmpegPath,
		"-y", "-hide_banner",
		"-i", in.Name(),
		"-vf", fmt.Sprintf("fps=%d", l.t.frameRate()),
		filepath.Join(frameDir, "frame-%06d.png"),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.RemoveAll(frameDir)
		return nil, fmt.Errorf("extract frames: %w: %s", err, stderr.String())
	}
	entries, err := os.ReadDir(frameDir)
	if err != nil || len(entries) == 0 {
		os.RemoveAll(frameDir)
		return nil, fmt.Errorf("clip produced no frames")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, filepath.Join(frameDir, e.Name()))
	}
	sort.Strings(names)

	audio := l.extractAudio(ctx, in.Name())

	return &frameClip{
		frameDir:  frameDir,
		frames:    names,
		frameRate: l.t.frameRate(),
		duration:  duration,
		audio:     audio,
	}, nil
}

func (l *ffmpegClipLoader) probeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, l.t.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("probe clip duration: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse clip duration: %w", err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// extractAudio pulls the clip's embedded audio track. A clip without
// one is normal; the scene simply contributes no sound.
func (l *ffmpegClipLoader) extractAudio(ctx context.Context, path string) *AudioBuffer {
	wavFile, err := l.t.tempFile("clip-audio-*.wav")
	if err != nil {
		return nil
	}
	name := wavFile.Name()
	wavFile.Close()
	defer os.Remove(name)

	cmd := exec.CommandContext(ctx, l.t.FFmpegPath,
		"-y", "-hide_banner",
		"-i", path,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(l.t.sampleRate()),
		"-f", "wav",
		name,
	)
	if err := cmd.Run(); err != nil {
		return nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil
	}
	buf, err := decodeWAV(data)
	if err != nil {
		l.t.Log.Warn("clip audio decode failed", zap.Error(err))
		return nil
	}
	return buf
}

// frameClip is a preloaded scene video: frames pre-decoded to disk at
// the capture rate, audio pre-decoded to a buffer.
type frameClip struct {
	frameDir  string
	frames    []string
	frameRate int
	duration  time.Duration
	audio     *AudioBuffer
}

func (c *frameClip) FrameAt(offset time.Duration) (image.Image, error) {
	idx := int(offset.Seconds() * float64(c.frameRate))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(c.frames) {
		idx = len(c.frames) - 1
	}
	img, err := imaging.Open(c.frames[idx])
	if err != nil {
		return nil, fmt.Errorf("read frame %d: %w", idx, err)
	}
	return img, nil
}

func (c *frameClip) Duration() time.Duration {
	return c.duration
}

func (c *frameClip) Audio() *AudioBuffer {
	return c.audio
}

func (c *frameClip) Close() error {
	return os.RemoveAll(c.frameDir)
}

// --- audio decoder ---

// NewAudioDecoder returns the production decoder: any input format is
// normalized through ffmpeg to mono 16-bit PCM, then parsed.
func (t *Tools) NewAudioDecoder() AudioDecoder {
	return &ffmpegDecoder{t: t}
}

type ffmpegDecoder struct {
	t *Tools
}

func (d *ffmpegDecoder) Decode(ctx context.Context, data []byte) (*AudioBuffer, error) {
	in, err := d.t.tempFile("audio-in-*")
	if err != nil {
		return nil, fmt.Errorf("create audio file: %w", err)
	}
	defer os.Remove(in.Name())
	if _, err := in.Write(data); err != nil {
		in.Close()
		return nil, fmt.Errorf("write audio file: %w", err)
	}
	in.Close()

	out, err := d.t.tempFile("audio-out-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create wav file: %w", err)
	}
	outName := out.Name()
	out.Close()
	defer os.Remove(outName)

	cmd := exec.CommandContext(ctx, d.t.FFmpegPath,
		"-y", "-hide_banner",
		"-i", in.Name(),
		"-ac", "1",
		"-ar", strconv.Itoa(d.t.sampleRate()),
		"-f", "wav",
		outName,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("decode audio: %w: %s", err, stderr.String())
	}
	wav, err := os.ReadFile(outName)
	if err != nil {
		return nil, fmt.Errorf("read decoded audio: %w", err)
	}
	return decodeWAV(wav)
}
