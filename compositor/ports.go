// Package compositor assembles independently generated per-scene video
// clips, a narration track, and a looping music track into one
// time-synchronized, recorded output file.
//
// The capture primitives (drawing surface, audio mix graph, stream
// recorder, preloaded clips) live behind small ports so the render
// engine stays deterministic; the ffmpeg adapter in this package is the
// production implementation.
package compositor

import (
	"context"
	"image"
	"image/color"
	"time"
)

// Phase names one stage of a composition run.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseLoadingAudio Phase = "loading-audio"
	PhaseLoadingVideo Phase = "loading-video"
	PhaseRendering    Phase = "rendering"
	PhaseFinalizing   Phase = "finalizing"
	PhaseDone         Phase = "done"
)

// Progress is handed to the caller's callback as the run advances.
type Progress struct {
	Phase   Phase
	Percent float64
	Message string
}

// Artifact is the encoded output of one composition run.
type Artifact struct {
	Data     []byte
	MimeType string
	Duration time.Duration
}

// Surface is the drawing target. Draw scales the image to the full
// target size; Frame returns the current canvas for capture.
type Surface interface {
	Draw(img image.Image)
	Fill(c color.Color)
	Frame() image.Image
}

// SurfaceFactory creates the drawing surface. Failure here aborts the
// run before any network activity.
type SurfaceFactory interface {
	NewSurface(width, height int) (Surface, error)
}

// Recorder consumes captured frames and, at stop, the rendered audio
// mix, producing the encoded artifact.
type Recorder interface {
	Start() error
	WriteFrame(frame image.Image) error
	Stop(mix *AudioBuffer) (*Artifact, error)
}

type RecorderFactory interface {
	NewRecorder(width, height int) (Recorder, error)
}

// Clip is a preloaded, playable scene video.
type Clip interface {
	// FrameAt returns the frame at the given playback offset, clamped
	// to the clip's last frame.
	FrameAt(offset time.Duration) (image.Image, error)
	Duration() time.Duration
	// Audio returns the clip's embedded audio, or nil if it has none.
	Audio() *AudioBuffer
	Close() error
}

// ClipLoader preloads a scene video to a playable state.
type ClipLoader interface {
	Load(ctx context.Context, url string) (Clip, error)
}

// Fetcher retrieves audio source bytes. Implementations route
// capture-hostile origins through a same-origin proxy.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// AudioDecoder turns fetched bytes into a playable buffer.
type AudioDecoder interface {
	Decode(ctx context.Context, data []byte) (*AudioBuffer, error)
}

// FrameClock paces the render loop, one tick per displayed frame.
type FrameClock interface {
	Now() time.Time
	// Tick blocks until the next frame instant. It returns an error
	// only when the context is cancelled.
	Tick(ctx context.Context) (time.Time, error)
}

// Dimensions maps a project aspect ratio onto target frame dimensions.
func Dimensions(aspectRatio string) (int, int) {
	switch aspectRatio {
	case "9:16":
		return 720, 1280
	case "1:1":
		return 960, 960
	default:
		return 1280, 720
	}
}
