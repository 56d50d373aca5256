package compositor

import (
	"context"
	"fmt"
	"image/color"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SceneRef identifies one ordered scene of the timeline.
type SceneRef struct {
	ID  string
	Seq int
}

// Request describes one composition run.
type Request struct {
	// Scenes in playback order. SceneDuration is the fixed visual
	// duration the generation model stamped on every scene of this
	// project.
	Scenes        []SceneRef
	SceneDuration time.Duration
	// VideoURLs maps scene id to clip URL. Partial coverage is allowed;
	// scenes without video are skipped.
	VideoURLs   map[string]string
	VoiceURL    string
	MusicURL    string
	AspectRatio string
	OnProgress  func(Progress)
}

// Output holds the capture knobs shared by every run.
type Output struct {
	FrameRate  int
	SampleRate int
	Background color.Color
}

// Compositor drives composition runs over the capture ports. One
// Compositor may serve many runs, but the mix graph and surface of a
// run are owned by that run alone and torn down with it.
type Compositor struct {
	Surfaces  SurfaceFactory
	Recorders RecorderFactory
	Fetcher   Fetcher
	Clips     ClipLoader
	Decoder   AudioDecoder
	Clock     FrameClock
	Output    Output
	Log       *zap.Logger
}

// clipState tracks one preloaded scene video's playback position, the
// video-element bookkeeping of the reference behavior.
type clipState struct {
	scene   SceneRef
	clip    Clip
	pos     time.Duration
	playing bool
}

// Compose renders one movie. It returns the encoded artifact or a typed
// error; a drawing-surface failure is reported before any network
// activity happens.
func (c *Compositor) Compose(ctx context.Context, req Request) (*Artifact, error) {
	report := func(phase Phase, pct float64, msg string) {
		if req.OnProgress != nil {
			req.OnProgress(Progress{Phase: phase, Percent: pct, Message: msg})
		}
	}
	report(PhaseInitializing, 0, "preparing rendering surface")

	width, height := Dimensions(req.AspectRatio)
	surface, err := c.Surfaces.NewSurface(width, height)
	if err != nil {
		return nil, &EncodingError{Reason: "create rendering surface", Err: err}
	}
	recorder, err := c.Recorders.NewRecorder(width, height)
	if err != nil {
		return nil, &EncodingError{Reason: "create recorder", Err: err}
	}

	voice, music, err := c.loadAudio(ctx, req, report)
	if err != nil {
		return nil, err
	}

	clips, err := c.loadClips(ctx, req, report)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, cs := range clips {
			_ = cs.clip.Close()
		}
	}()
	if len(clips) < len(req.Scenes) {
		c.Log.Warn("composing with partial scene coverage",
			zap.Error(&PartialResultError{Have: len(clips), Want: len(req.Scenes)}))
	}

	sampleRate := c.Output.SampleRate
	if sampleRate == 0 {
		sampleRate = 44100
	}
	graph := newMixGraph(voice, music, sampleRate)
	for _, cs := range clips {
		graph.addScene(cs.scene.ID, cs.clip.Audio())
	}

	total := totalDuration(voice, len(clips), req.SceneDuration)
	if total <= 0 {
		return nil, fmt.Errorf("nothing to compose: no voiceover and no scene has video")
	}

	artifact, err := c.render(ctx, surface, recorder, graph, clips, req.SceneDuration, total, report)
	if err != nil {
		return nil, err
	}
	report(PhaseDone, 100, "movie ready")
	return artifact, nil
}

// loadAudio fetches and decodes the narration and music buffers in
// parallel. Narration failure is fatal because the total duration
// depends on it; music failure downgrades to a run without music.
func (c *Compositor) loadAudio(ctx context.Context, req Request, report func(Phase, float64, string)) (voice, music *AudioBuffer, err error) {
	report(PhaseLoadingAudio, 0, "loading audio tracks")
	g, gctx := errgroup.WithContext(ctx)
	if req.VoiceURL != "" {
		g.Go(func() error {
			data, err := c.Fetcher.Fetch(gctx, req.VoiceURL)
			if err != nil {
				return fmt.Errorf("load voiceover: %w", err)
			}
			voice, err = c.Decoder.Decode(gctx, data)
			if err != nil {
				return fmt.Errorf("decode voiceover: %w", err)
			}
			return nil
		})
	}
	if req.MusicURL != "" {
		g.Go(func() error {
			data, err := c.Fetcher.Fetch(gctx, req.MusicURL)
			if err != nil {
				c.Log.Warn("music load failed, composing without music", zap.Error(err))
				return nil
			}
			buf, err := c.Decoder.Decode(gctx, data)
			if err != nil {
				c.Log.Warn("music decode failed, composing without music", zap.Error(err))
				return nil
			}
			music = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return voice, music, nil
}

// loadClips preloads every scene video to a playable state. All media
// must be ready before recording starts; a stalled load mid-recording
// would corrupt the capture, so any failure here is fatal.
func (c *Compositor) loadClips(ctx context.Context, req Request, report func(Phase, float64, string)) ([]*clipState, error) {
	report(PhaseLoadingVideo, 0, "preloading scene videos")
	states := make([]*clipState, len(req.Scenes))
	g, gctx := errgroup.WithContext(ctx)
	for i, scene := range req.Scenes {
		url, ok := req.VideoURLs[scene.ID]
		if !ok || url == "" {
			continue
		}
		i, scene, url := i, scene, url
		g.Go(func() error {
			clip, err := c.Clips.Load(gctx, url)
			if err != nil {
				return fmt.Errorf("preload scene %d video: %w", scene.Seq, err)
			}
			states[i] = &clipState{scene: scene, clip: clip}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, cs := range states {
			if cs != nil {
				_ = cs.clip.Close()
			}
		}
		return nil, err
	}

	// Compact: the timeline only plays scenes that have video, in order.
	var clips []*clipState
	for _, cs := range states {
		if cs != nil {
			clips = append(clips, cs)
		}
	}
	return clips, nil
}

// render drives the per-frame loop until the timeline is exhausted,
// then finalizes the recording.
func (c *Compositor) render(ctx context.Context, surface Surface, recorder Recorder, graph *mixGraph, clips []*clipState, perScene, total time.Duration, report func(Phase, float64, string)) (*Artifact, error) {
	if err := recorder.Start(); err != nil {
		return nil, &EncodingError{Reason: "start recorder", Err: err}
	}
	report(PhaseRendering, 0, "rendering")

	background := c.Output.Background
	if background == nil {
		background = color.Black
	}

	activeIdx := -1
	start := c.Clock.Now()
	last := start
	for {
		now, err := c.Clock.Tick(ctx)
		if err != nil {
			return nil, err
		}
		elapsed := now.Sub(start)
		if elapsed >= total {
			break
		}
		// Media positions advance by the measured tick delta, not a
		// nominal frame interval, so ticker jitter cannot drift the
		// audio against the wall clock.
		delta := now.Sub(last)
		last = now

		if len(clips) == 0 {
			surface.Fill(background)
		} else {
			idx := int(elapsed / perScene)
			if idx >= len(clips) {
				idx = len(clips) - 1
			}
			if idx != activeIdx {
				c.activateScene(graph, clips, idx)
				activeIdx = idx
			}
			cs := clips[activeIdx]
			// The active clip must always be playing; one that ran off
			// its end restarts from zero.
			if !cs.playing {
				if cs.pos >= cs.clip.Duration() {
					cs.pos = 0
					graph.restartScene(cs.scene.ID)
				}
				cs.playing = true
			}
			frame, err := cs.clip.FrameAt(cs.pos)
			if err != nil {
				surface.Fill(background)
			} else {
				surface.Draw(frame)
			}
			cs.pos += delta
			if cs.pos >= cs.clip.Duration() {
				cs.playing = false
			}
		}

		if err := recorder.WriteFrame(surface.Frame()); err != nil {
			return nil, &EncodingError{Reason: "capture frame", Err: err}
		}
		graph.advance(delta)
		report(PhaseRendering, float64(elapsed)/float64(total)*100, "rendering")
	}

	report(PhaseFinalizing, 100, "encoding output")
	artifact, err := recorder.Stop(graph.mix())
	if err != nil {
		return nil, &EncodingError{Reason: "finalize recording", Err: err}
	}
	if artifact.Duration == 0 {
		artifact.Duration = total
	}
	return artifact, nil
}

// activateScene flips the mix to the scene at idx: its gain node gets
// the SFX level, every sibling is ducked to zero and paused. The render
// loop takes care of (re)starting the active clip itself.
func (c *Compositor) activateScene(graph *mixGraph, clips []*clipState, idx int) {
	graph.setActiveScene(clips[idx].scene.ID)
	for j, other := range clips {
		if j != idx {
			other.playing = false
		}
	}
}

// totalDuration is max(voice duration, scenes-with-video x per-scene).
func totalDuration(voice *AudioBuffer, sceneCount int, perScene time.Duration) time.Duration {
	total := time.Duration(sceneCount) * perScene
	if v := voice.Duration(); v > total {
		total = v
	}
	return total
}
