package compositor

import "time"

// Fixed gain levels for the mix graph. Narration dominates, music sits
// underneath, and the active scene's embedded audio is ducked between
// the two.
const (
	voiceGain = 1.0
	musicGain = 0.2
	sfxGain   = 0.4
)

// sceneSource is one scene clip's contribution to the mix: a gain node
// that is zero except while its scene is active.
type sceneSource struct {
	id   string
	gain float64
	buf  *AudioBuffer
	pos  int
}

// mixGraph renders the mixed audio timeline incrementally as the render
// loop advances. It owns the per-scene gain nodes and enforces their
// mutual exclusion: at most one scene gain is non-zero at any instant.
type mixGraph struct {
	sampleRate int

	voice    *AudioBuffer
	voicePos int

	// music loops for the whole run.
	music    *AudioBuffer
	musicPos int

	scenes []*sceneSource
	byID   map[string]*sceneSource

	out []float64
}

func newMixGraph(voice, music *AudioBuffer, sampleRate int) *mixGraph {
	return &mixGraph{
		sampleRate: sampleRate,
		voice:      voice,
		music:      music,
		byID:       make(map[string]*sceneSource),
	}
}

// addScene wires one scene clip's audio into the mix, muted.
func (g *mixGraph) addScene(id string, buf *AudioBuffer) {
	src := &sceneSource{id: id, buf: buf}
	g.scenes = append(g.scenes, src)
	g.byID[id] = src
}

// setActiveScene ducks every scene source except the named one, which
// gets the fixed SFX level. An empty id mutes them all.
func (g *mixGraph) setActiveScene(id string) {
	for _, src := range g.scenes {
		if src.id == id {
			src.gain = sfxGain
		} else {
			src.gain = 0
		}
	}
}

// nonZeroSceneGains counts scene gain nodes currently contributing to
// the mix. The render loop's invariant is that this never exceeds one.
func (g *mixGraph) nonZeroSceneGains() int {
	n := 0
	for _, src := range g.scenes {
		if src.gain != 0 {
			n++
		}
	}
	return n
}

// advance mixes the next interval of audio into the output buffer,
// applying current gains. Scene sources advance only while audible.
func (g *mixGraph) advance(d time.Duration) {
	n := int(float64(g.sampleRate) * d.Seconds())
	for i := 0; i < n; i++ {
		var sample float64
		if g.voice != nil && g.voicePos < len(g.voice.Data) {
			sample += g.voice.Data[g.voicePos] * voiceGain
			g.voicePos++
		}
		if g.music != nil && len(g.music.Data) > 0 {
			sample += g.music.Data[g.musicPos%len(g.music.Data)] * musicGain
			g.musicPos++
		}
		for _, src := range g.scenes {
			if src.gain == 0 || src.buf == nil {
				continue
			}
			if src.pos < len(src.buf.Data) {
				sample += src.buf.Data[src.pos] * src.gain
				src.pos++
			}
		}
		if sample > 1 {
			sample = 1
		} else if sample < -1 {
			sample = -1
		}
		g.out = append(g.out, sample)
	}
}

// restartScene rewinds a scene source, used when its video element is
// restarted from zero.
func (g *mixGraph) restartScene(id string) {
	if src, ok := g.byID[id]; ok {
		src.pos = 0
	}
}

// mix returns the rendered audio timeline so far.
func (g *mixGraph) mix() *AudioBuffer {
	return &AudioBuffer{Data: g.out, SampleRate: g.sampleRate}
}
