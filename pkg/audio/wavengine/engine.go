// Package wavengine implements audio.Engine for PCM wav files on top of
// Ebitengine/audio. One shared audio context plays everything; decoded
// samples are kept in memory so waveform rendering can read them back
// without touching the disk again.
package wavengine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	ebiaudio "github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"

	"github.com/google/uuid"
	"github.com/soundglass/waveview/pkg/audio"
	"github.com/soundglass/waveview/pkg/fileutil"
	"github.com/soundglass/waveview/pkg/logger"
)

// DefaultMixRate is the output mix rate used when no audio context exists
// yet. 48000 Hz matches Ebitengine's recommended context rate.
const DefaultMixRate = 48000

// Engine plays and reads back PCM wav files through Ebitengine/audio.
type Engine struct {
	mu sync.Mutex

	audioCtx *ebiaudio.Context
	mixRate  int

	files     map[uuid.UUID]*loadedFile
	playbacks map[uuid.UUID]*playbackState
}

type loadedFile struct {
	handle *audio.Handle
	meta   audio.Metadata
	// data holds the raw file bytes; playback streams are decoded from it
	// on demand so several playbacks can coexist.
	data []byte
	// pcm holds decoded mono samples at the source rate for read-back.
	pcm []float64
}

type playbackState struct {
	pb     *audio.Playback
	player *ebiaudio.Player
	file   *loadedFile
	paused bool
}

// NewEngine creates an engine sharing the process-wide Ebitengine audio
// context, creating one at DefaultMixRate if none exists.
func NewEngine() *Engine {
	ctx := ebiaudio.CurrentContext()
	if ctx == nil {
		ctx = ebiaudio.NewContext(DefaultMixRate)
	}
	return &Engine{
		audioCtx:  ctx,
		mixRate:   ctx.SampleRate(),
		files:     make(map[uuid.UUID]*loadedFile),
		playbacks: make(map[uuid.UUID]*playbackState),
	}
}

// Load opens a wav file, decodes it fully, and returns a handle.
func (e *Engine) Load(path string) (*audio.Handle, error) {
	resolved, err := fileutil.ResolveAudioPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", audio.ErrNotFound, path)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", audio.ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}

	meta, err := parseMetadata(data)
	if err != nil {
		return nil, err
	}

	pcm, frameCount, err := decodeMono(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrCorrupted, err)
	}
	meta.FrameCount = frameCount

	handle := audio.NewHandle(resolved)
	file := &loadedFile{handle: handle, meta: meta, data: data, pcm: pcm}

	e.mu.Lock()
	e.files[handle.ID()] = file
	e.mu.Unlock()

	logger.GetLogger().Info("loaded audio file",
		"path", resolved,
		"handle", handle.ID(),
		"frames", meta.FrameCount,
		"sampleRate", meta.SampleRate)
	return handle, nil
}

// Metadata returns the format information captured at load time.
func (e *Engine) Metadata(h *audio.Handle) (audio.Metadata, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	file, err := e.fileLocked(h)
	if err != nil {
		return audio.Metadata{}, err
	}
	return file.meta, nil
}

// Play starts playback of the whole file.
func (e *Engine) Play(h *audio.Handle) (*audio.Playback, error) {
	return e.PlayRange(h, 0, audio.UnboundedEndFrame)
}

// PlayRange starts playback at startFrame. The end frame is carried on the
// playback handle; completion is detected by the progress monitor, which
// stops the playback through the session.
func (e *Engine) PlayRange(h *audio.Handle, startFrame, endFrame int64) (*audio.Playback, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := e.fileLocked(h)
	if err != nil {
		return nil, err
	}

	stream, err := wav.DecodeWithSampleRate(e.mixRate, bytes.NewReader(file.data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrCorrupted, err)
	}

	player, err := e.audioCtx.NewPlayer(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	if startFrame > 0 && file.meta.SampleRate > 0 {
		offset := time.Duration(float64(startFrame) / float64(file.meta.SampleRate) * float64(time.Second))
		if err := player.SetPosition(offset); err != nil {
			player.Close()
			return nil, fmt.Errorf("failed to seek to start frame %d: %w", startFrame, err)
		}
	}

	pb := audio.NewPlayback(startFrame, endFrame)
	e.playbacks[pb.ID()] = &playbackState{pb: pb, player: player, file: file}
	player.Play()

	logger.GetLogger().Debug("started playback",
		"playback", pb.ID(), "startFrame", startFrame, "endFrame", endFrame)
	return pb, nil
}

// Pause suspends playback; the player position stops advancing.
func (e *Engine) Pause(p *audio.Playback) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.playbackLocked(p)
	if err != nil {
		return err
	}
	st.player.Pause()
	st.paused = true
	return nil
}

// Resume continues a paused playback.
func (e *Engine) Resume(p *audio.Playback) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.playbackLocked(p)
	if err != nil {
		return err
	}
	st.player.Play()
	st.paused = false
	return nil
}

// Stop ends a playback, closes its player and deactivates the handle.
func (e *Engine) Stop(p *audio.Playback) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.playbackLocked(p)
	if err != nil {
		return err
	}
	st.player.Pause()
	if err := st.player.Close(); err != nil {
		logger.GetLogger().Warn("failed to close player", "playback", p.ID(), "error", err)
	}
	p.Deactivate()
	delete(e.playbacks, p.ID())
	return nil
}

// Seek moves playback to an absolute frame position.
func (e *Engine) Seek(p *audio.Playback, frame int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.playbackLocked(p)
	if err != nil {
		return err
	}
	rate := st.file.meta.SampleRate
	if rate <= 0 {
		return fmt.Errorf("invalid sample rate for seek")
	}
	offset := time.Duration(float64(frame) / float64(rate) * float64(time.Second))
	if err := st.player.SetPosition(offset); err != nil {
		return fmt.Errorf("failed to seek to frame %d: %w", frame, err)
	}
	return nil
}

// IsPaused reports whether the playback is paused.
func (e *Engine) IsPaused(p *audio.Playback) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.playbackLocked(p)
	if err != nil {
		return false, err
	}
	return st.paused, nil
}

// Clock returns the player position converted to samples at the mix rate.
// The reading pauses with the player, which is exactly what the progress
// monitor expects from a hardware clock.
func (e *Engine) Clock(p *audio.Playback) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.playbackLocked(p)
	if err != nil {
		return 0, err
	}
	pos := st.player.Position()
	return int64(pos.Seconds() * float64(e.mixRate)), nil
}

// MixRate returns the audio context's output rate.
func (e *Engine) MixRate() int { return e.mixRate }

// ReadSamples returns mono samples for [startFrame, startFrame+frameCount).
// Frames outside the file are silence.
func (e *Engine) ReadSamples(ctx context.Context, h *audio.Handle, startFrame, frameCount int64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	file, err := e.fileLocked(h)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]float64, frameCount)
	for i := int64(0); i < frameCount; i++ {
		idx := startFrame + i
		if idx >= 0 && idx < int64(len(file.pcm)) {
			out[i] = file.pcm[idx]
		}
	}
	return out, nil
}

// Close releases a loaded file and stops any playback of it.
func (e *Engine) Close(h *audio.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	file, err := e.fileLocked(h)
	if err != nil {
		return err
	}
	for id, st := range e.playbacks {
		if st.file == file {
			st.player.Pause()
			st.player.Close()
			st.pb.Deactivate()
			delete(e.playbacks, id)
		}
	}
	delete(e.files, h.ID())
	return nil
}

func (e *Engine) fileLocked(h *audio.Handle) (*loadedFile, error) {
	if h == nil {
		return nil, audio.ErrInvalidHandle
	}
	file, ok := e.files[h.ID()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", audio.ErrInvalidHandle, h.ID())
	}
	return file, nil
}

func (e *Engine) playbackLocked(p *audio.Playback) (*playbackState, error) {
	if p == nil {
		return nil, audio.ErrInvalidHandle
	}
	st, ok := e.playbacks[p.ID()]
	if !ok {
		return nil, fmt.Errorf("%w: playback %s", audio.ErrInvalidHandle, p.ID())
	}
	return st, nil
}

// decodeMono decodes the wav data to mono float64 samples at the source
// rate. Ebitengine's decoder emits 16-bit little-endian stereo; left and
// right are averaged.
func decodeMono(data []byte) ([]float64, int64, error) {
	stream, err := wav.DecodeWithoutResampling(bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	raw, err := io.ReadAll(stream)
	if err != nil {
		return nil, 0, err
	}

	const bytesPerFrame = 4 // int16 x 2 channels
	frames := len(raw) / bytesPerFrame
	pcm := make([]float64, frames)
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(raw[i*bytesPerFrame:]))
		r := int16(binary.LittleEndian.Uint16(raw[i*bytesPerFrame+2:]))
		pcm[i] = (float64(l) + float64(r)) / 2 / 32768
	}
	return pcm, int64(frames), nil
}

// parseMetadata scans the RIFF chunks for the fmt header. Frame count is
// filled in from the decoded length afterwards, which sidesteps files with
// sloppy data-chunk sizes.
func parseMetadata(data []byte) (audio.Metadata, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return audio.Metadata{}, fmt.Errorf("%w: not a RIFF wave file", audio.ErrUnsupportedFormat)
	}

	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if id == "fmt " {
			if body+16 > len(data) {
				return audio.Metadata{}, fmt.Errorf("%w: truncated fmt chunk", audio.ErrCorrupted)
			}
			format := binary.LittleEndian.Uint16(data[body:])
			if format != 1 { // PCM only
				return audio.Metadata{}, fmt.Errorf("%w: wave format %d", audio.ErrUnsupportedFormat, format)
			}
			return audio.Metadata{
				SampleRate:    int(binary.LittleEndian.Uint32(data[body+4:])),
				ChannelCount:  int(binary.LittleEndian.Uint16(data[body+2:])),
				BitsPerSample: int(binary.LittleEndian.Uint16(data[body+14:])),
			}, nil
		}
		// Chunks are word aligned.
		offset = body + size + size%2
	}
	return audio.Metadata{}, fmt.Errorf("%w: missing fmt chunk", audio.ErrUnsupportedFormat)
}
