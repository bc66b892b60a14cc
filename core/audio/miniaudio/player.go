// Package miniaudio implements the speech media player on top of the
// miniaudio library. One device plays one source at a time; playback
// lifecycle transitions are reported through the synthesizer's callbacks.
package miniaudio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/koralvoice/koral-core/core/audio"
	"github.com/koralvoice/koral-core/core/speech"
)

const readChunkSize = 4096

// Player is a speech.MediaPlayer backed by a malgo playback device. The
// device callback drains an internal buffer a feeder goroutine fills from
// the current source.
type Player struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig
	encoding     audio.EncodingInfo

	callbacks speech.PlaybackCallbacks

	mu sync.Mutex

	audioMu       sync.Mutex
	source        io.Reader
	leftoverAudio []byte
	sourceDrained bool
	playedBytes   int

	playing    bool
	finishOnce *sync.Once
}

// NewPlayer initializes the playback device for the given encoding.
func NewPlayer(encoding audio.EncodingInfo) (*Player, error) {
	if encoding.IsZero() {
		encoding = audio.GetDefaultEncodingInfo()
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {})
	if err != nil {
		return nil, fmt.Errorf("malgo InitContext failed: %w", err)
	}

	p := &Player{
		audioContext: audioCtx,
		encoding:     encoding,
		finishOnce:   &sync.Once{},
	}

	format := malgo.FormatS16
	if encoding.Format.ByteSize() == 1 {
		format = malgo.FormatU8
	}
	channels := 1
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	p.config = malgo.DefaultDeviceConfig(malgo.Playback)
	p.config.SampleRate = uint32(encoding.SampleRate)
	p.config.Playback.Format = format
	p.config.Playback.Channels = uint32(channels)
	p.config.Alsa.NoMMap = 1
	p.config.PeriodSizeInFrames = uint32(encoding.SampleRate / 10) // ~100ms of audio
	p.config.Periods = 4

	if p.device, err = malgo.InitDevice(
		p.audioContext.Context,
		p.config,
		malgo.DeviceCallbacks{Data: p.processAudio(bytesPerFrame)},
	); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	return p, nil
}

// SetCallbacks implements speech.MediaPlayer.
func (p *Player) SetCallbacks(callbacks speech.PlaybackCallbacks) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = callbacks
}

// SetSource binds the stream to play next and resets playback progress.
func (p *Player) SetSource(source io.Reader) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return fmt.Errorf("cannot replace the source while playing")
	}

	p.audioMu.Lock()
	p.source = source
	p.leftoverAudio = nil
	p.sourceDrained = false
	p.playedBytes = 0
	p.audioMu.Unlock()

	p.finishOnce = &sync.Once{}
	return nil
}

// Play starts the device and begins feeding the bound source. The started
// callback fires asynchronously once feeding is underway.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device == nil {
		return fmt.Errorf("device not initialized")
	}
	if p.playing {
		return fmt.Errorf("already playing")
	}

	p.audioMu.Lock()
	source := p.source
	p.audioMu.Unlock()
	if source == nil {
		return fmt.Errorf("no source bound")
	}

	if err := p.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	p.playing = true

	go p.feed(source)
	go p.invokeStarted()

	return nil
}

// Stop halts the device. Per the player contract a successful stop still
// reports playback finished.
func (p *Player) Stop() error {
	p.mu.Lock()
	if p.device == nil {
		p.mu.Unlock()
		return fmt.Errorf("device not initialized")
	}
	if !p.playing {
		p.mu.Unlock()
		return fmt.Errorf("not playing")
	}
	p.playing = false
	device := p.device
	p.mu.Unlock()

	if err := device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}

	p.audioMu.Lock()
	p.leftoverAudio = nil
	p.source = nil
	p.audioMu.Unlock()

	p.finish()
	return nil
}

// Offset reports how much of the current source has been played out.
func (p *Player) Offset() time.Duration {
	p.audioMu.Lock()
	defer p.audioMu.Unlock()
	return p.encoding.Duration(p.playedBytes)
}

// Close releases the device and the audio context.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}
	if p.audioContext != nil {
		_ = p.audioContext.Uninit()
		p.audioContext.Free()
		p.audioContext = nil
	}
}

// feed pulls the source into the playback buffer until it is exhausted.
func (p *Player) feed(source io.Reader) {
	chunk := make([]byte, readChunkSize)
	for {
		n, err := source.Read(chunk)
		if n > 0 {
			p.audioMu.Lock()
			p.leftoverAudio = append(p.leftoverAudio, chunk[:n]...)
			p.audioMu.Unlock()
		}
		if err == io.EOF {
			p.audioMu.Lock()
			p.sourceDrained = true
			p.audioMu.Unlock()
			return
		}
		if err != nil {
			p.invokeError(fmt.Sprintf("failed to read speech source: %v", err))
			return
		}

		p.mu.Lock()
		playing := p.playing
		p.mu.Unlock()
		if !playing {
			return
		}
	}
}

func (p *Player) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		p.audioMu.Lock()
		defer p.audioMu.Unlock()

		if len(p.leftoverAudio) == 0 {
			if p.sourceDrained {
				go p.drained()
			}
			return
		}

		take := min(need, len(p.leftoverAudio))
		copy(pOutput, p.leftoverAudio[:take])
		p.leftoverAudio = p.leftoverAudio[take:]
		p.playedBytes += take
	}
}

// drained ends playback once the source hit EOF and the buffer emptied.
// The device is captured under the lock; Close may nil it concurrently.
func (p *Player) drained() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = false
	device := p.device
	p.mu.Unlock()

	if device != nil {
		_ = device.Stop()
	}
	p.finish()
}

func (p *Player) invokeStarted() {
	p.mu.Lock()
	callback := p.callbacks.OnPlaybackStarted
	p.mu.Unlock()
	if callback != nil {
		callback()
	}
}

func (p *Player) finish() {
	p.mu.Lock()
	once := p.finishOnce
	callback := p.callbacks.OnPlaybackFinished
	p.mu.Unlock()

	once.Do(func() {
		if callback != nil {
			callback()
		}
	})
}

func (p *Player) invokeError(message string) {
	p.mu.Lock()
	callback := p.callbacks.OnPlaybackError
	p.mu.Unlock()
	if callback != nil {
		callback(message)
	}
}
