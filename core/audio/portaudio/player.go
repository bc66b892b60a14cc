// Package portaudio implements the speech media player with PortAudio's
// blocking write API. It is the fallback backend for hosts where miniaudio
// is unavailable.
package portaudio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/koralvoice/koral-core/core/audio"
	"github.com/koralvoice/koral-core/core/speech"
)

// Player writes source audio to a PortAudio output stream frame by frame
// from its own goroutine.
type Player struct {
	bufferSize int
	stream     *portaudio.Stream
	out        []int16
	encoding   audio.EncodingInfo

	callbacks speech.PlaybackCallbacks

	mu          sync.Mutex
	source      io.Reader
	playing     bool
	playedBytes int
	stopCh      chan struct{}
	finishOnce  *sync.Once
}

// NewPlayer opens the default output stream. bufferSize is in frames.
func NewPlayer(bufferSize int) (*Player, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, audio.DefaultSampleRate, bufferSize, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio stream: %w", err)
	}

	return &Player{
		bufferSize: bufferSize,
		stream:     stream,
		out:        out,
		encoding:   audio.GetDefaultEncodingInfo(),
		finishOnce: &sync.Once{},
	}, nil
}

func (p *Player) SetCallbacks(callbacks speech.PlaybackCallbacks) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = callbacks
}

func (p *Player) SetSource(source io.Reader) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return fmt.Errorf("cannot replace the source while playing")
	}

	p.source = source
	p.playedBytes = 0
	p.finishOnce = &sync.Once{}
	return nil
}

func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playing {
		return fmt.Errorf("already playing")
	}
	if p.source == nil {
		return fmt.Errorf("no source bound")
	}

	if err := p.stream.Start(); err != nil {
		return fmt.Errorf("failed to start PortAudio stream: %w", err)
	}

	p.playing = true
	p.stopCh = make(chan struct{})
	go p.pump(p.source, p.stopCh)
	go p.invokeStarted()

	return nil
}

func (p *Player) Stop() error {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return fmt.Errorf("not playing")
	}
	p.playing = false
	close(p.stopCh)
	p.mu.Unlock()

	if err := p.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop PortAudio stream: %w", err)
	}

	p.finish()
	return nil
}

func (p *Player) Offset() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoding.Duration(p.playedBytes)
}

func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.stream.Close()
	_ = portaudio.Terminate()
}

// pump moves one stream's audio into the output device until the source is
// exhausted or playback is stopped.
func (p *Player) pump(source io.Reader, stopCh <-chan struct{}) {
	frame := make([]byte, p.bufferSize*2)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		n, err := io.ReadFull(source, frame)
		if n > 0 {
			if readErr := binary.Read(bytes.NewReader(frame[:n]), binary.LittleEndian, p.out[:n/2]); readErr != nil {
				p.invokeError(fmt.Sprintf("failed to decode speech frame: %v", readErr))
				return
			}
			if writeErr := p.stream.Write(); writeErr != nil {
				p.invokeError(fmt.Sprintf("failed to write to PortAudio stream: %v", writeErr))
				return
			}

			p.mu.Lock()
			p.playedBytes += n
			p.mu.Unlock()
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			p.drained()
			return
		}
		if err != nil {
			p.invokeError(fmt.Sprintf("failed to read speech source: %v", err))
			return
		}
	}
}

func (p *Player) drained() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = false
	p.mu.Unlock()

	_ = p.stream.Stop()
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
