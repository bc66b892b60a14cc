package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/koralvoice/koral-core/core/attachments"
	"github.com/koralvoice/koral-core/core/directives"
	"github.com/koralvoice/koral-core/core/focus"
	"github.com/koralvoice/koral-core/core/messaging"
	"github.com/koralvoice/koral-core/core/speech"
	"github.com/spf13/cobra"
)

var (
	flagSimConfig   string
	flagSpeechSpeed time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a scripted focus and playback interaction",
	Long: `Run a scripted interaction against a real focus manager and two speech
synthesizers, one on the content channel and one on the dialog channel.

The script plays a long content utterance, barges in with a dialog
utterance that pushes the content channel to the background, and finally
stops the foreground activity. Every focus change, playback transition
and outgoing event is printed as it happens.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&flagSimConfig, "config", "", "YAML channel config file")
	simulateCmd.Flags().DurationVar(&flagSpeechSpeed, "speed", 30*time.Millisecond,
		"simulated playback time per character of speech")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	opts := []focus.ManagerOption{}
	if flagSimConfig != "" {
		configs, err := focus.LoadChannelConfigs(flagSimConfig)
		if err != nil {
			return err
		}
		opts = append(opts, focus.WithChannelConfigs(configs))
	}

	manager := focus.NewManager(opts...)
	defer manager.Close()

	content, err := newSimAgent("content", manager, focus.ContentChannelName)
	if err != nil {
		return err
	}
	defer content.close()

	dialog, err := newSimAgent("dialog", manager, focus.DialogChannelName)
	if err != nil {
		return err
	}
	defer dialog.close()

	fmt.Println(headerStyle.Render("scripted interaction"))

	fmt.Println(eventStyle.Render("-- content starts a long utterance"))
	content.speak("podcast-1", strings.Repeat("a long running podcast episode ", 4))
	time.Sleep(10 * flagSpeechSpeed)

	fmt.Println(eventStyle.Render("-- dialog barges in"))
	dialog.speak("answer-1", "here is the answer you asked for")
	dialog.awaitIdle()

	fmt.Println(eventStyle.Render("-- content speaks again"))
	content.speak("podcast-2", strings.Repeat("the episode resumes from the top ", 4))
	time.Sleep(10 * flagSpeechSpeed)

	fmt.Println(eventStyle.Render("-- user stops the foreground activity"))
	manager.StopForegroundActivity()
	content.awaitIdle()

	fmt.Println(headerStyle.Render("done"))
	return nil
}

// simAgent bundles one synthesizer with its scripted player and print-only
// collaborators.
type simAgent struct {
	name        string
	player      *simPlayer
	attachments *attachments.Store
	synthesizer *speech.Synthesizer

	mu   sync.Mutex
	idle chan struct{}
}

func newSimAgent(name string, manager *focus.Manager, channelName string) (*simAgent, error) {
	agent := &simAgent{
		name:        name,
		player:      &simPlayer{name: name, perByte: flagSpeechSpeed},
		attachments: attachments.NewStore(),
		idle:        make(chan struct{}),
	}
	close(agent.idle)

	synthesizer, err := speech.NewSynthesizer(
		agent.player,
		printSender{},
		manager,
		simContexts{},
		agent.attachments,
		printExceptions{},
		speech.WithChannelName(channelName),
		speech.WithStateCallback(func(state speech.PlaybackState) {
			fmt.Println(playStyle.Render(fmt.Sprintf("   [%s] playback %s", name, state)))
			if state == speech.StateFinished {
				agent.mu.Lock()
				select {
				case <-agent.idle:
				default:
					close(agent.idle)
				}
				agent.mu.Unlock()
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s synthesizer: %w", name, err)
	}

	agent.synthesizer = synthesizer
	return agent, nil
}

func (a *simAgent) speak(token, text string) {
	contentID := a.name + "-" + token
	attachment := a.attachments.Create(contentID)
	attachment.Write([]byte(text))
	attachment.CloseWrite()

	directive := directives.Directive{
		Namespace: messaging.SpeechSynthesizerNamespace,
		Name:      speech.SpeakDirectiveName,
		MessageID: directives.NewMessageID(),
		Payload: fmt.Sprintf(`{"token":%q,"url":%q,"format":"AUDIO_MPEG"}`,
			token, "cid:"+contentID),
	}

	a.mu.Lock()
	a.idle = make(chan struct{})
	a.mu.Unlock()

	info := directives.Info{Directive: directive, Result: printResult{agent: a.name, token: token}}
	a.synthesizer.PreHandle(info)
	a.synthesizer.Handle(info)
}

func (a *simAgent) awaitIdle() {
	a.mu.Lock()
	idle := a.idle
	a.mu.Unlock()

	select {
	case <-idle:
	case <-time.After(30 * time.Second):
		fmt.Println(errorStyle.Render(fmt.Sprintf("   [%s] gave up waiting for playback to finish", a.name)))
	}
}

func (a *simAgent) close() {
	a.synthesizer.Close()
}

// simPlayer pretends to play audio: it reads the whole source and finishes
// after a delay proportional to its length, unless stopped first.
type simPlayer struct {
	name    string
	perByte time.Duration

	mu        sync.Mutex
	callbacks speech.PlaybackCallbacks
	source    io.Reader
	stopCh    chan struct{}
	playing   bool
	startedAt time.Time
}

func (p *simPlayer) SetCallbacks(callbacks speech.PlaybackCallbacks) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = callbacks
}

func (p *simPlayer) SetSource(source io.Reader) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return fmt.Errorf("cannot swap sources while playing")
	}
	p.source = source
	return nil
}

func (p *simPlayer) Play() error {
	p.mu.Lock()
	if p.source == nil {
		p.mu.Unlock()
		return fmt.Errorf("no source bound")
	}
	data, err := io.ReadAll(p.source)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to read source: %w", err)
	}

	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.playing = true
	p.startedAt = time.Now()
	callbacks := p.callbacks
	p.mu.Unlock()

	go callbacks.OnPlaybackStarted()
	go func() {
		select {
		case <-time.After(time.Duration(len(data)) * p.perByte):
		case <-stopCh:
		}

		p.mu.Lock()
		if !p.playing {
			p.mu.Unlock()
			return
		}
		p.playing = false
		p.mu.Unlock()

		callbacks.OnPlaybackFinished()
	}()
	return nil
}

func (p *simPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return fmt.Errorf("not playing")
	}
	close(p.stopCh)
	return nil
}

func (p *simPlayer) Offset() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		return 0
	}
	return time.Since(p.startedAt)
}

type printSender struct{}

func (printSender) SendEvent(ctx context.Context, event messaging.Event) error {
	fmt.Println(eventStyle.Render(fmt.Sprintf("   -> %s.%s token=%s",
		event.Header.Namespace, event.Header.Name, event.Payload.Token)))
	return nil
}

type printResult struct {
	agent string
	token string
}

func (r printResult) ReportSuccess() {
	fmt.Println(playStyle.Render(fmt.Sprintf("   [%s] directive %s handled", r.agent, r.token)))
}

func (r printResult) ReportFailure(description string) {
	fmt.Println(errorStyle.Render(fmt.Sprintf("   [%s] directive %s failed: %s", r.agent, r.token, description)))
}

type printExceptions struct{}

func (printExceptions) SendExceptionEncountered(
	directive directives.Directive, errorType directives.ErrorType, message string,
) {
	fmt.Println(errorStyle.Render(fmt.Sprintf("   !! %s.%s %s: %s",
		directive.Namespace, directive.Name, errorType, message)))
}

type simContexts struct{}

func (simContexts) SetState(report speech.StateReport, stateRequestToken uint) error {
	return nil
}

func (simContexts) RequestContext(requester speech.ContextRequester) {
	go requester.OnContextAvailable(`{}`)
}
