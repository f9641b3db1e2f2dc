// Package media runs visual generation off the turn path. Narrative
// text is shown immediately; images arrive whenever the backend
// finishes, so nothing here ever blocks the orchestrator.
package media

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/selune/engine/internal/state"
)

// Request describes one scene to render.
type Request struct {
	Text      string
	Visual    string
	Tags      []string
	Companion string
	Outfit    state.OutfitState
}

// Result is the outcome of a finished job.
type Result struct {
	ImagePath string
	AudioPath string
	Err       error
}

// Generator renders a scene. Implementations talk to an image backend;
// Mock serves tests and offline play.
type Generator interface {
	GenerateImage(ctx context.Context, prompt Prompt) (string, error)
}

// Speaker optionally synthesizes narration audio.
type Speaker interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Pipeline fans requests out to background jobs.
type Pipeline struct {
	generator Generator
	speaker   Speaker
	audioOn   bool
}

func NewPipeline(generator Generator) *Pipeline {
	return &Pipeline{generator: generator}
}

// EnableAudio attaches a speech synthesizer. Without one, jobs skip
// audio entirely.
func (p *Pipeline) EnableAudio(speaker Speaker) {
	p.speaker = speaker
	p.audioOn = speaker != nil
}

// Job is a single in-flight generation. Result blocks until done;
// Done can be selected on instead.
type Job struct {
	done   chan struct{}
	cancel context.CancelFunc

	once   sync.Once
	result Result
}

// Done is closed when the job finishes or is cancelled.
func (j *Job) Done() <-chan struct{} { return j.done }

// Result blocks until the job finishes and returns its outcome.
func (j *Job) Result() Result {
	<-j.done
	return j.result
}

// Cancel aborts the job. The result reports the cancellation error.
func (j *Job) Cancel() { j.cancel() }

func (j *Job) finish(r Result) {
	j.once.Do(func() {
		j.result = r
		close(j.done)
	})
}

// Start launches generation in the background and returns immediately.
// A nil generator yields a no-op job that completes at once.
func (p *Pipeline) Start(ctx context.Context, req Request) *Job {
	ctx, cancel := context.WithCancel(ctx)
	job := &Job{done: make(chan struct{}), cancel: cancel}

	if p.generator == nil {
		cancel()
		job.finish(Result{})
		return job
	}

	go func() {
		defer cancel()
		var res Result

		prompt := BuildPrompt(req)
		path, err := p.generator.GenerateImage(ctx, prompt)
		if err != nil {
			log.Printf("media image failed companion=%s err=%v", req.Companion, err)
			res.Err = err
		} else {
			res.ImagePath = path
		}

		if p.audioOn && ctx.Err() == nil {
			audio, err := p.speaker.Synthesize(ctx, req.Text)
			if err != nil {
				log.Printf("media audio failed err=%v", err)
				if res.Err == nil {
					res.Err = err
				}
			} else {
				res.AudioPath = audio
			}
		}

		job.finish(res)
	}()
	return job
}

// Mock is a Generator and Speaker for tests and offline sessions.
type Mock struct {
	mu      sync.Mutex
	prompts []Prompt
}

func (m *Mock) GenerateImage(ctx context.Context, prompt Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return "storage/images/mock_image.png", nil
}

func (m *Mock) Synthesize(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "storage/audio/mock_audio.mp3", nil
}

// Prompts returns every prompt the mock has rendered.
func (m *Mock) Prompts() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.prompts...)
}

// Prompt is a rendered positive/negative prompt pair.
type Prompt struct {
	Positive string
	Negative string
}

const negativeBase = "lowres, bad anatomy, bad hands, text, error, missing fingers, extra digit, cropped, worst quality, low quality, jpeg artifacts, signature, watermark, blurry"

// BuildPrompt flattens a request into backend prompt text: visual
// description first, then tags, then outfit keywords.
func BuildPrompt(req Request) Prompt {
	parts := make([]string, 0, 4)
	if req.Visual != "" {
		parts = append(parts, req.Visual)
	}
	if len(req.Tags) > 0 {
		parts = append(parts, strings.Join(req.Tags, ", "))
	}
	if req.Outfit.Style != "" {
		parts = append(parts, req.Outfit.Style+" outfit")
	}
	if len(req.Outfit.Components) > 0 {
		slots := make([]string, 0, len(req.Outfit.Components))
		for slot := range req.Outfit.Components {
			slots = append(slots, slot)
		}
		sort.Strings(slots)
		words := make([]string, 0, len(slots))
		for _, slot := range slots {
			if v := req.Outfit.Components[slot]; v != "" && v != "none" {
				words = append(words, v)
			}
		}
		if len(words) > 0 {
			parts = append(parts, strings.Join(words, ", "))
		}
	}
	return Prompt{
		Positive: strings.Join(parts, ", "),
		Negative: negativeBase,
	}
}
