package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/researchagent/internal/ai"
)

const (
	DefaultModel       = "gpt-3.5-turbo"
	DefaultTemperature = float32(0.3)
)

const promptTemplate = `You are a research assistant AI.
Break this research question into clear, actionable subtasks.
Each subtask should be specific and help move toward the final goal.
Decide the number of subtasks based on question complexity.

Research Question: "%s"

Respond with a JSON array of strings, one subtask per element, and nothing else.
If you cannot produce JSON, list the subtasks in numbered format instead.
`

// Planner turns a research question into an ordered list of subtasks with a
// single language-model call.
type Planner struct {
	client      ai.Completer
	model       string
	temperature float32
}

type Option func(*Planner)

// WithModel overrides the chat model name.
func WithModel(model string) Option {
	return func(p *Planner) {
		if strings.TrimSpace(model) != "" {
			p.model = model
		}
	}
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float32) Option {
	return func(p *Planner) {
		if t >= 0 {
			p.temperature = t
		}
	}
}

func New(client ai.Completer, opts ...Option) *Planner {
	p := &Planner{
		client:      client,
		model:       DefaultModel,
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Planner) Model() string        { return p.model }
func (p *Planner) Temperature() float32 { return p.temperature }

// Prompt embeds the question verbatim in the instruction text.
func Prompt(question string) string {
	return fmt.Sprintf(promptTemplate, question)
}

// Plan asks the model for subtasks. An empty, non-nil-error result means the
// response contained nothing recognisable as a list.
func (p *Planner) Plan(ctx context.Context, question string) ([]string, error) {
	resp, err := p.client.Complete(ctx, Prompt(question), ai.CompletionOptions{
		Model:       p.model,
		Temperature: p.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generate subtasks: %w", err)
	}

	subtasks := ParseSubtasks(resp)
	log.Debug().
		Str("model", p.model).
		Int("subtasks", len(subtasks)).
		Msg("plan generated")
	return subtasks, nil
}
