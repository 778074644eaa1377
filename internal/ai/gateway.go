package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/pliu/smartaid/internal/logging"
	"github.com/pliu/smartaid/internal/metrics"
	"github.com/pliu/smartaid/internal/models"
	"github.com/pliu/smartaid/internal/validation"
)

// Fallback texts returned to users when a call fails.
const (
	ChatRemoteFallback     = "Sorry, I ran into an issue communicating with the AI service."
	MoodRemoteFallback     = "Could not generate AI suggestion due to an API error."
	UnexpectedFallback     = "An unexpected error occurred."
	DocumentRemoteFallback = "API communication failed during document processing."
	DocumentErrorFallback  = "An internal error occurred during processing."
	// MoodUnavailable is stored when no gateway is configured at all.
	MoodUnavailable = "AI suggestion unavailable due to a temporary service error."
)

const (
	callChat     = "chat"
	callMood     = "mood"
	callDocument = "document"
)

const (
	chatTemperature     = 0.7
	moodTemperature     = 0.8
	documentTemperature = 0.3
)

const documentInstruction = "You are a study aid AI. Your task is to process the provided text. " +
	"First, generate a concise summary (around 3-4 paragraphs) of the key points. " +
	"Second, generate a minimum of 5 and a maximum of 10 detailed flashcards " +
	"from the most important concepts. The output MUST be a valid JSON object."

var documentSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"summary": map[string]any{"type": "STRING", "description": "The concise 3-4 paragraph summary of the text."},
		"flashcards": map[string]any{
			"type":        "ARRAY",
			"description": "A list of 5-10 detailed flashcards.",
			"minItems":    5,
			"maxItems":    10,
			"items": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"question": map[string]any{"type": "STRING", "description": "The flashcard question."},
					"answer":   map[string]any{"type": "STRING", "description": "The detailed flashcard answer."},
				},
				"required": []string{"question", "answer"},
			},
		},
	},
	"required": []string{"summary", "flashcards"},
}

type Flashcard struct {
	Question string `json:"question" validate:"notblank"`
	Answer   string `json:"answer" validate:"notblank"`
}

// StudyResult is the outcome of SummarizeAndFlashcard. Error is non-empty
// when the call failed; Err holds the underlying cause.
type StudyResult struct {
	Title      string      `json:"title"`
	Summary    string      `json:"summary"`
	Flashcards []Flashcard `json:"flashcards"`
	Error      string      `json:"error,omitempty"`
	Err        error       `json:"-"`
}

type documentReply struct {
	Summary    string      `json:"summary" validate:"notblank"`
	Flashcards []Flashcard `json:"flashcards" validate:"min=5,max=10,dive"`
}

// Recorder persists the audit trail of AI calls.
type Recorder interface {
	RecordAIInteraction(entry *models.AIInteractionLog) error
}

type Options struct {
	ChatModel     string
	DocumentModel string
	// Timeout bounds each call. Calls are never retried.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker; OpenTimeout is how long it stays open.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func (o Options) withDefaults() Options {
	if o.ChatModel == "" {
		o.ChatModel = "gemini-2.5-flash"
	}
	if o.DocumentModel == "" {
		o.DocumentModel = "gemini-2.5-pro"
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.FailureThreshold == 0 {
		o.FailureThreshold = 5
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = 30 * time.Second
	}
	return o
}

// Gateway turns the three SmartAid use cases into completion requests,
// degrades failures into fixed texts, and records every call.
type Gateway struct {
	gen      Generator
	recorder Recorder
	breaker  *gobreaker.CircuitBreaker[string]
	opts     Options
}

func NewGateway(gen Generator, recorder Recorder, opts Options) *Gateway {
	opts = opts.withDefaults()
	settings := gobreaker.Settings{
		Name:    "gemini",
		Timeout: opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		// A caller that went away says nothing about the remote service.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("AI circuit breaker state changed")
		},
	}
	return &Gateway{
		gen:      gen,
		recorder: recorder,
		breaker:  gobreaker.NewCircuitBreaker[string](settings),
		opts:     opts,
	}
}

// Chat answers a free-form message in the SmartAid persona.
func (g *Gateway) Chat(ctx context.Context, userID int, message string) string {
	prompt := "You are SmartAid, a supportive and actionable productivity and wellness companion. " +
		"Keep your responses concise and focused on planning, tracking, or brainstorming. " +
		"User message: " + message
	text, err := g.call(ctx, callChat, Request{
		Model:       g.opts.ChatModel,
		Prompt:      prompt,
		Temperature: chatTemperature,
	})
	if err != nil {
		text = fallback(err, ChatRemoteFallback, UnexpectedFallback)
	}
	g.record(ctx, userID, prompt, text, err)
	return text
}

// MoodSuggestion returns a short wellness suggestion for a logged mood.
func (g *Gateway) MoodSuggestion(ctx context.Context, userID int, mood, notes string) string {
	prompt := moodPrompt(mood, notes)
	text, err := g.call(ctx, callMood, Request{
		Model:       g.opts.ChatModel,
		Prompt:      prompt,
		Temperature: moodTemperature,
	})
	if err != nil {
		text = fallback(err, MoodRemoteFallback, UnexpectedFallback)
	}
	g.record(ctx, userID, prompt, text, err)
	return text
}

func moodPrompt(mood, notes string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The user has logged their mood as '%s'. ", mood)
	if notes != "" {
		fmt.Fprintf(&sb, "They also added notes: \"%s\". ", notes)
	}
	sb.WriteString("Based on this mood, provide a short (2-3 sentence), empathetic, and actionable " +
		"suggestion related to productivity or wellness. For example, if 'stressed', suggest a 5-minute break. " +
		"If 'joyful', suggest planning the next task while feeling motivated. " +
		"Your response should be only the suggestion text.")
	return sb.String()
}

// SummarizeAndFlashcard asks for a summary plus 5 to 10 flashcards. The
// reply is schema-checked; any failure is reported through Error and Err.
func (g *Gateway) SummarizeAndFlashcard(ctx context.Context, userID int, text, title string) StudyResult {
	prompt := fmt.Sprintf("Please process the following document titled '%s'. Document text: \n\n%s", title, text)
	raw, err := g.call(ctx, callDocument, Request{
		Model:             g.opts.DocumentModel,
		SystemInstruction: documentInstruction,
		Prompt:            prompt,
		Temperature:       documentTemperature,
		ResponseSchema:    documentSchema,
	})

	result := StudyResult{Title: title}
	if err == nil {
		var reply documentReply
		reply, err = parseDocumentReply(raw)
		if err != nil {
			metrics.AIRequests.WithLabelValues(callDocument, "parse_error").Inc()
		}
		result.Summary = reply.Summary
		result.Flashcards = reply.Flashcards
	}
	if err != nil {
		result = StudyResult{
			Title: title,
			Error: fallback(err, DocumentRemoteFallback, DocumentErrorFallback),
			Err:   err,
		}
		raw = result.Error
	}
	g.record(ctx, userID, prompt, raw, err)
	return result
}

func parseDocumentReply(raw string) (documentReply, error) {
	var reply documentReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return documentReply{}, &ParseError{Err: err}
	}
	if err := validation.Struct(reply); err != nil {
		return documentReply{}, &ParseError{Err: err}
	}
	return reply, nil
}

// call runs one bounded, breaker-guarded completion.
func (g *Gateway) call(ctx context.Context, call string, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	start := time.Now()
	text, err := g.breaker.Execute(func() (string, error) {
		return g.gen.Generate(ctx, req)
	})
	metrics.AIRequestDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &RemoteAPIError{StatusCode: 503, Message: "circuit breaker open"}
	}
	metrics.AIRequests.WithLabelValues(call, outcome(err)).Inc()
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("call", call).Str("model", req.Model).Msg("AI call failed")
	}
	return text, err
}

func outcome(err error) string {
	var remote *RemoteAPIError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &remote):
		return "remote_error"
	default:
		return "error"
	}
}

func fallback(err error, remoteText, otherText string) string {
	var remote *RemoteAPIError
	if errors.As(err, &remote) {
		return remoteText
	}
	return otherText
}

func (g *Gateway) record(ctx context.Context, userID int, prompt, response string, callErr error) {
	if g.recorder == nil {
		return
	}
	entry := &models.AIInteractionLog{
		Prompt:       prompt,
		Response:     response,
		IsSuccessful: callErr == nil,
	}
	if userID > 0 {
		entry.UserID = &userID
	}
	if err := g.recorder.RecordAIInteraction(entry); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to record AI interaction")
	}
}
