// Package describe runs one describe request end to end: caption the image,
// phrase it for a listener, resolve the most urgent hazard, and narrate the
// result.
package describe

import (
	"context"
	"image"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/c360studio/visionvoice/caption"
	"github.com/c360studio/visionvoice/events"
	"github.com/c360studio/visionvoice/hazard"
	"github.com/c360studio/visionvoice/journal"
)

const (
	// DefaultAudioPrefix is the URL path audio files are served under.
	DefaultAudioPrefix = "/static/audio/"

	// NoDescription is spoken when the backend returns no caption.
	NoDescription = "The image could not be described. Please try a different photo."

	descriptionLead = "This image shows "
)

// Captioner produces a caption for an image.
type Captioner interface {
	Caption(ctx context.Context, img image.Image) (string, error)
}

// Narrator turns text into a stored audio file and returns its name.
type Narrator interface {
	Narrate(ctx context.Context, text string) (string, error)
}

// Journal records finished requests.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) (journal.Entry, error)
}

// Recorder receives per-request measurements.
type Recorder interface {
	ObserveHazard(detected bool, priority int)
	ObserveDescribe(result string, d time.Duration)
}

// Result is the response envelope for one image.
type Result struct {
	ID          string         `json:"-"`
	Caption     string         `json:"-"`
	Description string         `json:"description"`
	AudioURL    string         `json:"audio_url"`
	Hazard      hazard.Verdict `json:"hazard"`
}

// Pipeline wires the captioner to its optional collaborators. Only the
// captioner is required.
type Pipeline struct {
	captioner   Captioner
	resolver    *hazard.Resolver
	narrator    Narrator
	journal     Journal
	publisher   events.Publisher
	recorder    Recorder
	audioPrefix string
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithResolver replaces the built-in hazard table.
func WithResolver(r *hazard.Resolver) Option {
	return func(p *Pipeline) {
		p.resolver = r
	}
}

// WithNarrator enables audio narration.
func WithNarrator(n Narrator) Option {
	return func(p *Pipeline) {
		p.narrator = n
	}
}

// WithJournal records every request.
func WithJournal(j Journal) Option {
	return func(p *Pipeline) {
		p.journal = j
	}
}

// WithPublisher publishes successful results.
func WithPublisher(pub events.Publisher) Option {
	return func(p *Pipeline) {
		p.publisher = pub
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithAudioPrefix sets the URL prefix for audio files.
func WithAudioPrefix(prefix string) Option {
	return func(p *Pipeline) {
		p.audioPrefix = prefix
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a pipeline around captioner.
func New(captioner Captioner, opts ...Option) *Pipeline {
	p := &Pipeline{
		captioner:   captioner,
		resolver:    hazard.Default(),
		audioPrefix: DefaultAudioPrefix,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type requestIDKey struct{}

// ContextWithRequestID attaches a request ID used for the journal and events.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request ID attached to ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Describe captions img and builds the result. Captioner errors are returned
// unchanged so the caller can classify them with caption.KindOf. Narration,
// journal and publish failures are logged and never fail the request.
func (p *Pipeline) Describe(ctx context.Context, img image.Image) (*Result, error) {
	start := time.Now()
	id := RequestIDFrom(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	logger := p.logger.With("request_id", id)

	text, err := p.captioner.Caption(ctx, img)
	if err != nil {
		kind := caption.KindOf(err)
		logger.Warn("Describe failed", "kind", kind, "error", err)
		p.observe(string(kind), start)
		p.record(ctx, logger, journal.Entry{
			ID:             id,
			HazardPriority: hazard.NoHazardPriority,
			DurationMS:     time.Since(start).Milliseconds(),
			ErrorKind:      string(kind),
			ErrorMessage:   err.Error(),
		})
		return nil, err
	}

	res := &Result{
		ID:          id,
		Caption:     text,
		Description: Sentence(text),
		Hazard:      p.resolver.Resolve(text),
	}
	logger.Info("Image described",
		"caption", text,
		"hazard_detected", res.Hazard.Detected,
		"hazard_priority", res.Hazard.Priority,
		"matched_keyword", res.Hazard.MatchedKeyword)

	var audioFile string
	if p.narrator != nil {
		name, err := p.narrator.Narrate(ctx, res.Description)
		if err != nil {
			logger.Warn("Narration failed", "error", err)
		} else {
			audioFile = name
			res.AudioURL = p.audioPrefix + name
		}
	}

	if p.recorder != nil {
		p.recorder.ObserveHazard(res.Hazard.Detected, res.Hazard.Priority)
	}
	p.observe("ok", start)

	elapsed := time.Since(start)
	p.record(ctx, logger, journal.Entry{
		ID:             id,
		Description:    res.Description,
		HazardDetected: res.Hazard.Detected,
		HazardType:     res.Hazard.Label,
		HazardPriority: res.Hazard.Priority,
		MatchedKeyword: res.Hazard.MatchedKeyword,
		AudioFile:      audioFile,
		DurationMS:     elapsed.Milliseconds(),
	})

	if p.publisher != nil {
		ev := events.Event{
			ID:          id,
			Time:        start.UTC(),
			Description: res.Description,
			AudioURL:    res.AudioURL,
			Hazard:      res.Hazard,
			DurationMS:  elapsed.Milliseconds(),
		}
		if err := p.publisher.Publish(ctx, ev); err != nil {
			logger.Warn("Publish failed", "error", err)
		}
	}

	return res, nil
}

func (p *Pipeline) observe(result string, start time.Time) {
	if p.recorder != nil {
		p.recorder.ObserveDescribe(result, time.Since(start))
	}
}

func (p *Pipeline) record(ctx context.Context, logger *slog.Logger, e journal.Entry) {
	if p.journal == nil {
		return
	}
	// The request context may already be canceled on failure paths.
	if _, err := p.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		logger.Warn("Journal write failed", "error", err)
	}
}

// Sentence phrases a caption for a listener: "This image shows " followed
// by the caption with its first letter lower-cased, ending in punctuation.
// An empty caption yields NoDescription.
func Sentence(caption string) string {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return NoDescription
	}

	r, size := utf8.DecodeRuneInString(caption)
	s := descriptionLead + string(unicode.ToLower(r)) + caption[size:]
	if !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "!") &&
		!strings.HasSuffix(s, "?") && !strings.HasSuffix(s, "…") {
		s += "."
	}
	return s
}
