package narration

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultKeepLatest is how many audio files survive a cleanup.
const DefaultKeepLatest = 10

// Narrator synthesizes text and stores the audio.
type Narrator struct {
	synth         Synthesizer
	store         *Store
	keepLatest    int
	inlineCleanup bool
	logger        *slog.Logger
}

// NarratorOption configures a Narrator.
type NarratorOption func(*Narrator)

// WithKeepLatest sets how many files inline cleanup keeps.
func WithKeepLatest(n int) NarratorOption {
	return func(nr *Narrator) {
		nr.keepLatest = n
	}
}

// WithInlineCleanup toggles cleanup after every save. Disable it when a
// Janitor watches the directory.
func WithInlineCleanup(enabled bool) NarratorOption {
	return func(nr *Narrator) {
		nr.inlineCleanup = enabled
	}
}

// WithNarratorLogger sets the logger.
func WithNarratorLogger(logger *slog.Logger) NarratorOption {
	return func(nr *Narrator) {
		nr.logger = logger
	}
}

// NewNarrator creates a narrator writing into store.
func NewNarrator(synth Synthesizer, store *Store, opts ...NarratorOption) *Narrator {
	n := &Narrator{
		synth:         synth,
		store:         store,
		keepLatest:    DefaultKeepLatest,
		inlineCleanup: true,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Narrate speaks text and returns the stored file name.
// Cleanup failures are logged and do not fail the call.
func (n *Narrator) Narrate(ctx context.Context, text string) (string, error) {
	audio, err := n.synth.Synthesize(ctx, text)
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}

	name, err := n.store.Save(audio)
	if err != nil {
		return "", err
	}

	if n.inlineCleanup {
		if _, err := n.store.Cleanup(n.keepLatest); err != nil {
			n.logger.Warn("Audio cleanup failed", "dir", n.store.Dir(), "error", err)
		}
	}
	return name, nil
}
