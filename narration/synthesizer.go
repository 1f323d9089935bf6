// Package narration turns description text into spoken MP3 audio and keeps
// the audio directory bounded.
package narration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultEndpoint is the public translate text-to-speech endpoint.
	DefaultEndpoint = "https://translate.google.com/translate_tts"

	// DefaultLanguage is the spoken language.
	DefaultLanguage = "en"

	// maxChunkRunes is the longest text the endpoint accepts per request.
	maxChunkRunes = 100

	// maxChunkAudio limits the audio read for one chunk.
	maxChunkAudio = 5 << 20

	maxErrorBody = 300
)

// Synthesizer converts text to MP3 audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// SynthesisError reports a non-success response from the speech endpoint.
type SynthesisError struct {
	Status int
	Body   string
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("speech endpoint returned %d: %s", e.Status, e.Body)
}

// HTTPSynthesizer fetches speech from a translate-TTS style endpoint, one GET
// per chunk of text, and concatenates the MP3 frames in order.
type HTTPSynthesizer struct {
	endpoint   string
	language   string
	httpClient *http.Client
	logger     *slog.Logger
}

// SynthesizerOption configures an HTTPSynthesizer.
type SynthesizerOption func(*HTTPSynthesizer)

// WithSynthesizerHTTPClient sets a custom HTTP client.
func WithSynthesizerHTTPClient(c *http.Client) SynthesizerOption {
	return func(s *HTTPSynthesizer) {
		s.httpClient = c
	}
}

// WithSynthesizerLogger sets the logger.
func WithSynthesizerLogger(logger *slog.Logger) SynthesizerOption {
	return func(s *HTTPSynthesizer) {
		s.logger = logger
	}
}

// NewHTTPSynthesizer creates a synthesizer for endpoint speaking language.
// Empty arguments fall back to DefaultEndpoint and DefaultLanguage.
func NewHTTPSynthesizer(endpoint, language string, opts ...SynthesizerOption) *HTTPSynthesizer {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if language == "" {
		language = DefaultLanguage
	}
	s := &HTTPSynthesizer{
		endpoint: endpoint,
		language: language,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize returns the MP3 audio for text.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	chunks := splitChunks(text, maxChunkRunes)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("nothing to synthesize")
	}

	var audio []byte
	for i, chunk := range chunks {
		data, err := s.fetch(ctx, chunk, i, len(chunks))
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		audio = append(audio, data...)
	}

	s.logger.Debug("Speech synthesized", "chunks", len(chunks), "bytes", len(audio))
	return audio, nil
}

func (s *HTTPSynthesizer) fetch(ctx context.Context, chunk string, idx, total int) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", s.language)
	q.Set("q", chunk)
	q.Set("total", fmt.Sprint(total))
	q.Set("idx", fmt.Sprint(idx))
	q.Set("textlen", fmt.Sprint(utf8.RuneCountInString(chunk)))

	endpoint := s.endpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxChunkAudio))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b := string(body)
		if len(b) > maxErrorBody {
			b = strings.ToValidUTF8(b[:maxErrorBody], "") + "..."
		}
		return nil, &SynthesisError{Status: resp.StatusCode, Body: b}
	}
	return body, nil
}

// splitChunks breaks text into pieces of at most limit runes on word
// boundaries. A single word longer than limit is split mid-word.
func splitChunks(text string, limit int) []string {
	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, word := range strings.Fields(text) {
		for utf8.RuneCountInString(word) > limit {
			flush()
			runes := []rune(word)
			chunks = append(chunks, string(runes[:limit]))
			word = string(runes[limit:])
		}

		n := utf8.RuneCountInString(word)
		if curLen > 0 && curLen+1+n > limit {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(word)
		curLen += n
	}
	flush()
	return chunks
}
