package describe_test

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/visionvoice/caption"
	"github.com/c360studio/visionvoice/caption/captiontest"
	"github.com/c360studio/visionvoice/describe"
	"github.com/c360studio/visionvoice/events"
	"github.com/c360studio/visionvoice/hazard"
	"github.com/c360studio/visionvoice/journal"
)

type fakeNarrator struct {
	name  string
	err   error
	texts []string
}

func (f *fakeNarrator) Narrate(ctx context.Context, text string) (string, error) {
	f.texts = append(f.texts, text)
	return f.name, f.err
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
	err     error
}

func (f *fakeJournal) Record(ctx context.Context, e journal.Entry) (journal.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return journal.Entry{}, err
	}
	f.entries = append(f.entries, e)
	return e, f.err
}

type fakePublisher struct {
	events []events.Event
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, ev events.Event) error {
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakePublisher) Close() error { return nil }

type fakeRecorder struct {
	hazards []int
	results []string
}

func (f *fakeRecorder) ObserveHazard(detected bool, priority int) {
	f.hazards = append(f.hazards, priority)
}

func (f *fakeRecorder) ObserveDescribe(result string, d time.Duration) {
	f.results = append(f.results, result)
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 8, 8))
}

func TestSentence(t *testing.T) {
	tests := []struct {
		caption string
		want    string
	}{
		{"A dog on the stairs.", "This image shows a dog on the stairs."},
		{"A dog on the stairs", "This image shows a dog on the stairs."},
		{"Two people walking!", "This image shows two people walking!"},
		{"Élan vital.", "This image shows élan vital."},
		{"", describe.NoDescription},
		{"   ", describe.NoDescription},
	}

	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			assert.Equal(t, tt.want, describe.Sentence(tt.caption))
		})
	}
}

func TestPipeline_Describe(t *testing.T) {
	mock := &captiontest.MockCaptioner{Captions: []string{"A dog next to a door."}}
	narrator := &fakeNarrator{name: "description_0123abcd.mp3"}
	jr := &fakeJournal{}
	pub := &fakePublisher{}
	rec := &fakeRecorder{}

	p := describe.New(mock,
		describe.WithNarrator(narrator),
		describe.WithJournal(jr),
		describe.WithPublisher(pub),
		describe.WithRecorder(rec))

	ctx := describe.ContextWithRequestID(context.Background(), "req-42")
	res, err := p.Describe(ctx, testImage())
	require.NoError(t, err)

	assert.Equal(t, "req-42", res.ID)
	assert.Equal(t, "This image shows a dog next to a door.", res.Description)
	assert.Equal(t, "/static/audio/description_0123abcd.mp3", res.AudioURL)
	assert.True(t, res.Hazard.Detected)
	assert.Equal(t, "door", res.Hazard.MatchedKeyword)
	assert.Equal(t, 4, res.Hazard.Priority)

	assert.Equal(t, []string{res.Description}, narrator.texts)

	require.Len(t, jr.entries, 1)
	assert.Equal(t, "req-42", jr.entries[0].ID)
	assert.Equal(t, "description_0123abcd.mp3", jr.entries[0].AudioFile)
	assert.Empty(t, jr.entries[0].ErrorKind)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "req-42", pub.events[0].ID)
	assert.Equal(t, res.Hazard, pub.events[0].Hazard)

	assert.Equal(t, []int{4}, rec.hazards)
	assert.Equal(t, []string{"ok"}, rec.results)
}

func TestPipeline_HazardResolvedFromCaption(t *testing.T) {
	// The lead phrase must not contribute keywords
	p := describe.New(&captiontest.MockCaptioner{Captions: []string{"A bowl of fruit."}})

	res, err := p.Describe(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, hazard.None(), res.Hazard)
	assert.NotEmpty(t, res.ID)
}

func TestPipeline_EmptyCaption(t *testing.T) {
	p := describe.New(&captiontest.MockCaptioner{Captions: []string{""}})

	res, err := p.Describe(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, describe.NoDescription, res.Description)
	assert.False(t, res.Hazard.Detected)
	assert.Equal(t, hazard.NoHazardPriority, res.Hazard.Priority)
}

func TestPipeline_NarrationFailureIsNotFatal(t *testing.T) {
	p := describe.New(&captiontest.MockCaptioner{Captions: []string{"A fire in a fireplace."}},
		describe.WithNarrator(&fakeNarrator{err: errors.New("tts offline")}))

	res, err := p.Describe(context.Background(), testImage())
	require.NoError(t, err)
	assert.Empty(t, res.AudioURL)
	assert.Equal(t, 1, res.Hazard.Priority)
}

func TestPipeline_SideEffectFailuresAreNotFatal(t *testing.T) {
	p := describe.New(&captiontest.MockCaptioner{Captions: []string{"A cat."}},
		describe.WithJournal(&fakeJournal{err: errors.New("disk full")}),
		describe.WithPublisher(&fakePublisher{err: errors.New("nats down")}))

	_, err := p.Describe(context.Background(), testImage())
	assert.NoError(t, err)
}

func TestPipeline_CaptionErrorPropagates(t *testing.T) {
	capErr := &caption.RetriesExhaustedError{
		Attempts: 3,
		Last:     caption.NewTransientError(503, errors.New("warming up")),
	}
	narrator := &fakeNarrator{name: "x.mp3"}
	jr := &fakeJournal{}
	pub := &fakePublisher{}
	rec := &fakeRecorder{}

	p := describe.New(&captiontest.MockCaptioner{Err: capErr},
		describe.WithNarrator(narrator),
		describe.WithJournal(jr),
		describe.WithPublisher(pub),
		describe.WithRecorder(rec))

	res, err := p.Describe(context.Background(), testImage())
	assert.Nil(t, res)
	assert.Same(t, capErr, err)
	assert.Equal(t, caption.KindRetriesExhausted, caption.KindOf(err))

	assert.Empty(t, narrator.texts)
	assert.Empty(t, pub.events)
	assert.Empty(t, rec.hazards)
	assert.Equal(t, []string{"retries_exhausted"}, rec.results)

	require.Len(t, jr.entries, 1)
	assert.Equal(t, "retries_exhausted", jr.entries[0].ErrorKind)
	assert.Equal(t, hazard.NoHazardPriority, jr.entries[0].HazardPriority)
}

func TestPipeline_CanceledRequestStillJournaled(t *testing.T) {
	jr := &fakeJournal{}
	p := describe.New(&captiontest.MockCaptioner{Captions: []string{"x"}}, describe.WithJournal(jr))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Describe(ctx, testImage())
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, jr.entries, 1)
	assert.Equal(t, "canceled", jr.entries[0].ErrorKind)
}

func TestResult_JSON(t *testing.T) {
	p := describe.New(&captiontest.MockCaptioner{Captions: []string{"A wet floor."}},
		describe.WithNarrator(&fakeNarrator{name: "a.mp3"}),
		describe.WithAudioPrefix("/audio/"))

	res, err := p.Describe(context.Background(), testImage())
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Len(t, fields, 3)
	assert.Equal(t, "This image shows a wet floor.", fields["description"])
	assert.Equal(t, "/audio/a.mp3", fields["audio_url"])

	hz, ok := fields["hazard"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, hz["hazard_detected"])
	assert.Equal(t, "wet", hz["matched_keyword"])
}
