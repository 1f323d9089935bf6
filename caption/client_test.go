package caption_test

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360studio/visionvoice/caption"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

// recordingSleep records requested delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func (r *recordingSleep) total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum time.Duration
	for _, d := range r.delays {
		sum += d
	}
	return sum
}

func newTestClient(url string, sleeper *recordingSleep, opts ...caption.ClientOption) *caption.Client {
	base := []caption.ClientOption{
		caption.WithRetryConfig(caption.RetryConfig{
			MaxAttempts: 3,
			BackoffBase: 20 * time.Second,
			MaxBackoff:  60 * time.Second,
		}),
	}
	if sleeper != nil {
		base = append(base, caption.WithSleep(sleeper.sleep))
	}
	return caption.NewClient(caption.Config{Endpoint: url, Token: "hf_test"}, append(base, opts...)...)
}

func TestClient_Caption_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
		assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NotEmpty(t, body)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"generated_text": "a dog sitting on a couch"},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, &recordingSleep{})

	got, err := client.Caption(context.Background(), testImage(32, 32))

	require.NoError(t, err)
	assert.Equal(t, "A dog sitting on a couch.", got)
}

func TestClient_Caption_WarmupThenSuccess(t *testing.T) {
	var attempts atomic.Int32

	// Warm-up signal twice, then success
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"Model is currently loading","estimated_time":20}`))
			return
		}
		_, _ = w.Write([]byte(`[{"generated_text":"a person crossing a street"}]`))
	}))
	defer server.Close()

	sleeper := &recordingSleep{}
	client := newTestClient(server.URL, sleeper)

	got, err := client.Caption(context.Background(), testImage(16, 16))

	require.NoError(t, err)
	assert.Equal(t, "A person crossing a street.", got)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, []time.Duration{20 * time.Second, 40 * time.Second}, sleeper.delays)
	assert.Equal(t, 60*time.Second, sleeper.total())
}

func TestClient_Caption_WarmupElapsedTime(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"generated_text":"stairs"}`))
	}))
	defer server.Close()

	// Real sleeps with a short base: 10ms + 20ms
	client := caption.NewClient(
		caption.Config{Endpoint: server.URL, Token: "hf_test"},
		caption.WithRetryConfig(caption.RetryConfig{MaxAttempts: 3, BackoffBase: 10 * time.Millisecond}),
	)

	start := time.Now()
	got, err := client.Caption(context.Background(), testImage(8, 8))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "Stairs.", got)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestClient_Caption_NoRetryOnAuthError(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid credentials in Authorization header"}`))
	}))
	defer server.Close()

	sleeper := &recordingSleep{}
	client := newTestClient(server.URL, sleeper)

	_, err := client.Caption(context.Background(), testImage(8, 8))

	require.Error(t, err)
	assert.True(t, caption.IsFatal(err))
	assert.Equal(t, caption.KindAuthentication, caption.KindOf(err))
	assert.Equal(t, int32(1), attempts.Load()) // Only one attempt
	assert.Empty(t, sleeper.delays)
}

func TestClient_Caption_UpstreamErrorTruncatesBody(t *testing.T) {
	var attempts atomic.Int32
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write(long)
	}))
	defer server.Close()

	client := newTestClient(server.URL, &recordingSleep{})

	_, err := client.Caption(context.Background(), testImage(8, 8))

	require.Error(t, err)
	assert.Equal(t, caption.KindUpstream, caption.KindOf(err))
	assert.Equal(t, int32(1), attempts.Load())

	var upstream *caption.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusBadRequest, upstream.Status)
	assert.Len(t, upstream.Body, 303) // 300 bytes + "..."
}

func TestClient_Caption_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sleeper := &recordingSleep{}
	client := newTestClient(server.URL, sleeper)

	_, err := client.Caption(context.Background(), testImage(8, 8))

	require.Error(t, err)
	assert.Equal(t, caption.KindRetriesExhausted, caption.KindOf(err))
	assert.Equal(t, int32(3), attempts.Load())
	// No wait after the final attempt
	assert.Len(t, sleeper.delays, 2)

	var exhausted *caption.RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.True(t, caption.IsTransient(exhausted.Last))
}

func TestClient_Caption_ConnectionFailureIsRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close() // Nothing listens any more

	sleeper := &recordingSleep{}
	client := newTestClient(url, sleeper)

	_, err := client.Caption(context.Background(), testImage(8, 8))

	require.Error(t, err)
	assert.Equal(t, caption.KindRetriesExhausted, caption.KindOf(err))
	assert.Len(t, sleeper.delays, 2)
}

func TestClient_Caption_MissingToken(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
	}))
	defer server.Close()

	client := caption.NewClient(caption.Config{Endpoint: server.URL, TokenEnv: "HF_API_TOKEN"})

	checked, _ := client.Status()
	assert.False(t, checked)

	_, err := client.Caption(context.Background(), testImage(8, 8))
	require.Error(t, err)
	assert.Equal(t, caption.KindConfiguration, caption.KindOf(err))
	assert.Contains(t, err.Error(), "HF_API_TOKEN")
	assert.Equal(t, int32(0), attempts.Load())

	// The failure is cached
	checked, statusErr := client.Status()
	assert.True(t, checked)
	assert.Equal(t, err, statusErr)

	_, err2 := client.Caption(context.Background(), testImage(8, 8))
	assert.Equal(t, err, err2)
}

func TestClient_Caption_ConcurrentFirstCallsValidateOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"generated_text":"a table"}]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &recordingSleep{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := client.Caption(context.Background(), testImage(8, 8))
			assert.NoError(t, err)
			assert.Equal(t, "A table.", got)
		}()
	}
	wg.Wait()

	checked, err := client.Status()
	assert.True(t, checked)
	assert.NoError(t, err)
}

func TestClient_Caption_CancelDuringBackoff(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	// Default sleep with a long base; the context deadline ends the wait
	client := caption.NewClient(
		caption.Config{Endpoint: server.URL, Token: "hf_test"},
		caption.WithRetryConfig(caption.RetryConfig{MaxAttempts: 3, BackoffBase: time.Minute}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Caption(ctx, testImage(8, 8))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, caption.KindCanceled, caption.KindOf(err))
	assert.Equal(t, int32(1), attempts.Load())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_Caption_EmptyCaptionIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"generated_text":"   "}]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &recordingSleep{})

	got, err := client.Caption(context.Background(), testImage(8, 8))

	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestClient_Caption_DownscalesLargeImages(t *testing.T) {
	var received image.Config
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg, _, err := image.DecodeConfig(r.Body)
		assert.NoError(t, err)
		received = cfg
		_, _ = w.Write([]byte(`[{"generated_text":"a wall"}]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &recordingSleep{})

	_, err := client.Caption(context.Background(), testImage(1024, 512))

	require.NoError(t, err)
	assert.Equal(t, 512, received.Width)
	assert.Equal(t, 256, received.Height)
}

type countingObserver struct {
	mu       sync.Mutex
	attempts map[string]int
	results  []caption.Kind
	backoff  time.Duration
}

func (o *countingObserver) ObserveAttempt(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempts == nil {
		o.attempts = make(map[string]int)
	}
	o.attempts[outcome]++
}

func (o *countingObserver) ObserveBackoff(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.backoff += d
}

func (o *countingObserver) ObserveResult(kind caption.Kind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, kind)
}

func TestClient_Caption_Observer(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"generated_text":"a door"}]`))
	}))
	defer server.Close()

	obs := &countingObserver{}
	client := newTestClient(server.URL, &recordingSleep{}, caption.WithObserver(obs))

	_, err := client.Caption(context.Background(), testImage(8, 8))

	require.NoError(t, err)
	assert.Equal(t, 1, obs.attempts["transient"])
	assert.Equal(t, 1, obs.attempts["success"])
	assert.Equal(t, 20*time.Second, obs.backoff)
	assert.Equal(t, []caption.Kind{caption.KindNone}, obs.results)
}

func TestClient_Caption_RetriesSendIdenticalBody(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies [][]byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		mu.Lock()
		bodies = append(bodies, body)
		n := len(bodies)
		mu.Unlock()

		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"generated_text":"a wet floor"}]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &recordingSleep{})

	_, err := client.Caption(context.Background(), testImage(600, 300))
	require.NoError(t, err)

	require.Len(t, bodies, 3)
	assert.NotEmpty(t, bodies[0])
	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, bodies[0], bodies[2])
}
