// Package main implements a mock captioning backend for local runs and e2e
// tests. It answers POST /models/<model> the way the hosted inference API
// does, serving responses from JSON fixture files so the describe pipeline
// can run fast, deterministic and offline.
//
// Usage:
//
//	mock-captioner -fixtures /path/to/fixtures -port 9090 -token secret
//
// Fixture files are JSON named by the last segment of the model path
// (e.g., "blip-image-captioning-large.json" serves
// /models/Salesforce/blip-image-captioning-large). The file content is the
// response body.
//
// Status fixtures: a file whose content is exactly {"status": N, "body": ...}
// is answered with status N and the given body, so a sequence like
// "blip.1.json" = {"status":503,"body":"loading"} followed by "blip.json"
// reproduces a cold start.
//
// Sequential fixtures: if numbered files exist (e.g., "blip.1.json",
// "blip.2.json"), the Nth call to that model returns the Nth fixture. After
// exhausting numbered fixtures, the base "blip.json" is used as a repeating
// fallback.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// statusFixture is a fixture that forces a non-200 answer.
type statusFixture struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// capturedRequest stores the key fields of an incoming caption request for
// test verification.
type capturedRequest struct {
	Model       string `json:"model"`
	ContentType string `json:"content_type"`
	ImageBytes  int    `json:"image_bytes"`
	CallIndex   int    `json:"call_index"` // 1-indexed per-model call number
	Timestamp   int64  `json:"timestamp"`
}

type server struct {
	fixtures map[string][]string // model name → ordered fixture contents
	token    string              // required bearer token, empty accepts any
	calls    atomic.Int64
	logger   *slog.Logger

	modelCalls   map[string]*atomic.Int64
	modelCallsMu sync.Mutex

	modelRequests   map[string][]capturedRequest
	modelRequestsMu sync.Mutex
}

func newServer(fixtures map[string][]string, token string, logger *slog.Logger) *server {
	if logger == nil {
		logger = slog.Default()
	}
	return &server{
		fixtures:      fixtures,
		token:         token,
		logger:        logger,
		modelCalls:    make(map[string]*atomic.Int64),
		modelRequests: make(map[string][]capturedRequest),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /models/{model...}", s.handleCaption)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /requests", s.handleRequests)
	return mux
}

func (s *server) captureRequest(model string, req capturedRequest) {
	s.modelRequestsMu.Lock()
	defer s.modelRequestsMu.Unlock()
	s.modelRequests[model] = append(s.modelRequests[model], req)
}

// getModelCounter returns the call counter for a model, creating it lazily.
func (s *server) getModelCounter(model string) *atomic.Int64 {
	s.modelCallsMu.Lock()
	defer s.modelCallsMu.Unlock()
	if c, ok := s.modelCalls[model]; ok {
		return c
	}
	c := &atomic.Int64{}
	s.modelCalls[model] = c
	return c
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files")
	port := flag.Int("port", 9090, "port to listen on")
	token := flag.String("token", "", "bearer token to require (empty accepts any)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if envDir := os.Getenv("MOCK_CAPTIONER_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}
	if *fixtureDir == "" {
		*fixtureDir = "/fixtures"
	}

	fixtures, err := loadFixtures(*fixtureDir)
	if err != nil {
		logger.Error("Failed to load fixtures", "dir", *fixtureDir, "error", err)
		os.Exit(1)
	}
	for model, seq := range fixtures {
		logger.Info("Loaded model fixtures", "model", model, "count", len(seq))
	}

	s := newServer(fixtures, *token, logger)

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("Mock captioner listening", "addr", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleCaption(w http.ResponseWriter, r *http.Request) {
	model := path.Base(r.PathValue("model"))
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	authorized := s.token == "" || r.Header.Get("Authorization") == "Bearer "+s.token

	seq, ok := s.fixtures[model]
	if !ok {
		s.logger.Warn("No fixture for model", "call", callNum, "model", model)
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Model %s does not exist", model))
		return
	}

	// Rejected requests do not consume a fixture
	if !authorized {
		writeJSONError(w, http.StatusUnauthorized, "Invalid credentials in Authorization header")
		return
	}
	if len(body) == 0 {
		writeJSONError(w, http.StatusBadRequest, "empty image body")
		return
	}

	callIndex := int(s.getModelCounter(model).Add(1) - 1)
	s.captureRequest(model, capturedRequest{
		Model:       model,
		ContentType: r.Header.Get("Content-Type"),
		ImageBytes:  len(body),
		CallIndex:   callIndex + 1,
		Timestamp:   time.Now().UnixMilli(),
	})

	content := seq[min(callIndex, len(seq)-1)]
	status, payload := fixtureResponse(content)

	s.logger.Info("Caption request",
		"call", callNum,
		"model", model,
		"call_index", callIndex+1,
		"image_bytes", len(body),
		"status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// fixtureResponse returns the status and body a fixture stands for.
func fixtureResponse(content string) (int, []byte) {
	var sf statusFixture
	dec := json.NewDecoder(strings.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sf); err == nil && sf.Status != 0 {
		body := bytes.TrimSpace(sf.Body)
		// A string body is sent as its raw text
		var text string
		if json.Unmarshal(body, &text) == nil {
			return sf.Status, []byte(text)
		}
		return sf.Status, body
	}
	return http.StatusOK, []byte(content)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// handleStats returns call counts for test assertions.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.modelCallsMu.Lock()
	callsByModel := make(map[string]int64, len(s.modelCalls))
	for model, counter := range s.modelCalls {
		callsByModel[model] = counter.Load()
	}
	s.modelCallsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_calls":    s.calls.Load(),
		"calls_by_model": callsByModel,
	})
}

// handleRequests returns captured requests, optionally filtered by model
// and 1-indexed call number.
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	modelFilter := r.URL.Query().Get("model")
	callFilter, _ := strconv.Atoi(r.URL.Query().Get("call"))

	s.modelRequestsMu.Lock()
	result := make(map[string][]capturedRequest)
	for model, reqs := range s.modelRequests {
		if modelFilter != "" && model != modelFilter {
			continue
		}
		for _, req := range reqs {
			if callFilter == 0 || req.CallIndex == callFilter {
				result[model] = append(result[model], req)
			}
		}
	}
	s.modelRequestsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"requests_by_model": result,
	})
}

// numberedFileRe matches files like "blip.1.json", "blip.2.json".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.json$`)

// loadFixtures reads JSON files from dir and returns a map of model→content
// sequence: numbered files in numeric order, then the base file as the
// repeating fallback.
func loadFixtures(dir string) (map[string][]string, error) {
	baseFiles := make(map[string]string)
	numberedFiles := make(map[string]map[int]string)

	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		if !json.Valid(data) {
			return fmt.Errorf("invalid JSON in %s", p)
		}
		content := string(data)

		if matches := numberedFileRe.FindStringSubmatch(d.Name()); matches != nil {
			model := matches[1]
			index, _ := strconv.Atoi(matches[2])
			if numberedFiles[model] == nil {
				numberedFiles[model] = make(map[int]string)
			}
			numberedFiles[model][index] = content
			return nil
		}

		baseFiles[strings.TrimSuffix(d.Name(), ".json")] = content
		return nil
	})
	if err != nil {
		return nil, err
	}

	fixtures := make(map[string][]string)
	for model, numbered := range numberedFiles {
		indices := make([]int, 0, len(numbered))
		for idx := range numbered {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		for _, idx := range indices {
			fixtures[model] = append(fixtures[model], numbered[idx])
		}
	}
	for model, base := range baseFiles {
		fixtures[model] = append(fixtures[model], base)
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	return fixtures, nil
}
