// Package captiontest provides test doubles for callers of the caption package.
package captiontest

import (
	"context"
	"image"
	"sync"
)

// MockCaptioner is a thread-safe mock captioner for testing.
// It returns configured captions in sequence and counts calls.
//
// Usage:
//
//	// Single caption
//	mock := &MockCaptioner{Captions: []string{"A dog on wet stairs."}}
//
//	// Error on every call
//	mock := &MockCaptioner{Err: caption.NewAuthenticationError(401)}
type MockCaptioner struct {
	mu         sync.Mutex
	Captions   []string // Captions to return in sequence; the last repeats
	Err        error    // Error to return (takes precedence over Captions)
	callCount  int
	lastBounds image.Rectangle

	// Checked and StatusErr are returned by Status.
	Checked   bool
	StatusErr error
}

// Caption returns the next configured caption, or Err if set.
func (m *MockCaptioner) Caption(ctx context.Context, img image.Image) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	if img != nil {
		m.lastBounds = img.Bounds()
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Captions) == 0 {
		return "", nil
	}

	idx := min(m.callCount-1, len(m.Captions)-1)
	return m.Captions[idx], nil
}

// Status implements the readiness check used by the HTTP health endpoint.
func (m *MockCaptioner) Status() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Checked, m.StatusErr
}

// CallCount returns the number of times Caption was called.
func (m *MockCaptioner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastBounds returns the bounds of the last image passed to Caption.
func (m *MockCaptioner) LastBounds() image.Rectangle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBounds
}
