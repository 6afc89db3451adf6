package studio

import (
	"context"
	"io"
	"strings"
	"sync"

	"ugc-studio/internal/model"
)

// fakeAPI is an in-process backend whose behaviour each test plugs in.
type fakeAPI struct {
	mu       sync.Mutex
	uploadFn func(ctx context.Context, f model.PendingFile) (string, error)
	fetchFn  func(ctx context.Context, chatID string) (*model.ChatSnapshot, error)
	streamFn func(ctx context.Context, req model.StreamRequest) (io.ReadCloser, error)

	uploads  []string
	fetches  []string
	requests []model.StreamRequest
}

func (f *fakeAPI) Upload(ctx context.Context, file model.PendingFile) (string, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, file.Name)
	fn := f.uploadFn
	f.mu.Unlock()

	if fn == nil {
		return "http://api.local/uploads/" + file.Name, nil
	}
	return fn(ctx, file)
}

func (f *fakeAPI) FetchSnapshot(ctx context.Context, chatID string) (*model.ChatSnapshot, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, chatID)
	fn := f.fetchFn
	f.mu.Unlock()

	if fn == nil {
		return &model.ChatSnapshot{ID: chatID}, nil
	}
	return fn(ctx, chatID)
}

func (f *fakeAPI) OpenStream(ctx context.Context, req model.StreamRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fn := f.streamFn
	f.mu.Unlock()

	if fn == nil {
		return sseBody(), nil
	}
	return fn(ctx, req)
}

func (f *fakeAPI) calls() (uploads, fetches, streams int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads), len(f.fetches), len(f.requests)
}

func (f *fakeAPI) lastRequest() model.StreamRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// sseBody frames pairs of (event, data) as an event stream.
func sseBody(pairs ...string) io.ReadCloser {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		b.WriteString("event: " + pairs[i] + "\n")
		b.WriteString("data: " + pairs[i+1] + "\n\n")
	}
	return io.NopCloser(strings.NewReader(b.String()))
}
