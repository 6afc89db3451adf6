package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"ugc-studio/internal/config"
	"ugc-studio/internal/llm"
	"ugc-studio/internal/service"
	"ugc-studio/internal/storage"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeChatModel struct {
	chunks []string
	err    error
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.Message, error) {
	return schema.AssistantMessage("", nil), f.err
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	sr, sw := schema.Pipe[*schema.Message](len(f.chunks) + 1)
	go func() {
		defer sw.Close()
		for _, c := range f.chunks {
			sw.Send(schema.AssistantMessage(c, nil), nil)
		}
		if f.err != nil {
			sw.Send(nil, f.err)
		}
	}()
	return sr, nil
}

type backendFixture struct {
	router  *gin.Engine
	model   *fakeChatModel
	files   *service.FileStore
	service *service.ChatService
}

func newBackend(t *testing.T, maxBytes int64) *backendFixture {
	t.Helper()

	fm := &fakeChatModel{chunks: []string{"Hel", "lo"}}
	registry := llm.NewRegistry("fake")
	registry.Register("fake", fm)

	dir := t.TempDir()
	files, err := service.NewFileStore(config.UploadsConfig{
		Dir:          filepath.Join(dir, "uploads"),
		GeneratedDir: filepath.Join(dir, "gen"),
		MaxBytes:     maxBytes,
	})
	require.NoError(t, err)

	store := storage.NewMemoryStorage()
	require.NoError(t, store.Init())

	cfg := &config.Config{}
	svc := service.NewChatService(cfg, store, service.NewGenerator(registry, "", 0), nil, files)

	router := gin.New()
	NewChatHandler(svc, files, 0).RegisterRoutes(router.Group("/api"))
	router.Static(service.UploadsRoute, files.UploadsDir())

	return &backendFixture{router: router, model: fm, files: files, service: svc}
}

func multipartBody(t *testing.T, parts map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, data := range parts {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
