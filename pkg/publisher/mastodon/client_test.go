package mastodon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/newswire-bots/newsrelay/internal/domain"
)

type recordingLogger struct {
	warns  atomic.Int32
	errors atomic.Int32
}

func (l *recordingLogger) InfoObj(string, string, interface{})  {}
func (l *recordingLogger) DebugObj(string, string, interface{}) {}
func (l *recordingLogger) WarnObj(string, string, interface{})  { l.warns.Add(1) }
func (l *recordingLogger) ErrorObj(string, string, interface{}) { l.errors.Add(1) }

type fakeServer struct {
	srv *httptest.Server

	mediaStatus  int
	statusStatus int
	imageStatus  int

	statusCalls    atomic.Int32
	lastMediaForm  string
	lastStatusAuth string
	lastStatus     PostStatusRequest
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		mediaStatus:  http.StatusOK,
		statusStatus: http.StatusOK,
		imageStatus:  http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(mediaPath, func(w http.ResponseWriter, r *http.Request) {
		if fs.mediaStatus != http.StatusOK {
			w.WriteHeader(fs.mediaStatus)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, "not multipart", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file part", http.StatusBadRequest)
			return
		}
		defer file.Close()
		fs.lastMediaForm = header.Filename
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(PartialMediaResponse{ID: "media-42", Type: "image"})
	})
	mux.HandleFunc(statusPath, func(w http.ResponseWriter, r *http.Request) {
		fs.statusCalls.Add(1)
		if fs.statusStatus != http.StatusOK {
			w.WriteHeader(fs.statusStatus)
			return
		}
		fs.lastStatusAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &fs.lastStatus)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(PartialPostStatusResponse{
			ID:  "status-1",
			URL: "https://mastodon.test/@bot/status-1",
		})
	})
	mux.HandleFunc("/img.jpg", func(w http.ResponseWriter, _ *http.Request) {
		if fs.imageStatus != http.StatusOK {
			w.WriteHeader(fs.imageStatus)
			return
		}
		w.Write([]byte{0xff, 0xd8, 0xff})
	})

	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func testPost(fs *fakeServer) domain.NewsPost {
	return domain.NewsPost{
		Image:   fs.srv.URL + "/img.jpg",
		Title:   "Headline",
		Summary: "Summary",
		Link:    "https://news.example.com/a",
	}
}

func TestPublishAttachesMedia(t *testing.T) {
	fs := newFakeServer(t)
	log := &recordingLogger{}
	client := New(fs.srv.URL, "secret-token", "en", resty.New(), log)

	if err := client.Publish(context.Background(), testPost(fs)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if fs.lastMediaForm != "image.jpg" {
		t.Fatalf("expected multipart file part image.jpg, got %q", fs.lastMediaForm)
	}
	if len(fs.lastStatus.MediaIDs) != 1 || fs.lastStatus.MediaIDs[0] != "media-42" {
		t.Fatalf("expected media id attached to status, got %#v", fs.lastStatus.MediaIDs)
	}
	if fs.lastStatusAuth != "Bearer secret-token" {
		t.Fatalf("unexpected authorization header %q", fs.lastStatusAuth)
	}
	if !strings.Contains(fs.lastStatus.Status, "Headline") {
		t.Fatalf("status text missing title: %q", fs.lastStatus.Status)
	}
	if got := log.warns.Load(); got != 0 {
		t.Fatalf("expected no warnings, got %d", got)
	}
}

func TestPublishMediaFailurePostsTextOnly(t *testing.T) {
	fs := newFakeServer(t)
	fs.mediaStatus = http.StatusInternalServerError
	log := &recordingLogger{}
	client := New(fs.srv.URL, "secret-token", "en", resty.New(), log)

	if err := client.Publish(context.Background(), testPost(fs)); err != nil {
		t.Fatalf("Publish must succeed without the media: %v", err)
	}

	if len(fs.lastStatus.MediaIDs) != 0 {
		t.Fatalf("expected text-only status, got media ids %#v", fs.lastStatus.MediaIDs)
	}
	if got := log.warns.Load(); got != 1 {
		t.Fatalf("expected exactly one warning for the failed upload, got %d", got)
	}
}

func TestPublishImageFetchFailurePostsTextOnly(t *testing.T) {
	fs := newFakeServer(t)
	fs.imageStatus = http.StatusNotFound
	log := &recordingLogger{}
	client := New(fs.srv.URL, "secret-token", "en", resty.New(), log)

	if err := client.Publish(context.Background(), testPost(fs)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(fs.lastStatus.MediaIDs) != 0 {
		t.Fatalf("expected text-only status, got media ids %#v", fs.lastStatus.MediaIDs)
	}
	if got := log.warns.Load(); got != 1 {
		t.Fatalf("expected exactly one warning, got %d", got)
	}
}

func TestPublishSurfacesStatusRejection(t *testing.T) {
	fs := newFakeServer(t)
	fs.statusStatus = http.StatusUnprocessableEntity
	client := New(fs.srv.URL, "secret-token", "en", resty.New(), &recordingLogger{})

	post := testPost(fs)
	post.Image = ""
	if err := client.Publish(context.Background(), post); err == nil {
		t.Fatal("expected error for rejected status")
	}
	if got := fs.statusCalls.Load(); got != 1 {
		t.Fatalf("client errors must not be retried, got %d attempts", got)
	}
}

func TestPublishRetriesServerErrors(t *testing.T) {
	fs := newFakeServer(t)
	fs.statusStatus = http.StatusServiceUnavailable
	// Default client carries the retry policy.
	client := New(fs.srv.URL, "secret-token", "en", nil, &recordingLogger{})

	post := testPost(fs)
	post.Image = ""
	if err := client.Publish(context.Background(), post); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if got := fs.statusCalls.Load(); got != 4 {
		t.Fatalf("expected 1 attempt + 3 retries, got %d", got)
	}
}
