package bluesky

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/newswire-bots/newsrelay/internal/domain"
)

// recordingLogger counts log calls per level.
type recordingLogger struct {
	warns  atomic.Int32
	errors atomic.Int32
}

func (l *recordingLogger) InfoObj(string, string, interface{})  {}
func (l *recordingLogger) DebugObj(string, string, interface{}) {}
func (l *recordingLogger) WarnObj(string, string, interface{})  { l.warns.Add(1) }
func (l *recordingLogger) ErrorObj(string, string, interface{}) { l.errors.Add(1) }

// fakePlatform is an httptest-backed Bluesky endpoint set.
type fakePlatform struct {
	srv *httptest.Server

	sessionToken Token
	refreshCalls atomic.Int32
	recordCalls  atomic.Int32

	imageStatus  int
	blobStatus   int
	recordStatus int

	lastRecordAuth string
	lastRecordBody []byte
}

func newFakePlatform(t *testing.T, accessExp int64) *fakePlatform {
	t.Helper()
	fp := &fakePlatform{
		imageStatus:  http.StatusOK,
		blobStatus:   http.StatusOK,
		recordStatus: http.StatusOK,
	}
	fp.sessionToken = Token{
		Handle:     "news-bot.bsky.social",
		AccessJwt:  forgeAccessJwt(t, accessExp),
		RefreshJwt: "refresh.jwt.value",
	}

	mux := http.NewServeMux()
	mux.HandleFunc(createSessionPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(fp.sessionToken)
	})
	mux.HandleFunc(refreshSessionPath, func(w http.ResponseWriter, r *http.Request) {
		fp.refreshCalls.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer "+fp.sessionToken.RefreshJwt {
			http.Error(w, "bad refresh token", http.StatusUnauthorized)
			return
		}
		fresh := fp.sessionToken
		fresh.AccessJwt = forgeAccessJwt(t, time.Now().Add(time.Hour).Unix())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(fresh)
	})
	mux.HandleFunc(uploadBlobPath, func(w http.ResponseWriter, r *http.Request) {
		if fp.blobStatus != http.StatusOK {
			w.WriteHeader(fp.blobStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(blobResponse{Blob: Blob{
			Type:     "blob",
			Ref:      BlobRef{Link: "bafkrefakeblobref"},
			MimeType: "image/jpeg",
			Size:     3,
		}})
	})
	mux.HandleFunc(createRecordPath, func(w http.ResponseWriter, r *http.Request) {
		fp.recordCalls.Add(1)
		fp.lastRecordAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		fp.lastRecordBody = body
		w.WriteHeader(fp.recordStatus)
	})
	mux.HandleFunc("/img.jpg", func(w http.ResponseWriter, _ *http.Request) {
		if fp.imageStatus != http.StatusOK {
			w.WriteHeader(fp.imageStatus)
			return
		}
		w.Write([]byte{0xff, 0xd8, 0xff})
	})

	fp.srv = httptest.NewServer(mux)
	t.Cleanup(fp.srv.Close)
	return fp
}

func newTestClient(t *testing.T, fp *fakePlatform, log *recordingLogger) *Client {
	t.Helper()
	// Retries are exercised in httpclient tests; keep publisher tests fast.
	client, err := New(context.Background(), fp.srv.URL, "news-bot.bsky.social", "hunter2", resty.New(), log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func completePost(fp *fakePlatform) domain.NewsPost {
	return domain.NewsPost{
		Image:   fp.srv.URL + "/img.jpg",
		Title:   "Headline",
		Summary: "Summary",
		Link:    "https://news.example.com/a",
	}
}

func TestPublishAttachesBlobThumbnail(t *testing.T) {
	fp := newFakePlatform(t, time.Now().Add(time.Hour).Unix())
	log := &recordingLogger{}
	client := newTestClient(t, fp, log)

	if err := client.Publish(context.Background(), completePost(fp)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if got := fp.refreshCalls.Load(); got != 0 {
		t.Fatalf("valid token must not trigger refresh, got %d calls", got)
	}
	if !strings.Contains(string(fp.lastRecordBody), "bafkrefakeblobref") {
		t.Fatalf("expected record to embed the uploaded blob, got %s", fp.lastRecordBody)
	}
	if fp.lastRecordAuth != "Bearer "+fp.sessionToken.AccessJwt {
		t.Fatalf("unexpected authorization header %q", fp.lastRecordAuth)
	}
	if got := log.warns.Load(); got != 0 {
		t.Fatalf("expected no warnings, got %d", got)
	}
}

func TestPublishImageFailureStillPostsText(t *testing.T) {
	fp := newFakePlatform(t, time.Now().Add(time.Hour).Unix())
	fp.imageStatus = http.StatusNotFound
	log := &recordingLogger{}
	client := newTestClient(t, fp, log)

	if err := client.Publish(context.Background(), completePost(fp)); err != nil {
		t.Fatalf("Publish must succeed without the image: %v", err)
	}

	if got := fp.recordCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one record creation, got %d", got)
	}
	if strings.Contains(string(fp.lastRecordBody), "thumb") {
		t.Fatalf("expected record without thumbnail, got %s", fp.lastRecordBody)
	}
	if got := log.warns.Load(); got != 1 {
		t.Fatalf("expected exactly one warning for the failed upload, got %d", got)
	}
}

func TestPublishRefreshesExpiredToken(t *testing.T) {
	fp := newFakePlatform(t, time.Now().Add(-time.Second).Unix())
	client := newTestClient(t, fp, &recordingLogger{})

	post := completePost(fp)
	post.Image = ""
	if err := client.Publish(context.Background(), post); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if got := fp.refreshCalls.Load(); got != 1 {
		t.Fatalf("expected one refresh for an expired token, got %d", got)
	}
	if fp.lastRecordAuth == "Bearer "+fp.sessionToken.AccessJwt {
		t.Fatal("record must be authorized with the refreshed token, not the expired one")
	}
}

func TestPublishFailsWhenRefreshFails(t *testing.T) {
	fp := newFakePlatform(t, time.Now().Add(-time.Second).Unix())
	fp.sessionToken.RefreshJwt = "" // server rejects the refresh
	client := newTestClient(t, fp, &recordingLogger{})
	fp.sessionToken.RefreshJwt = "rotated-away"

	post := completePost(fp)
	post.Image = ""
	if err := client.Publish(context.Background(), post); err == nil {
		t.Fatal("expected publish to fail when the token cannot be refreshed")
	}
	if got := fp.recordCalls.Load(); got != 0 {
		t.Fatalf("no record may be created with a known-expired token, got %d calls", got)
	}
}

func TestPublishSurfacesRecordRejection(t *testing.T) {
	fp := newFakePlatform(t, time.Now().Add(time.Hour).Unix())
	fp.recordStatus = http.StatusBadRequest
	client := newTestClient(t, fp, &recordingLogger{})

	post := completePost(fp)
	post.Image = ""
	if err := client.Publish(context.Background(), post); err == nil {
		t.Fatal("expected error for rejected record")
	}
}
