package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoCodeAlone/kiejob/failure"
	"github.com/GoCodeAlone/kiejob/transport"
)

func newClient(url string) *Client {
	return New(transport.New(transport.Config{}), Config{URL: url})
}

func TestUploadImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if got := r.FormValue("uploadPath"); got != DefaultPath {
			t.Errorf("uploadPath = %q", got)
		}
		if _, ok := r.MultipartForm.Value["fileName"]; ok {
			t.Error("image uploads must not send fileName")
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "image.png" || string(data) != "png-bytes" {
			t.Errorf("file = %q %q", hdr.Filename, data)
		}
		fmt.Fprint(w, `{"success":true,"code":200,"data":{"downloadUrl":"https://files.example/image.png"}}`)
	}))
	defer srv.Close()

	url, err := newClient(srv.URL).Upload(context.Background(), "key-1",
		File{Name: "image.png", ContentType: "image/png", Data: []byte("png-bytes")})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "https://files.example/image.png" {
		t.Errorf("url = %q", url)
	}
}

func TestUploadVideoSendsFileName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if got := r.FormValue("fileName"); got != "clip.mp4" {
			t.Errorf("fileName = %q, want clip.mp4", got)
		}
		fmt.Fprint(w, `{"success":true,"code":200,"data":{"downloadUrl":"https://files.example/clip.mp4"}}`)
	}))
	defer srv.Close()

	if _, err := newClient(srv.URL).Upload(context.Background(), "k",
		File{Name: "clip.mp4", ContentType: "video/mp4", Data: []byte("mp4")}); err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
		wantMsg   string
	}{
		{"throttled", http.StatusTooManyRequests, "slow down", true, "HTTP 429"},
		{"server error", http.StatusBadGateway, "bad gateway", true, "HTTP 502"},
		{"not json", http.StatusOK, "<html>", false, "did not return valid JSON"},
		{"not successful", http.StatusOK, `{"success":false,"code":200,"msg":"quota"}`, false, "Upload failed (code=200): quota"},
		{"bad code", http.StatusOK, `{"success":true,"code":401,"msg":"unauthorized"}`, false, "code=401"},
		{"missing url", http.StatusOK, `{"success":true,"code":200,"data":{}}`, false, "missing downloadUrl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := newClient(srv.URL).Upload(context.Background(), "k",
				File{Name: "a.png", ContentType: "image/png", Data: []byte("x")})
			if err == nil {
				t.Fatal("expected error")
			}
			if failure.IsTransient(err) != tt.transient {
				t.Errorf("transient = %v, want %v (%v)", failure.IsTransient(err), tt.transient, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestUploadAllPreservesOrder(t *testing.T) {
	var inflight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		_, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		// Later files answer first.
		if hdr.Filename == "0.png" {
			time.Sleep(20 * time.Millisecond)
		}
		fmt.Fprintf(w, `{"success":true,"code":200,"data":{"downloadUrl":"https://files.example/%s"}}`, hdr.Filename)
	}))
	defer srv.Close()

	c := New(transport.New(transport.Config{}), Config{URL: srv.URL, Workers: 2})
	var files []File
	for i := 0; i < 5; i++ {
		files = append(files, File{Name: fmt.Sprintf("%d.png", i), ContentType: "image/png", Data: []byte("x")})
	}
	urls, err := c.UploadAll(context.Background(), "k", files)
	if err != nil {
		t.Fatalf("UploadAll: %v", err)
	}
	for i, u := range urls {
		if want := fmt.Sprintf("https://files.example/%d.png", i); u != want {
			t.Errorf("urls[%d] = %q, want %q", i, u, want)
		}
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestUploadAllFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"success":false,"code":400,"msg":"bad file"}`)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).UploadAll(context.Background(), "k",
		[]File{{Name: "a.png", ContentType: "image/png"}, {Name: "b.png", ContentType: "image/png"}})
	if err == nil || !strings.Contains(err.Error(), "bad file") {
		t.Fatalf("expected upload failure, got %v", err)
	}
}
