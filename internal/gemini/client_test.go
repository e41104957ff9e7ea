package gemini

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func chunkJSON(text string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, text)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient("test-key", "test-model")
	c.BaseURL = server.URL
	return c
}

func TestStreamGenerateYieldsChunksInOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "test-model:streamGenerateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, text := range []string{"The ", "target ", "is round."} {
			fmt.Fprintf(w, "data: %s\n\n", chunkJSON(text))
		}
	})

	stream, err := c.StreamGenerate(context.Background(), GenerateRequest{
		SystemInstruction: "be brief",
		Contents:          []Content{{Role: "user", Parts: []Part{{Text: "hi"}}}},
	})
	if err != nil {
		t.Fatalf("StreamGenerate: %v", err)
	}
	defer stream.Close()

	var got []string
	for {
		text, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		got = append(got, text)
	}

	want := []string{"The ", "target ", "is round."}
	if len(got) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
	if stream.Text() != "The target is round." {
		t.Errorf("Text() = %q", stream.Text())
	}
}

func TestGenerateTextReturnsCandidate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chunkJSON("a summary"))
	})

	got, err := c.GenerateText(context.Background(), GenerateRequest{})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got != "a summary" {
		t.Errorf("text = %q", got)
	}
}

func TestGenerateTextErrorsOnEmptyCandidates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[]}`)
	})

	if _, err := c.GenerateText(context.Background(), GenerateRequest{}); err == nil {
		t.Fatal("expected an error for empty candidates")
	}
}

func TestGenerateTextSurfacesAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := c.GenerateText(context.Background(), GenerateRequest{})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err = %v, want status in message", err)
	}
}

func TestEmbedTextReturnsVector(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "text-embedding-004:embedContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"embedding":{"values":[0.1,0.2,0.3]}}`)
	})

	got, err := c.EmbedText(context.Background(), "red doorway")
	if err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	if len(got) != 3 || got[0] != 0.1 {
		t.Errorf("vector = %v", got)
	}
}

func TestUploadAndDeleteFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST":
			if r.Header.Get("X-Goog-Upload-Protocol") != "raw" {
				t.Error("missing raw upload header")
			}
			fmt.Fprint(w, `{"file":{"name":"files/abc","uri":"https://files.example/abc"}}`)
		case r.Method == "DELETE":
			if !strings.Contains(r.URL.Path, "files/abc") {
				t.Errorf("delete path %s", r.URL.Path)
			}
			w.WriteHeader(http.StatusNoContent)
		}
	})

	staged, err := c.UploadFile(context.Background(), []byte("jpeg"), "image/jpeg")
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if staged.Name != "files/abc" || staged.URI != "https://files.example/abc" {
		t.Errorf("staged = %+v", staged)
	}

	if err := c.DeleteFile(context.Background(), staged.Name); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
}

func TestGenerateImageDecodesPrediction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "imagen-3.0-generate-002:predict") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		// "aW1n" is base64 for "img".
		fmt.Fprint(w, `{"predictions":[{"bytesBase64Encoded":"aW1n"}]}`)
	})

	got, err := c.GenerateImage(context.Background(), "a rocky coastline")
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if string(got) != "img" {
		t.Errorf("bytes = %q", got)
	}
}
