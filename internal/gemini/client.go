package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client talks to the Gemini REST API: streaming and blocking content
// generation, text embeddings, temporary file staging, and image synthesis.
type Client struct {
	APIKey  string
	BaseURL string
	Model   string
	client  *http.Client
}

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"

	embeddingModel = "text-embedding-004"
	imagenModel    = "imagen-3.0-generate-002"
)

func NewClient(apiKey, model string) *Client {
	return &Client{
		APIKey:  apiKey,
		BaseURL: defaultBaseURL,
		Model:   model,
		client:  &http.Client{},
	}
}

// Part is one piece of a content turn: text, inline bytes, or a reference to
// a staged file.
type Part struct {
	Text       string    `json:"text,omitempty"`
	InlineData *Blob     `json:"inline_data,omitempty"`
	FileData   *FileData `json:"file_data,omitempty"`
}

// Blob carries inline base64 data.
type Blob struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// FileData references a file previously staged with UploadFile.
type FileData struct {
	MIMEType string `json:"mime_type,omitempty"`
	FileURI  string `json:"file_uri"`
}

// Content is one conversation turn. Role is "user" or "model".
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerateRequest is the payload for generateContent and its streaming
// variant.
type GenerateRequest struct {
	SystemInstruction string
	Contents          []Content
}

type generateBody struct {
	SystemInstruction *Content  `json:"system_instruction,omitempty"`
	Contents          []Content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

func (r GenerateRequest) body() generateBody {
	body := generateBody{Contents: r.Contents}
	if r.SystemInstruction != "" {
		body.SystemInstruction = &Content{Parts: []Part{{Text: r.SystemInstruction}}}
	}
	return body
}

// Stream yields text chunks from a streaming generation in arrival order.
type Stream struct {
	scanner *sseScanner
	body    io.Closer
	full    bytes.Buffer
}

// Recv returns the next text chunk. io.EOF signals a clean end of stream.
func (s *Stream) Recv() (string, error) {
	for s.scanner.Next() {
		var resp generateResponse
		if err := json.Unmarshal([]byte(s.scanner.Event().Data), &resp); err != nil {
			return "", fmt.Errorf("failed to decode stream chunk: %w", err)
		}
		if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
			continue
		}
		text := resp.Candidates[0].Content.Parts[0].Text
		s.full.WriteString(text)
		return text, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read failed: %w", err)
	}
	return "", io.EOF
}

// Text returns everything received so far, concatenated in arrival order.
func (s *Stream) Text() string {
	return s.full.String()
}

// Close releases the underlying response body. Always call it, even after an
// error or early exit.
func (s *Stream) Close() error {
	return s.body.Close()
}

// StreamGenerate opens a streaming generation call. The caller must Close
// the returned stream.
func (c *Client) StreamGenerate(ctx context.Context, req GenerateRequest) (*Stream, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse&key=%s", c.BaseURL, c.Model, c.APIKey)

	resp, err := c.post(ctx, url, req.body())
	if err != nil {
		return nil, err
	}

	return &Stream{
		scanner: newSSEScanner(resp.Body),
		body:    resp.Body,
	}, nil
}

// GenerateText runs a blocking generation and returns the full text.
func (c *Client) GenerateText(ctx context.Context, req GenerateRequest) (string, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.BaseURL, c.Model, c.APIKey)

	resp, err := c.post(ctx, url, req.body())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no candidates returned")
	}
	return genResp.Candidates[0].Content.Parts[0].Text, nil
}

type embedBody struct {
	Content Content `json:"content"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// EmbedText returns the embedding vector for one text.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:embedContent?key=%s", c.BaseURL, embeddingModel, c.APIKey)

	resp, err := c.post(ctx, url, embedBody{Content: Content{Parts: []Part{{Text: text}}}})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var embResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(embResp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embResp.Embedding.Values, nil
}

type fileResponse struct {
	File struct {
		Name string `json:"name"`
		URI  string `json:"uri"`
	} `json:"file"`
}

// StagedFile identifies a temporary artifact in the file-staging area.
type StagedFile struct {
	Name string
	URI  string
}

// UploadFile stages raw bytes for use in a generation request. The artifact
// is temporary; delete it after the generation finishes.
func (c *Client) UploadFile(ctx context.Context, data []byte, mimeType string) (*StagedFile, error) {
	url := fmt.Sprintf("%s/upload/v1beta/files?key=%s", c.BaseURL, c.APIKey)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mimeType)
	httpReq.Header.Set("X-Goog-Upload-Protocol", "raw")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("file upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	var fileResp fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&fileResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &StagedFile{Name: fileResp.File.Name, URI: fileResp.File.URI}, nil
}

// DeleteFile removes a staged artifact.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	url := fmt.Sprintf("%s/v1beta/%s?key=%s", c.BaseURL, name, c.APIKey)

	httpReq, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("file delete failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

type predictBody struct {
	Instances []struct {
		Prompt string `json:"prompt"`
	} `json:"instances"`
	Parameters struct {
		SampleCount int    `json:"sampleCount"`
		AspectRatio string `json:"aspectRatio"`
	} `json:"parameters"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
	} `json:"predictions"`
}

// GenerateImage synthesizes one square image from a prompt and returns the
// raw bytes.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:predict?key=%s", c.BaseURL, imagenModel, c.APIKey)

	var body predictBody
	body.Instances = append(body.Instances, struct {
		Prompt string `json:"prompt"`
	}{Prompt: prompt})
	body.Parameters.SampleCount = 1
	body.Parameters.AspectRatio = "1:1"

	resp, err := c.post(ctx, url, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var predResp predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&predResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(predResp.Predictions) == 0 {
		return nil, fmt.Errorf("no image returned")
	}
	return base64.StdEncoding.DecodeString(predResp.Predictions[0].BytesBase64Encoded)
}

// post sends a JSON request and returns the response with the body still
// open if the status is 200. Non-200 responses are drained and closed.
func (c *Client) post(ctx context.Context, url string, payload any) (*http.Response, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}
