// Package whisper provides whisper.cpp-backed transcription backends.
//
// Server talks to a running whisper-server binary (which exposes a REST API
// at POST /inference) and requests verbose_json output so every call returns
// segment and word timestamps. Native links whisper.cpp directly through its
// CGO bindings and loads the model in-process.
//
// Both backends are batch engines: the stream package calls Transcribe over a
// growing audio window and infers finality from agreement between passes.
//
// Usage:
//
//	b, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	)
//	res, err := b.Transcribe(ctx, samples, prompt)
//	words := b.Words(res)
package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/streamscribe/pkg/audio"
	"github.com/MrWong99/streamscribe/pkg/provider/asr"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	// maxErrorBody bounds how much of an error response is quoted back.
	maxErrorBody = 512
)

// Compile-time assertion that Server implements asr.Backend.
var _ asr.Backend = (*Server)(nil)

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with, which is the default.
func WithModel(model string) Option {
	return func(s *Server) { s.model = model }
}

// WithLanguage sets the language code sent to the whisper.cpp server (e.g.,
// "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(s *Server) { s.opts.Language = lang }
}

// WithTranslate asks the server to translate into English.
func WithTranslate(translate bool) Option {
	return func(s *Server) { s.opts.Translate = translate }
}

// WithServerOptions replaces all recognition options at once.
func WithServerOptions(o asr.Options) Option {
	return func(s *Server) { s.opts = o }
}

// WithHTTPClient overrides the HTTP client. Defaults to a client with a
// 30 second timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.httpClient = c }
}

// Server implements asr.Backend backed by a whisper.cpp HTTP server. It holds
// no per-call state and is safe for concurrent use.
type Server struct {
	serverURL  string
	model      string
	opts       asr.Options
	httpClient *http.Client
}

// New creates a Server that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Server, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	s := &Server{
		serverURL:  serverURL,
		opts:       asr.Options{Language: defaultLanguage},
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Separator returns " " because verbose_json words are trimmed.
func (s *Server) Separator() string { return " " }

// Words returns the words of r.
func (s *Server) Words(r *asr.Result) []asr.Word { return asr.WordsOf(r) }

// SegmentEnds returns the end timestamp of each segment in r.
func (s *Server) SegmentEnds(r *asr.Result) []float64 { return asr.SegmentEndsOf(r) }

// Transcribe encodes samples as a WAV file and POSTs it to the /inference
// endpoint as multipart/form-data.
func (s *Server) Transcribe(ctx context.Context, samples []float32, prompt string) (*asr.Result, error) {
	wav := audio.EncodeWAV(samples, asr.SampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
		"language":        s.opts.Language,
		"model":           s.model,
		"prompt":          prompt,
	}
	if s.opts.Translate {
		fields["translate"] = "true"
	}
	if s.opts.BeamSize > 0 {
		fields["beam_size"] = strconv.Itoa(s.opts.BeamSize)
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	res, err := asr.ParseVerboseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	return res, nil
}
