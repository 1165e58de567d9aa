// Package openai provides an asr.Backend backed by an OpenAI-compatible
// transcription endpoint (POST /audio/transcriptions).
//
// Besides the OpenAI API itself this works against self-hosted servers that
// mirror the endpoint, such as faster-whisper based servers. The backend
// always requests verbose_json with word and segment timestamp granularities.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/streamscribe/pkg/audio"
	"github.com/MrWong99/streamscribe/pkg/provider/asr"
)

// DefaultModel is the default transcription model.
const DefaultModel = "whisper-1"

// Ensure Backend implements the asr.Backend interface.
var _ asr.Backend = (*Backend)(nil)

// Backend implements asr.Backend using an OpenAI-compatible API.
type Backend struct {
	client oai.Client
	model  string
	opts   asr.Options
}

// config holds optional configuration for the backend.
type config struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
	opts       asr.Options
}

// Option is a functional option for Backend.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets how often a failed request is retried by the client.
// Negative values keep the client default.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithOptions sets the shared recognition options.
func WithOptions(o asr.Options) Option {
	return func(c *config) { c.opts = o }
}

// New constructs a Backend. apiKey may be empty for self-hosted servers that
// do not authenticate, in which case a base URL is required. If model is
// empty, DefaultModel is used.
func New(apiKey, model string, opts ...Option) (*Backend, error) {
	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}
	if apiKey == "" && cfg.baseURL == "" {
		return nil, errors.New("openai asr: apiKey must not be empty when using the default base URL")
	}
	if cfg.opts.Translate {
		return nil, errors.New("openai asr: translate is not supported with word timestamps")
	}
	if model == "" {
		model = DefaultModel
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Backend{client: oai.NewClient(reqOpts...), model: model, opts: cfg.opts}, nil
}

// Model returns the model identifier sent with each request.
func (b *Backend) Model() string { return b.model }

// Separator returns " " because verbose_json words are trimmed.
func (b *Backend) Separator() string { return " " }

// Words returns the words of r.
func (b *Backend) Words(r *asr.Result) []asr.Word { return asr.WordsOf(r) }

// SegmentEnds returns the end timestamp of each segment in r.
func (b *Backend) SegmentEnds(r *asr.Result) []float64 { return asr.SegmentEndsOf(r) }

// Transcribe uploads samples as a WAV file and parses the verbose_json
// response.
func (b *Backend) Transcribe(ctx context.Context, samples []float32, prompt string) (*asr.Result, error) {
	wav := audio.EncodeWAV(samples, asr.SampleRate)

	params := oai.AudioTranscriptionNewParams{
		File:                   oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model:                  oai.AudioModel(b.model),
		ResponseFormat:         oai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word", "segment"},
	}
	if prompt != "" {
		params.Prompt = oai.String(prompt)
	}
	if b.opts.Language != "" {
		params.Language = oai.String(b.opts.Language)
	}

	resp, err := b.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai asr: transcribe: %w", err)
	}
	res, err := asr.ParseVerboseJSON([]byte(resp.RawJSON()))
	if err != nil {
		return nil, fmt.Errorf("openai asr: %w", err)
	}
	return res, nil
}
