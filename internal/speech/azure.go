package speech

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/hammamikhairi/turnocall/internal/logger"
)

// AzureOption configures the Azure TTS client.
type AzureOption func(*AzureClient)

// WithAzureVoice sets the voice used when an utterance carries none.
func WithAzureVoice(voice string) AzureOption {
	return func(c *AzureClient) {
		c.voice = voice
	}
}

// WithAudioFormat sets the audio output format.
func WithAudioFormat(format string) AzureOption {
	return func(c *AzureClient) {
		c.format = format
	}
}

// WithHTTPTimeout sets the HTTP client timeout for TTS requests.
func WithHTTPTimeout(d time.Duration) AzureOption {
	return func(c *AzureClient) {
		c.httpClient.Timeout = d
	}
}

// WithBaseURL overrides the regional endpoint, mainly for tests.
func WithBaseURL(url string) AzureOption {
	return func(c *AzureClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// AzureClient handles text-to-speech synthesis via Azure Cognitive Services.
type AzureClient struct {
	subscriptionKey string
	baseURL         string
	voice           string
	format          string
	httpClient      *http.Client
	log             *logger.Logger
}

// SynthesisRequest is one synthesis call.
type SynthesisRequest struct {
	Text   string
	Lang   string
	Voice  string
	Volume float64
	Rate   float64
	Pitch  float64
}

// Voice returns the configured fallback voice name.
func (c *AzureClient) Voice() string { return c.voice }

// NewAzureClient creates an Azure TTS client with the given credentials.
func NewAzureClient(key, region string, log *logger.Logger, opts ...AzureOption) *AzureClient {
	c := &AzureClient{
		subscriptionKey: key,
		baseURL:         fmt.Sprintf("https://%s.tts.speech.microsoft.com", region),
		voice:           DefaultVoice,
		format:          DefaultAudioFormat,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Synthesize converts text to speech audio data (WAV bytes).
func (c *AzureClient) Synthesize(ctx context.Context, r SynthesisRequest) ([]byte, error) {
	if r.Voice == "" {
		r.Voice = c.voice
	}
	if r.Lang == "" {
		r.Lang = DefaultLanguage
	}
	ssml := buildSSML(r)
	c.log.Debug("azure tts: synthesizing %d chars with voice %s", len(r.Text), r.Voice)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cognitiveservices/v1", strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", c.format)
	req.Header.Set("User-Agent", "turnocall/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("azure tts error %d: %s", resp.StatusCode, string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio data: %w", err)
	}

	c.log.Debug("azure tts: got %d bytes of audio", len(audioData))
	return audioData, nil
}

type azureVoice struct {
	ShortName string `json:"ShortName"`
	Locale    string `json:"Locale"`
	Gender    string `json:"Gender"`
}

// ListVoices fetches the voices available in the region.
func (c *AzureClient) ListVoices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cognitiveservices/voices/list", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voices request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("azure voices error %d: %s", resp.StatusCode, string(body))
	}

	var raw []azureVoice
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding voices: %w", err)
	}

	voices := make([]Voice, 0, len(raw))
	for _, v := range raw {
		voices = append(voices, Voice{
			Name:    v.ShortName,
			Lang:    v.Locale,
			Gender:  Gender(strings.ToLower(v.Gender)),
			Default: v.ShortName == c.voice,
		})
	}
	c.log.Debug("azure tts: %d voices listed", len(voices))
	return voices, nil
}

// buildSSML creates SSML markup for the synthesis request. Text is
// escaped; prosody is expressed relative to the voice's defaults.
func buildSSML(r SynthesisRequest) string {
	var text strings.Builder
	_ = xml.EscapeText(&text, []byte(r.Text))
	return fmt.Sprintf(
		`<speak version='1.0' xml:lang='%s'><voice xml:lang='%s' name='%s'><prosody volume='%s' rate='%s' pitch='%s'>%s</prosody></voice></speak>`,
		r.Lang, r.Lang, r.Voice,
		relative(r.Volume, 1), relative(r.Rate, 1), relative(r.Pitch, 1),
		text.String(),
	)
}

// relative renders v as a signed percentage change from base
// (0.9 -> "-10%"). Zero means "use default".
func relative(v, base float64) string {
	if v == 0 {
		return "+0%"
	}
	pct := int(math.Round((v/base - 1) * 100))
	if pct >= 0 {
		return fmt.Sprintf("+%d%%", pct)
	}
	return fmt.Sprintf("%d%%", pct)
}
