// Package speech wraps the Azure Speech REST API for offline batch
// text-to-speech synthesis.
package speech

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const outputFormat = "riff-24khz-16bit-mono-pcm"

// Config holds credentials and transport for the synthesizer.
type Config struct {
	// Key is the Speech service subscription key (Ocp-Apim-Subscription-Key).
	Key string

	// Endpoint is the service base URL, e.g.
	// "https://westeurope.api.cognitive.microsoft.com".
	Endpoint string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Synthesizer renders SSML to WAV audio through the REST endpoint.
type Synthesizer struct {
	key    string
	url    string
	client *http.Client
	logger *slog.Logger
}

func New(cfg Config) (*Synthesizer, error) {
	if cfg.Key == "" {
		return nil, errors.New("speech: subscription key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("speech: endpoint is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		key:    cfg.Key,
		url:    strings.TrimRight(cfg.Endpoint, "/") + "/cognitiveservices/v1",
		client: client,
		logger: logger,
	}, nil
}

// SSML builds the synthesis request body: the text wrapped in the selected
// voice, a cross-locale lang element, and a prosody rate.
func SSML(text, voice string, rate float64, locale string) string {
	var escaped bytes.Buffer
	xml.EscapeText(&escaped, []byte(text))
	return fmt.Sprintf(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="en-US">
  <voice name="%s">
    <lang xml:lang="%s">
      <prosody rate="%g">%s</prosody>
    </lang>
  </voice>
</speak>`, voice, locale, rate, escaped.String())
}

// Synthesize renders one SSML document and returns the WAV bytes.
func (s *Synthesizer) Synthesize(ctx context.Context, ssml string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(ssml))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", s.key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", outputFormat)
	req.Header.Set("User-Agent", "voicelive-synthesize")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("speech synthesis failed: %s: %s",
			resp.Status, strings.TrimSpace(string(body)))
	}
	return io.ReadAll(resp.Body)
}

// Utterance is one line of input text to synthesize.
type Utterance struct {
	Line int
	Text string
}

// ReadUtterances parses the input file format: one utterance per line,
// blank lines and '#' comments skipped. Line numbers are 1-based and refer
// to the original file.
func ReadUtterances(r io.Reader) ([]Utterance, error) {
	var out []Utterance
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		out = append(out, Utterance{Line: line, Text: text})
	}
	return out, scanner.Err()
}

// SanitizeFilename replaces characters that are unsafe in filenames. Azure
// voice names routinely contain colons.
func SanitizeFilename(name string) string {
	return strings.NewReplacer(":", "_", "/", "_", `\`, "_").Replace(name)
}

// OutputFilename names one synthesized file after its source line, voice,
// and rate.
func OutputFilename(line int, voice string, rate float64) string {
	rateStr := strings.ReplaceAll(fmt.Sprintf("%g", rate), ".", "_")
	return fmt.Sprintf("line%d_%s_rate%s.wav", line, SanitizeFilename(voice), rateStr)
}
