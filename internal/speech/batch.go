package speech

import (
	"context"
	"os"
	"path/filepath"
)

// BatchOptions selects the voice and rate combinations for a batch run.
type BatchOptions struct {
	Voices []string
	Rates  []float64
	Locale string
	OutDir string
}

// BatchResult summarizes one batch run.
type BatchResult struct {
	Succeeded int
	Failed    int
}

// RunBatch synthesizes every utterance for every voice and rate combination
// and writes the WAV files under OutDir. Individual failures are logged and
// counted; the run continues.
func (s *Synthesizer) RunBatch(ctx context.Context, utterances []Utterance, opts BatchOptions) (BatchResult, error) {
	var result BatchResult
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return result, err
	}
	for _, utt := range utterances {
		for _, voice := range opts.Voices {
			for _, rate := range opts.Rates {
				path := filepath.Join(opts.OutDir, OutputFilename(utt.Line, voice, rate))
				logger := s.logger.With("line", utt.Line, "voice", voice, "rate", rate)

				wav, err := s.Synthesize(ctx, SSML(utt.Text, voice, rate, opts.Locale))
				if err != nil {
					logger.Error("synthesis failed", "error", err)
					result.Failed++
					continue
				}
				if err := os.WriteFile(path, wav, 0o644); err != nil {
					logger.Error("write failed", "error", err)
					result.Failed++
					continue
				}
				logger.Info("saved", "path", path)
				result.Succeeded++
			}
		}
	}
	return result, nil
}
