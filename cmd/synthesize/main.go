// Package main implements an offline batch text-to-speech tool built on the
// Azure Speech REST API. It reads a text file with one utterance per line
// and renders a WAV file for every voice and rate combination.
//
// Usage:
//
//	synthesize utterances.txt --voices en-US-AvaNeural --rates 1.0,1.3 --out tts-out
//
// Required environment:
//
//   - SPEECH_KEY: Speech service subscription key
//   - SPEECH_ENDPOINT: service endpoint, e.g. https://westeurope.api.cognitive.microsoft.com
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/michalmar/azure-ai-voicelive/internal/speech"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := buildCmd(logger).Execute(); err != nil {
		logger.Error("synthesis failed", "error", err)
		os.Exit(1)
	}
}

func buildCmd(logger *slog.Logger) *cobra.Command {
	var (
		voices []string
		rates  []float64
		locale string
		outDir string
	)
	cmd := &cobra.Command{
		Use:          "synthesize <input_file>",
		Short:        "Batch text-to-speech via the Azure Speech service",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			syn, err := speech.New(speech.Config{
				Key:      os.Getenv("SPEECH_KEY"),
				Endpoint: os.Getenv("SPEECH_ENDPOINT"),
				Logger:   logger,
			})
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			utterances, err := speech.ReadUtterances(f)
			if err != nil {
				return err
			}
			if len(utterances) == 0 {
				logger.Info("no utterances found", "file", args[0])
				return nil
			}
			logger.Info("starting batch",
				"utterances", len(utterances),
				"voices", len(voices),
				"rates", len(rates),
				"total", len(utterances)*len(voices)*len(rates))

			result, err := syn.RunBatch(cmd.Context(), utterances, speech.BatchOptions{
				Voices: voices,
				Rates:  rates,
				Locale: locale,
				OutDir: outDir,
			})
			if err != nil {
				return err
			}
			logger.Info("batch complete",
				"succeeded", result.Succeeded,
				"failed", result.Failed,
				"out", outDir)
			if result.Succeeded == 0 && result.Failed > 0 {
				return errors.New("all utterances failed to synthesize")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synthesized %d file(s), %d failed\n",
				result.Succeeded, result.Failed)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&voices, "voices",
		[]string{"en-US-Ava:DragonHDOmniLatestNeural"}, "Voice models to synthesize with")
	cmd.Flags().Float64SliceVar(&rates, "rates", []float64{1.0}, "Speech rates")
	cmd.Flags().StringVar(&locale, "locale", "en-US", "Locale for the lang element")
	cmd.Flags().StringVar(&outDir, "out", "tts-out", "Output directory")
	return cmd
}
