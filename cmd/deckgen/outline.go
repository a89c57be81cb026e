package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgallion1/deckgen/internal/config"
	"github.com/dgallion1/deckgen/internal/llm"
	"github.com/dgallion1/deckgen/internal/logging"
	"github.com/dgallion1/deckgen/internal/outline"
	"github.com/dgallion1/deckgen/internal/reference"
	"github.com/spf13/cobra"
)

func outlineCmd() *cobra.Command {
	var numSlides int
	var language string
	var refPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "outline <prompt>",
		Short: "Ask the model for a deck outline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, closeLog, err := setup()
			if err != nil {
				return err
			}
			defer closeLog()

			var refText string
			if refPath != "" {
				if refText, err = loadReference(cfg, refPath); err != nil {
					return err
				}
				log.Info("reference loaded", "file", refPath, "tokens", reference.EstimateTokens(refText))
			}

			model, closeModel, err := llm.NewFromConfig(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeModel()

			req := llm.OutlinePrompt(llm.OutlineRequest{
				Prompt:    args[0],
				NumSlides: numSlides,
				Language:  language,
				Reference: refText,
			})
			raw, err := llm.Collect(model.Stream(cmd.Context(), req))
			if err != nil {
				return fmt.Errorf("outline: %w", err)
			}
			o := outline.Extract(raw)
			if o.NumSlides() == 0 {
				return fmt.Errorf("model returned an empty outline")
			}

			out := cmd.OutOrStdout()
			if asJSON {
				b, err := json.MarshalIndent(o, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(b))
				return nil
			}
			fmt.Fprint(out, o.Markdown())
			return nil
		},
	}
	cmd.Flags().IntVarP(&numSlides, "slides", "n", 0, "number of slides to plan (default: model decides)")
	cmd.Flags().StringVar(&language, "language", "", "output language (default English)")
	cmd.Flags().StringVar(&refPath, "reference", "", "document to use as reference material (txt, md, csv, html, pdf, docx)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outline as JSON instead of Markdown")
	return cmd
}

// setup loads configuration and a text logger on stderr. Only the model
// provider key is required for terminal use.
func setup() (config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, nil, err
	}
	log, closer := logging.New(logging.Options{Level: cfg.LogLevel, Format: "text", File: cfg.LogFile}, os.Stderr)
	return cfg, log, func() { closer.Close() }, nil
}

func loadReference(cfg config.Config, path string) (string, error) {
	ex, err := reference.ForFile(path)
	if err != nil {
		return "", err
	}
	if pdf, ok := ex.(*reference.PDFExtractor); ok {
		pdf.FallbackPdftotext = cfg.PDFFallbackPdftotext
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	doc, err := ex.Extract(f, filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return reference.Budget(doc, cfg.ReferenceTokens), nil
}
