package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dgallion1/deckgen/internal/imagesearch"
	"github.com/dgallion1/deckgen/internal/llm"
	"github.com/dgallion1/deckgen/internal/outline"
	"github.com/dgallion1/deckgen/internal/pipeline"
	"github.com/dgallion1/deckgen/internal/store"
	"github.com/dgallion1/deckgen/internal/stream"
	"github.com/spf13/cobra"
)

func generateCmd() *cobra.Command {
	var title string
	var topics []string
	var outlinePath string
	var language, tone, theme string
	var save bool
	var progress bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Stream a deck from an outline",
		Long: "Stream slide markup from the model for an outline and print the\n" +
			"finished slides as JSON. The outline comes from repeated --topic flags\n" +
			"or a Markdown file as produced by `deckgen outline`. Interrupting the\n" +
			"stream keeps the slides emitted so far.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outlinePath != "" {
				b, err := os.ReadFile(outlinePath)
				if err != nil {
					return err
				}
				o := outline.Extract(string(b))
				if title == "" {
					title = o.Title
				}
				topics = append(topics, o.Titles()...)
			}
			var clean []string
			for _, t := range topics {
				if t = strings.TrimSpace(t); t != "" {
					clean = append(clean, t)
				}
			}
			if strings.TrimSpace(title) == "" || len(clean) == 0 {
				return fmt.Errorf("a title and at least one topic are required")
			}

			cfg, log, closeLog, err := setup()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			model, closeModel, err := llm.NewFromConfig(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeModel()

			var images stream.Resolver
			if cfg.UnsplashAccessKey != "" {
				search := imagesearch.NewClient(cfg.UnsplashBaseURL, cfg.UnsplashAccessKey)
				defer search.Close()
				images = search
			}

			var st *store.Store
			if save {
				if st, err = store.Open(ctx, cfg.DBDriver, cfg.DBDSN, log); err != nil {
					return err
				}
				defer st.Close()
			}

			sess := pipeline.NewSession(title, clean, language, tone, theme)
			events, unsubscribe := sess.Subscribe()
			defer unsubscribe()

			w := pipeline.NewWorker(model, images, st, log, cfg.MaxConcurrentImages, cfg.ImageTimeout)
			done := make(chan struct{})
			go func() {
				defer close(done)
				w.Process(ctx, sess)
			}()

			for ev := range events {
				if progress {
					reportProgress(cmd, ev)
				}
			}
			<-done

			snap := sess.Snapshot()
			if snap.Status == pipeline.StatusFailed {
				return fmt.Errorf("generation failed: %s", snap.Error)
			}
			if save {
				log.Info("presentation saved", "presentation_id", snap.PresentationID)
			}
			b, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			if snap.Status == pipeline.StatusCancelled {
				return context.Canceled
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "presentation title")
	cmd.Flags().StringArrayVar(&topics, "topic", nil, "outline topic, repeat once per slide")
	cmd.Flags().StringVar(&outlinePath, "outline", "", "Markdown outline file")
	cmd.Flags().StringVar(&language, "language", "", "output language (default English)")
	cmd.Flags().StringVar(&tone, "tone", "", "writing tone (default professional)")
	cmd.Flags().StringVar(&theme, "theme", "", "theme name stored with the presentation")
	cmd.Flags().BoolVar(&save, "save", false, "persist the presentation to the configured store")
	cmd.Flags().BoolVar(&progress, "progress", true, "report slide updates on stderr")
	return cmd
}

func reportProgress(cmd *cobra.Command, ev pipeline.Event) {
	errOut := cmd.ErrOrStderr()
	switch ev.Type {
	case pipeline.EventUpdate:
		for _, s := range ev.Update.Changed {
			mark := ""
			if s.Provisional {
				mark = " (streaming)"
			}
			fmt.Fprintf(errOut, "[%d] %s %s%s\n", ev.Update.Seq, s.ID, s.Layout, mark)
		}
		for _, id := range ev.Update.Removed {
			fmt.Fprintf(errOut, "[%d] %s removed\n", ev.Update.Seq, id)
		}
	case pipeline.EventImage:
		fmt.Fprintf(errOut, "image %s: %s\n", ev.Image.SlideID, ev.Image.URL)
	}
}
