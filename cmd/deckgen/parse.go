package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dgallion1/deckgen/internal/layout"
	"github.com/dgallion1/deckgen/internal/stream"
	"github.com/spf13/cobra"
)

func parseCmd() *cobra.Command {
	var chunk int
	var partial bool
	var showViolations bool

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse slide markup into the document model",
		Long: "Parse slide markup from a file or stdin and print the slides as JSON.\n" +
			"With --chunk the text is replayed through the streaming driver in\n" +
			"pieces of that size and every update is printed as a JSON line.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if chunk > 0 {
				enc := json.NewEncoder(out)
				d := stream.New(stream.Options{OnUpdate: func(u stream.Update) { _ = enc.Encode(u) }})
				res := d.Run(cmd.Context(), stream.FromChunks(stream.Split(text, chunk)...))
				if res.Err != nil {
					return res.Err
				}
				return nil
			}

			pass := layout.Run(text, !partial)
			if showViolations {
				for id, vs := range pass.Violations {
					for _, v := range vs {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", id, v)
					}
				}
			}
			b, err := json.MarshalIndent(pass.Slides, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			return nil
		},
	}
	cmd.Flags().IntVar(&chunk, "chunk", 0, "replay the input through the streaming driver in chunks of N bytes")
	cmd.Flags().BoolVar(&partial, "partial", false, "treat the input as a stream that is still open")
	cmd.Flags().BoolVar(&showViolations, "violations", false, "print markup violations to stderr")
	return cmd
}

// readInput reads the named file, or stdin when no file or "-" is given.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(b), nil
}
