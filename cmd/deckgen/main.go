// Command deckgen drives the slide pipeline from the terminal: parse saved
// markup, draft an outline, or stream a full deck from the model.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "deckgen",
		Short:         "Generate and inspect slide decks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(parseCmd(), outlineCmd(), generateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
