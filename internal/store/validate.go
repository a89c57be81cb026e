package store

import (
	"fmt"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"github.com/dgallion1/deckgen/internal/deck"
)

var slidesSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(deck.SlidesSchema))
})

// ValidationError lists schema violations of a slide document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid slides: %s", strings.Join(e.Problems, "; "))
}

func validateJSON(data []byte) error {
	schema, err := slidesSchema()
	if err != nil {
		return fmt.Errorf("load slides schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate slides: %w", err)
	}
	if result.Valid() {
		return nil
	}
	ve := &ValidationError{}
	for _, e := range result.Errors() {
		ve.Problems = append(ve.Problems, e.String())
	}
	return ve
}
