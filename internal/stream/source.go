package stream

import (
	"iter"
	"unicode/utf8"
)

// FromChunks replays fixed chunks as a stream.
func FromChunks(chunks ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

// Split cuts text into chunks of at most size bytes without splitting a
// UTF-8 sequence. Tags and attributes may still be cut anywhere.
func Split(text string, size int) []string {
	if size <= 0 || len(text) <= size {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	var out []string
	for len(text) > 0 {
		n := min(size, len(text))
		for n < len(text) && n > 0 && !utf8.RuneStart(text[n]) {
			n--
		}
		if n == 0 {
			_, n = utf8.DecodeRuneInString(text)
		}
		out = append(out, text[:n])
		text = text[n:]
	}
	return out
}

type item struct {
	chunk string
	err   error
}

// pump reads src on its own goroutine. Closing stop releases the producer at
// its next yield; a source stalled inside upstream I/O exits when that returns.
func pump(src iter.Seq2[string, error], stop <-chan struct{}) <-chan item {
	ch := make(chan item)
	go func() {
		defer close(ch)
		for c, err := range src {
			select {
			case ch <- item{chunk: c, err: err}:
			case <-stop:
				return
			}
		}
	}()
	return ch
}
