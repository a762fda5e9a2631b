// Package tokencount provides token counting for generated content.
//
// It uses tiktoken-go, a Go port of OpenAI's official tiktoken library.
// All counting runs against the cl100k_base encoding, which covers the
// GPT-3.5 and GPT-4 families used by the workers.
package tokencount

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

// Counter provides thread-safe token counting. The encoding is loaded
// lazily on first use and cached for the process lifetime.
type Counter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) encoding() (*tiktoken.Tiktoken, error) {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.GetEncoding(encodingName)
	})
	return c.enc, c.err
}

// CountTokens counts the number of BPE tokens in text.
func (c *Counter) CountTokens(text string) (int, error) {
	enc, err := c.encoding()
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}
