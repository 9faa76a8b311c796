package bench

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// DefaultImageTokenCost is the fixed heuristic surcharge added to the prefill
// estimate when an image is attached to the turn. It is not a measurement.
const DefaultImageTokenCost = 257

// DefaultEncoding is the tokenizer encoding used for prefill estimation.
const DefaultEncoding = string(tokenizer.Cl100kBase)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func getCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warn().Err(err).Msg("could not build tokenizer codec, falling back to word count")
			return
		}
		codec = c
	})
	return codec
}

// CountTokens returns the token count of text under the default encoding,
// falling back to a whitespace word count if the codec is unavailable.
func CountTokens(text string) int {
	c := getCodec()
	if c == nil {
		return len(strings.Fields(text))
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return len(strings.Fields(text))
	}
	return len(ids)
}

// EstimateTokens estimates the prefill token count for a prompt, adding
// imageTokenCost once when an image payload accompanies the turn.
func EstimateTokens(prompt string, hasImage bool, imageTokenCost int) int {
	n := CountTokens(prompt)
	if hasImage {
		n += imageTokenCost
	}
	return n
}
