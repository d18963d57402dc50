package assembler

import "unicode/utf8"

// TokenEstimator counts the tokens a piece of text will take in a prompt.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator approximates one token per four characters, rounding up.
type CharEstimator struct{}

func (CharEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	const charsPerToken = 4
	return (utf8.RuneCountInString(text) + charsPerToken - 1) / charsPerToken
}
