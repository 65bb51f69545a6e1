package chunker

import "unicode/utf8"

// charsPerToken is the rough character-to-token ratio used for sizing.
const charsPerToken = 3

// ApproxTokens estimates the token count of text as its character count / 3.
func ApproxTokens(text string) int {
	return utf8.RuneCountInString(text) / charsPerToken
}

// tail returns the last n characters of text, or all of it when shorter.
func tail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := len(text); i > 0; {
		_, size := utf8.DecodeLastRuneInString(text[:i])
		i -= size
		count++
		if count == n {
			return text[i:]
		}
	}
	return text
}
