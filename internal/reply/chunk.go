// Package reply prepares generated text for the chat transport:
// splitting it into messages that fit the transport limit and
// rendering a constrained Markdown subset as Telegram MarkdownV2.
package reply

import (
	"strings"
	"unicode/utf8"
)

// Chunk splits text into fragments of at most maxLen characters.
// Paragraphs (blank-line separated) are packed together while they
// fit; an oversize paragraph is split at sentence boundaries, and an
// oversize sentence is hard-cut. Fragment order follows the input.
func Chunk(text string, maxLen int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}

		if len(para) > maxLen {
			flush()
			for _, piece := range splitSentences(para, maxLen) {
				out = append(out, piece)
			}
			continue
		}

		if cur.Len() > 0 && cur.Len()+2+len(para) > maxLen {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return out
}

// splitSentences packs sentences into fragments under maxLen,
// hard-cutting any single sentence that exceeds it on its own.
func splitSentences(text string, maxLen int) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}

	for _, sentence := range sentences(text) {
		if len(sentence) > maxLen {
			flush()
			for len(sentence) > maxLen {
				n := runeCut(sentence, maxLen)
				out = append(out, sentence[:n])
				sentence = sentence[n:]
			}
			if sentence != "" {
				cur.WriteString(sentence)
			}
			continue
		}
		if cur.Len()+len(sentence) > maxLen {
			flush()
		}
		cur.WriteString(sentence)
	}
	flush()
	return out
}

// runeCut backs a byte offset up to the nearest rune boundary so hard
// cuts never split a multi-byte character. Input that is not valid
// UTF-8 is cut at max as-is.
func runeCut(s string, max int) int {
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return max
	}
	return cut
}

// sentences splits after '.', '!', or '?' followed by whitespace,
// keeping delimiters and whitespace with the preceding sentence so
// the pieces concatenate back to the input.
func sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' || text[i+1] == '\n' || text[i+1] == '\t' {
				out = append(out, text[start:i+2])
				start = i + 2
				i++
			}
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
