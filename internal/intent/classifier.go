package intent

import (
	"strings"
	"unicode/utf8"
)

// Mode is the handling route for an inbound message.
type Mode string

const (
	// ModeChat answers conversationally with recent context.
	ModeChat Mode = "chat"
	// ModeAnalyze summarizes or analyzes the content in depth.
	ModeAnalyze Mode = "analyze"
	// ModeAuto defers to the classifier per message.
	ModeAuto Mode = "auto"
)

// ParseMode maps user-facing command names onto a Mode.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeChat:
		return ModeChat, true
	case ModeAnalyze:
		return ModeAnalyze, true
	case ModeAuto:
		return ModeAuto, true
	}
	return "", false
}

const (
	shortTextLimit = 80
	longTextLimit  = 300
)

// smallTalkHints mark casual conversation in short messages. Korean
// first, matching the primary user base.
var smallTalkHints = []string{
	"안녕", "뭐해", "고마워", "감사", "잘자", "잘 자", "좋은 아침", "ㅋㅋ", "ㅎㅎ",
	"hi", "hello", "hey", "thanks", "thank you", "good morning", "good night", "how are you",
}

// analysisHints request summarization or deeper processing at any
// length.
var analysisHints = []string{
	"요약", "분석", "정리해", "정리 해", "설명해", "설명 해", "번역", "리뷰", "검토",
	"summarize", "summary", "analyze", "analysis", "explain", "translate", "review", "tl;dr", "tldr",
}

// Classify routes text to chat or analyze. It is pure and never
// errors; when no rule fires the cheap conversational route wins.
func Classify(text string) Mode {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ModeChat
	}

	lower := strings.ToLower(trimmed)
	length := utf8.RuneCountInString(trimmed)

	if length <= shortTextLimit && containsAny(lower, smallTalkHints) {
		return ModeChat
	}
	if length >= longTextLimit || containsAny(lower, analysisHints) {
		return ModeAnalyze
	}
	return ModeChat
}

// IsGreeting reports whether text is a short salutation that deserves
// a canned answer instead of a generation call.
func IsGreeting(text string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if trimmed == "" || utf8.RuneCountInString(trimmed) > 16 {
		return false
	}
	for _, h := range smallTalkHints {
		if strings.HasPrefix(trimmed, h) {
			return true
		}
	}
	return false
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}
