package intent

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/yskim/aihub/internal/provider"
)

func TestClassify(t *testing.T) {
	long := strings.Repeat("이 프로젝트의 배경을 설명하자면 ", 30)

	cases := []struct {
		name string
		text string
		want Mode
	}{
		{"empty", "", ModeChat},
		{"whitespace only", "   \n\t", ModeChat},
		{"korean greeting", "안녕", ModeChat},
		{"english greeting", "hey, how are you?", ModeChat},
		{"short neutral", "내일 일정 있어?", ModeChat},
		{"analysis keyword short", "이 문서 요약해줘", ModeAnalyze},
		{"english analysis keyword", "please summarize this article", ModeAnalyze},
		{"long text no keyword", long, ModeAnalyze},
		{"medium neutral", strings.Repeat("hello world ", 10), ModeChat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.text); got != tc.want {
				t.Errorf("Classify(%.40q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestIsGreeting(t *testing.T) {
	if !IsGreeting("안녕하세요") {
		t.Error("expected 안녕하세요 to be a greeting")
	}
	if !IsGreeting("hello") {
		t.Error("expected hello to be a greeting")
	}
	if IsGreeting("hello, can you summarize the attached report for me?") {
		t.Error("long requests must not short-circuit as greetings")
	}
	if IsGreeting("") {
		t.Error("empty text is not a greeting")
	}
}

func TestParseMode(t *testing.T) {
	if m, ok := ParseMode("Analyze"); !ok || m != ModeAnalyze {
		t.Errorf("ParseMode(Analyze) = %v, %v", m, ok)
	}
	if _, ok := ParseMode("verbose"); ok {
		t.Error("ParseMode accepted an unknown mode")
	}
}

type stubGenerator struct {
	res provider.Result
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) provider.Result {
	return s.res
}

func TestRefiner(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cases := []struct {
		name string
		res  provider.Result
		want Mode
	}{
		{"answers analyze", provider.Success("analyze"), ModeAnalyze},
		{"answers chat", provider.Success("chat"), ModeChat},
		{"answer with punctuation", provider.Success(`"Analyze."`), ModeAnalyze},
		{"off-script answer", provider.Success("it depends on the context"), ModeChat},
		{"provider failure", provider.Failure("all models failed"), ModeChat},
		{"provider block", provider.Blocked("SAFETY"), ModeChat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRefiner(&stubGenerator{res: tc.res}, log)
			if got := r.Refine(context.Background(), "ambiguous text"); got != tc.want {
				t.Errorf("Refine = %v, want %v", got, tc.want)
			}
		})
	}
}
