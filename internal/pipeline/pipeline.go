// Package pipeline turns one inbound event into exactly one reply:
// classify, load context, generate, persist, compress, format.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/yskim/aihub/internal/convo"
	"github.com/yskim/aihub/internal/extract"
	"github.com/yskim/aihub/internal/intent"
	"github.com/yskim/aihub/internal/notify"
	"github.com/yskim/aihub/internal/provider"
	"github.com/yskim/aihub/internal/reply"
	"github.com/yskim/aihub/internal/summarize"
)

// Generator is the provider surface the pipeline needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) provider.Result
	GenerateParts(ctx context.Context, prompt string, parts []provider.Part) provider.Result
}

// ContextStore is the conversation persistence surface. A nil store
// degrades the pipeline to stateless operation.
type ContextStore interface {
	Append(m convo.Message) error
	Recent(conversationID string, limit int) ([]convo.Message, error)
	Mode(conversationID string) (string, error)
	SetMode(conversationID, mode string) error
}

type Compactor interface {
	CompressIfNeeded(ctx context.Context, conversationID string) error
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) string
}

type Refiner interface {
	Refine(ctx context.Context, text string) intent.Mode
}

type Dispatcher interface {
	Dispatch(ctx context.Context, rec notify.Record)
}

// Inbound is one event entering the pipeline.
type Inbound struct {
	ConversationID string
	AuthorID       string
	Text           string
	Modality       convo.Modality
	Attachment     *Attachment
	// ForceMode skips classification; watchers use it to request an
	// analysis regardless of content shape.
	ForceMode intent.Mode
	// Title and SourceTag feed the side-channel record.
	Title     string
	SourceTag string
}

// Attachment carries binary payloads for voice, image, and document
// events.
type Attachment struct {
	Filename string
	MIME     string
	Data     []byte
}

// Fragment is one transport-sized piece of the reply.
type Fragment struct {
	Text string
	Mode reply.ParseMode
}

// Reply is what goes back to the user. Every inbound event produces
// exactly one Reply with at least one fragment.
type Reply struct {
	Fragments []Fragment
}

// User-facing outcome messages. The failure taxonomy is resolved here;
// nothing past the orchestrator inspects error kinds.
const (
	msgGreeting  = "안녕하세요! 무엇을 도와드릴까요?"
	msgBlocked   = "콘텐츠 정책 때문에 이 요청에는 답변할 수 없어요. 표현을 바꿔서 다시 시도해주세요."
	msgTemporary = "지금은 응답을 만들 수 없어요. 잠시 후 다시 시도해주세요."
)

const sanitizeInstruction = "Answer carefully in neutral, respectful language, avoiding any sensitive phrasing.\n\n"

// Deps are the pipeline collaborators. Refiner and Dispatcher are
// optional; Store and Compactor may be nil when persistence is
// unconfigured.
type Deps struct {
	Generator  Generator
	Store      ContextStore
	Compactor  Compactor
	Summarizer Summarizer
	Refiner    Refiner
	Dispatcher Dispatcher
}

// Options tune formatting and context limits.
type Options struct {
	MaxReplyLen     int
	PreviewLimit    int
	ContextMessages int
	RichMarkup      bool
}

type Orchestrator struct {
	deps      Deps
	opts      Options
	formatter reply.Formatter
	log       *slog.Logger
}

func New(deps Deps, opts Options, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		deps:      deps,
		opts:      opts,
		formatter: reply.Formatter{Rich: opts.RichMarkup},
		log:       log,
	}
}

// Handle processes one inbound event and always returns a reply.
func (o *Orchestrator) Handle(ctx context.Context, in Inbound) Reply {
	switch {
	case in.Attachment != nil && in.Modality == convo.ModalityDocument:
		return o.handleDocument(ctx, in)
	case in.Attachment != nil && in.Modality == convo.ModalityVoice:
		return o.handleVoice(ctx, in)
	case in.Attachment != nil && in.Modality == convo.ModalityImage:
		return o.handleImage(ctx, in)
	default:
		in.Modality = convo.ModalityText
		return o.handleText(ctx, in)
	}
}

func (o *Orchestrator) handleText(ctx context.Context, in Inbound) Reply {
	mode := o.resolveMode(ctx, in)

	if mode == intent.ModeChat && intent.IsGreeting(in.Text) {
		o.persistTurn(in, msgGreeting)
		return o.reply(msgGreeting)
	}

	if mode == intent.ModeAnalyze {
		return o.analyze(ctx, in)
	}

	answer, failMsg := o.generate(ctx, o.chatPrompt(ctx, in), nil)
	if failMsg != "" {
		return o.reply(failMsg)
	}
	o.persistTurn(in, answer)
	o.compress(ctx, in.ConversationID)
	return o.reply(answer)
}

func (o *Orchestrator) analyze(ctx context.Context, in Inbound) Reply {
	result := o.deps.Summarizer.Summarize(ctx, in.Text)
	o.persistTurn(in, result)
	o.compress(ctx, in.ConversationID)
	o.sideChannel(in, result)
	return o.reply(result)
}

func (o *Orchestrator) handleDocument(ctx context.Context, in Inbound) Reply {
	text, err := extract.Text(in.Attachment.Filename, in.Attachment.Data)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFormat) {
			return o.reply("이 파일 형식은 읽을 수 없어요. " + err.Error())
		}
		o.log.Warn("document extraction failed", "file", in.Attachment.Filename, "error", err)
		return o.reply(msgTemporary)
	}

	// Short text-like files are shown as-is; a summary would lose
	// more than it saves.
	if extract.IsTextLike(in.Attachment.Filename) && utf8.RuneCountInString(text) <= o.opts.PreviewLimit {
		preview := "📄 " + in.Attachment.Filename + "\n\n" + text
		o.persistExchange(in, "(문서) "+in.Attachment.Filename, preview)
		return o.reply(preview)
	}

	in.Text = text
	if in.Title == "" {
		in.Title = in.Attachment.Filename
	}
	in.Attachment = nil
	result := o.deps.Summarizer.Summarize(ctx, in.Text)
	o.persistExchange(in, "(문서) "+in.Title, result)
	o.compress(ctx, in.ConversationID)
	o.sideChannel(in, result)
	return o.reply(result)
}

func (o *Orchestrator) handleVoice(ctx context.Context, in Inbound) Reply {
	transcript, failMsg := o.generate(ctx,
		"Transcribe this audio message verbatim. Output only the transcript.",
		[]provider.Part{{MIME: in.Attachment.MIME, Data: in.Attachment.Data}},
	)
	if failMsg != "" {
		return o.reply(failMsg)
	}

	in.Text = transcript
	in.Attachment = nil
	in.Modality = convo.ModalityVoice
	return o.handleText(ctx, in)
}

func (o *Orchestrator) handleImage(ctx context.Context, in Inbound) Reply {
	prompt := strings.TrimSpace(in.Text)
	if prompt == "" {
		prompt = "Describe this image and point out anything important. Answer in Korean."
	}

	answer, failMsg := o.generate(ctx, prompt,
		[]provider.Part{{MIME: in.Attachment.MIME, Data: in.Attachment.Data}},
	)
	if failMsg != "" {
		return o.reply(failMsg)
	}

	in.Modality = convo.ModalityImage
	o.persistExchange(in, "(이미지) "+prompt, answer)
	o.compress(ctx, in.ConversationID)
	return o.reply(answer)
}

// generate runs one prompt through the provider, retrying a blocked
// request once with a sanitization instruction. It returns either the
// answer or the user-facing failure message, never both.
func (o *Orchestrator) generate(ctx context.Context, prompt string, parts []provider.Part) (answer, failMsg string) {
	res := o.call(ctx, prompt, parts)
	if res.Kind == provider.KindBlocked {
		o.log.Info("generation blocked, retrying with sanitization instruction", "reason", res.Reason)
		res = o.call(ctx, sanitizeInstruction+prompt, parts)
	}

	switch res.Kind {
	case provider.KindSuccess:
		return res.Text, ""
	case provider.KindBlocked:
		return "", msgBlocked
	default:
		o.log.Warn("generation failed", "reason", res.Reason)
		return "", msgTemporary
	}
}

func (o *Orchestrator) call(ctx context.Context, prompt string, parts []provider.Part) provider.Result {
	if len(parts) > 0 {
		return o.deps.Generator.GenerateParts(ctx, prompt, parts)
	}
	return o.deps.Generator.Generate(ctx, prompt)
}

// resolveMode picks the handling route: a forced mode wins, then the
// stored conversation mode, then classification.
func (o *Orchestrator) resolveMode(ctx context.Context, in Inbound) intent.Mode {
	if in.ForceMode == intent.ModeChat || in.ForceMode == intent.ModeAnalyze {
		return in.ForceMode
	}
	if o.deps.Store != nil {
		if stored, err := o.deps.Store.Mode(in.ConversationID); err == nil {
			if mode, ok := intent.ParseMode(stored); ok && mode != intent.ModeAuto {
				return mode
			}
		}
	}

	mode := intent.Classify(in.Text)
	if mode == intent.ModeChat && o.deps.Refiner != nil &&
		!intent.IsGreeting(in.Text) && utf8.RuneCountInString(in.Text) > 80 {
		mode = o.deps.Refiner.Refine(ctx, in.Text)
	}
	return mode
}

// SetMode stores a user-chosen handling mode and returns the
// confirmation text for the chat.
func (o *Orchestrator) SetMode(conversationID string, mode intent.Mode) string {
	if o.deps.Store == nil {
		return "대화 저장소가 설정되지 않아 모드를 바꿀 수 없어요."
	}
	if err := o.deps.Store.SetMode(conversationID, string(mode)); err != nil {
		o.log.Warn("saving conversation mode failed", "conversation", conversationID, "error", err)
		return msgTemporary
	}
	switch mode {
	case intent.ModeChat:
		return "이제부터 모든 메시지를 대화로 처리할게요."
	case intent.ModeAnalyze:
		return "이제부터 모든 메시지를 분석 모드로 처리할게요."
	default:
		return "메시지 내용에 따라 자동으로 모드를 고를게요."
	}
}

func (o *Orchestrator) chatPrompt(ctx context.Context, in Inbound) string {
	var b strings.Builder
	if o.deps.Store != nil {
		history, err := o.deps.Store.Recent(in.ConversationID, o.opts.ContextMessages)
		if err != nil {
			o.log.Warn("loading conversation context failed", "conversation", in.ConversationID, "error", err)
			history = nil
		}
		if len(history) > 0 {
			b.WriteString("Earlier conversation:\n")
			for _, m := range history {
				b.WriteString(string(m.Role))
				b.WriteString(": ")
				b.WriteString(m.Content)
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("Reply to the user's message in their language, concise and helpful.\n\nuser: ")
	b.WriteString(in.Text)
	return b.String()
}

// persistTurn stores the user message and the assistant answer.
// Storage failures never reach the reply path.
func (o *Orchestrator) persistTurn(in Inbound, answer string) {
	o.persistExchange(in, in.Text, answer)
}

func (o *Orchestrator) persistExchange(in Inbound, userContent, answer string) {
	if o.deps.Store == nil {
		return
	}
	if err := o.deps.Store.Append(convo.Message{
		ConversationID: in.ConversationID,
		AuthorID:       in.AuthorID,
		Role:           convo.RoleUser,
		Content:        userContent,
		Modality:       in.Modality,
	}); err != nil {
		o.log.Warn("persisting user message failed", "conversation", in.ConversationID, "error", err)
	}
	if err := o.deps.Store.Append(convo.Message{
		ConversationID: in.ConversationID,
		Role:           convo.RoleAssistant,
		Content:        answer,
		Modality:       convo.ModalityText,
	}); err != nil {
		o.log.Warn("persisting assistant message failed", "conversation", in.ConversationID, "error", err)
	}
}

func (o *Orchestrator) compress(ctx context.Context, conversationID string) {
	if o.deps.Compactor == nil {
		return
	}
	if err := o.deps.Compactor.CompressIfNeeded(ctx, conversationID); err != nil {
		o.log.Warn("context compression failed", "conversation", conversationID, "error", err)
	}
}

// sideChannel emits an analysis record to the configured notifiers,
// fire-and-forget. Markers from failed summaries are not forwarded.
func (o *Orchestrator) sideChannel(in Inbound, result string) {
	if o.deps.Dispatcher == nil || !usableSummary(result) {
		return
	}

	title := in.Title
	if title == "" {
		title = headline(in.Text)
	}
	tag := in.SourceTag
	if tag == "" {
		tag = "chat"
	}
	rec := notify.Record{
		Title:     title,
		Body:      result,
		SourceTag: tag,
		Metadata:  map[string]string{"conversation": in.ConversationID},
	}
	go o.deps.Dispatcher.Dispatch(context.Background(), rec)
}

func usableSummary(result string) bool {
	return result != "" && result != summarize.NothingToSummarize && result != summarize.Unavailable
}

// headline derives a record title from the first line of the input.
func headline(text string) string {
	line := strings.TrimSpace(text)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	runes := []rune(line)
	if len(runes) > 48 {
		return string(runes[:48]) + "…"
	}
	if line == "" {
		return "분석 결과"
	}
	return line
}

// reply chunks and formats the final text into transport fragments.
func (o *Orchestrator) reply(text string) Reply {
	var fragments []Fragment
	for _, chunk := range reply.Chunk(text, o.opts.MaxReplyLen) {
		formatted, mode := o.formatter.Format(chunk)
		fragments = append(fragments, Fragment{Text: formatted, Mode: mode})
	}
	if len(fragments) == 0 {
		fragments = []Fragment{{Text: msgTemporary}}
	}
	return Reply{Fragments: fragments}
}
