package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/yskim/aihub/internal/convo"
	"github.com/yskim/aihub/internal/intent"
	"github.com/yskim/aihub/internal/pipeline"
	"github.com/yskim/aihub/internal/reply"
)

const (
	pollTimeoutSec = 30
	pollRetryDelay = 3 * time.Second

	msgWelcome = "안녕하세요! 메시지를 보내면 대화하거나 내용을 분석해드려요.\n/chat /analyze /auto 명령으로 처리 모드를 바꿀 수 있어요."
	msgNoFile  = "파일을 받아오지 못했어요. 다시 보내주세요."
)

// API is the Bot API surface the poller depends on.
type API interface {
	GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text string, mode reply.ParseMode) error
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Handler processes translated inbound events.
type Handler interface {
	Handle(ctx context.Context, in pipeline.Inbound) pipeline.Reply
	SetMode(conversationID string, mode intent.Mode) string
}

// Poller drives getUpdates and feeds each message through the
// handler. With a non-zero ownerID, messages from anyone else are
// dropped.
type Poller struct {
	api     API
	handler Handler
	ownerID int64
	log     *slog.Logger
}

func NewPoller(api API, handler Handler, ownerID int64, log *slog.Logger) *Poller {
	return &Poller{api: api, handler: handler, ownerID: ownerID, log: log}
}

// Run polls until the context is canceled.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := p.api.GetUpdates(ctx, offset, pollTimeoutSec)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Warn("polling updates failed", "error", err)
			select {
			case <-time.After(pollRetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			p.handleUpdate(ctx, u)
		}
	}
}

func (p *Poller) handleUpdate(ctx context.Context, u Update) {
	m := u.Message
	if m == nil {
		return
	}
	if p.ownerID != 0 && (m.From == nil || m.From.ID != p.ownerID) {
		p.log.Debug("ignoring message from non-owner", "chat", m.Chat.ID)
		return
	}

	conversationID := strconv.FormatInt(m.Chat.ID, 10)

	if cmd, ok := command(m.Text); ok {
		p.send(ctx, m.Chat.ID, pipeline.Reply{Fragments: []pipeline.Fragment{
			{Text: p.runCommand(conversationID, cmd)},
		}})
		return
	}

	in, ok := p.inbound(ctx, m, conversationID)
	if !ok {
		p.send(ctx, m.Chat.ID, pipeline.Reply{Fragments: []pipeline.Fragment{{Text: msgNoFile}}})
		return
	}
	p.send(ctx, m.Chat.ID, p.handler.Handle(ctx, in))
}

// command extracts a bot command, tolerating the @botname suffix.
func command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd := strings.Fields(text)[0]
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return cmd, true
}

func (p *Poller) runCommand(conversationID, cmd string) string {
	switch cmd {
	case "/start", "/help":
		return msgWelcome
	case "/chat":
		return p.handler.SetMode(conversationID, intent.ModeChat)
	case "/analyze":
		return p.handler.SetMode(conversationID, intent.ModeAnalyze)
	case "/auto":
		return p.handler.SetMode(conversationID, intent.ModeAuto)
	default:
		return "모르는 명령이에요. /chat /analyze /auto 중에서 골라주세요."
	}
}

// inbound translates a Telegram message into a pipeline event,
// downloading any attachment bytes.
func (p *Poller) inbound(ctx context.Context, m *Message, conversationID string) (pipeline.Inbound, bool) {
	in := pipeline.Inbound{
		ConversationID: conversationID,
		Text:           m.Text,
		Modality:       convo.ModalityText,
	}
	if m.From != nil {
		in.AuthorID = strconv.FormatInt(m.From.ID, 10)
	}

	switch {
	case m.Voice != nil:
		data, err := p.api.Download(ctx, m.Voice.FileID)
		if err != nil {
			p.log.Warn("downloading voice failed", "error", err)
			return pipeline.Inbound{}, false
		}
		mime := m.Voice.MIMEType
		if mime == "" {
			mime = "audio/ogg"
		}
		in.Modality = convo.ModalityVoice
		in.Attachment = &pipeline.Attachment{Filename: "voice.ogg", MIME: mime, Data: data}

	case m.Document != nil:
		data, err := p.api.Download(ctx, m.Document.FileID)
		if err != nil {
			p.log.Warn("downloading document failed", "file", m.Document.FileName, "error", err)
			return pipeline.Inbound{}, false
		}
		in.Modality = convo.ModalityDocument
		in.Text = m.Caption
		in.Attachment = &pipeline.Attachment{Filename: m.Document.FileName, MIME: m.Document.MIMEType, Data: data}

	case len(m.Photo) > 0:
		data, err := p.api.Download(ctx, largestPhoto(m.Photo).FileID)
		if err != nil {
			p.log.Warn("downloading photo failed", "error", err)
			return pipeline.Inbound{}, false
		}
		in.Modality = convo.ModalityImage
		in.Text = m.Caption
		in.Attachment = &pipeline.Attachment{Filename: "photo.jpg", MIME: "image/jpeg", Data: data}
	}

	return in, true
}

func largestPhoto(sizes []PhotoSize) PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.FileSize > best.FileSize {
			best = s
		}
	}
	return best
}

func (p *Poller) send(ctx context.Context, chatID int64, r pipeline.Reply) {
	for _, f := range r.Fragments {
		if err := p.api.SendMessage(ctx, chatID, f.Text, f.Mode); err != nil {
			p.log.Warn("sending reply failed", "chat", chatID, "error", err)
		}
	}
}
