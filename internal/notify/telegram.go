// Package notify delivers out-of-band notifications for fired automation
// rules over Telegram.
//
// Delivery is best-effort by contract: SendNotification reports success
// with a flag and never returns an error, so a flaky Telegram API cannot
// defer or re-trigger group posts.
package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "groupmgr/pkg/logx"
)

type Config struct {
	Enabled bool
	Token   string
	ChatID  int64
}

type Service struct {
	cfg Config
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Service, error) {
	if !cfg.Enabled {
		return &Service{cfg: cfg, log: log}, nil
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("notify: telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("notify: telegram chat_id is not set")
	}
	// Send-only: no poller, updates are never consumed.
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, bot: b, log: log}, nil
}

// SendNotification pushes title+body to the configured chat and reports
// whether the send succeeded. A disabled service reports true: there was
// nothing to deliver and nothing failed.
func (s *Service) SendNotification(ctx context.Context, title, body string) bool {
	_ = ctx // telebot manages its own request timeout
	if s == nil || s.bot == nil {
		return true
	}

	var b strings.Builder
	if title != "" {
		b.WriteString("<b>")
		b.WriteString(escapeHTML(title))
		b.WriteString("</b>")
	}
	if body != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(escapeHTML(body))
	}
	if b.Len() == 0 {
		return true
	}

	start := time.Now()
	_, err := s.bot.Send(tele.ChatID(s.cfg.ChatID), b.String(), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	if err != nil {
		s.log.Warn("telegram send failed",
			logx.Int64("chat_id", s.cfg.ChatID),
			logx.Err(err))
		return false
	}
	s.log.Debug("notification sent",
		logx.Int64("chat_id", s.cfg.ChatID),
		logx.Duration("took", time.Since(start)))
	return true
}

func escapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
