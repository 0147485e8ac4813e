// Package transport delivers dispatcher replies through the Telegram Bot API.
package transport

import (
	"bytes"
	"context"

	"github.com/cockroachdb/errors"

	"github.com/m3rciful/vpnbot/bot/menu"
	"github.com/m3rciful/vpnbot/core/telegram/keyboard"
	"github.com/m3rciful/vpnbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// API is the part of *tele.Bot used for outbound messages.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram sends HTML messages, photos and stickers to a chat id.
// Every call goes through the sender dispatcher so that transient
// failures are retried and logged the same way as handler replies.
type Telegram struct {
	api  API
	disp *sender.Dispatcher
}

// New builds a Telegram transport. disp may be nil to call the API directly.
func New(api API, disp *sender.Dispatcher) *Telegram {
	return &Telegram{api: api, disp: disp}
}

// SendText sends an HTML message with optional inline controls.
func (t *Telegram) SendText(ctx context.Context, userID int64, text string, kb menu.Keyboard) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, ReplyMarkup: Markup(kb)}
	return t.do(ctx, "send.text", "sendMessage", func() error {
		_, err := t.api.Send(tele.ChatID(userID), text, opts)
		return err
	})
}

// SendImage sends a PNG with an HTML caption.
func (t *Telegram) SendImage(ctx context.Context, userID int64, png []byte, caption string, kb menu.Keyboard) error {
	if len(png) == 0 {
		return errors.New("transport: empty image")
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, ReplyMarkup: Markup(kb)}
	return t.do(ctx, "send.photo", "sendPhoto", func() error {
		// A fresh reader per attempt; a retried upload must start from the first byte.
		photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(png)), Caption: caption}
		_, err := t.api.Send(tele.ChatID(userID), photo, opts)
		return err
	})
}

// SendSticker sends a sticker by its file id.
func (t *Telegram) SendSticker(ctx context.Context, userID int64, stickerID string) error {
	sticker := &tele.Sticker{File: tele.File{FileID: stickerID}}
	return t.do(ctx, "send.sticker", "sendSticker", func() error {
		_, err := t.api.Send(tele.ChatID(userID), sticker)
		return err
	})
}

func (t *Telegram) do(ctx context.Context, action, endpoint string, run func() error) error {
	var err error
	if t.disp == nil {
		err = run()
	} else {
		err = t.disp.Do(ctx, action, endpoint, run)
	}
	return errors.Wrap(err, endpoint)
}

// Markup converts controls into an inline keyboard. An empty keyboard yields nil.
func Markup(kb menu.Keyboard) *tele.ReplyMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]keyboard.InlineBtn, 0, len(kb))
	for _, row := range kb {
		r := make([]keyboard.InlineBtn, 0, len(row))
		for _, b := range row {
			r = append(r, keyboard.InlineBtn{Text: b.Text, Unique: b.Intent, Data: b.Payload})
		}
		rows = append(rows, r)
	}
	return keyboard.InlineButtonsRows(rows...)
}
