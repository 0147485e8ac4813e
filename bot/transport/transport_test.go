package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/vpnbot/bot/menu"
	"github.com/m3rciful/vpnbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

type sent struct {
	to   string
	what interface{}
	opts []interface{}
}

type fakeAPI struct {
	calls []sent
	errs  []error
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.calls = append(f.calls, sent{to: to.Recipient(), what: what, opts: opts})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &tele.Message{}, nil
}

func sendOptions(t *testing.T, s sent) *tele.SendOptions {
	t.Helper()
	require.Len(t, s.opts, 1)
	opts, ok := s.opts[0].(*tele.SendOptions)
	require.True(t, ok)
	return opts
}

func TestSendTextUsesHTMLAndInlineControls(t *testing.T) {
	api := &fakeAPI{}
	tr := New(api, nil)

	kb := menu.Keyboard{
		{{Text: "Pro", Intent: menu.IntentPlan, Payload: "pro"}},
		menu.Back(),
	}
	require.NoError(t, tr.SendText(context.Background(), 42, "<b>hi</b>", kb))

	require.Len(t, api.calls, 1)
	call := api.calls[0]
	assert.Equal(t, "42", call.to)
	assert.Equal(t, "<b>hi</b>", call.what)

	opts := sendOptions(t, call)
	assert.Equal(t, tele.ModeHTML, opts.ParseMode)
	require.NotNil(t, opts.ReplyMarkup)
	rows := opts.ReplyMarkup.InlineKeyboard
	require.Len(t, rows, 2)
	assert.Equal(t, menu.IntentPlan, rows[0][0].Unique)
	assert.Equal(t, "pro", rows[0][0].Data)
	assert.Equal(t, menu.IntentMainMenu, rows[1][0].Unique)
}

func TestSendTextWithoutControls(t *testing.T) {
	api := &fakeAPI{}
	require.NoError(t, New(api, nil).SendText(context.Background(), 1, "x", nil))
	assert.Nil(t, sendOptions(t, api.calls[0]).ReplyMarkup)
}

func TestSendImageReadsFromStartOnRetry(t *testing.T) {
	api := &fakeAPI{errs: []error{&net.OpError{Op: "dial", Err: errors.New("refused")}}}
	disp := sender.NewDispatcher(sender.Options{Workers: 1, MaxRetries: 1, RetryBackoff: time.Millisecond, MaxDuration: time.Second})
	t.Cleanup(disp.Close)

	png := []byte("\x89PNG-data")
	err := New(api, disp).SendImage(context.Background(), 7, png, "caption", menu.Payment())
	require.NoError(t, err)
	require.Len(t, api.calls, 2)

	for _, call := range api.calls {
		photo, ok := call.what.(*tele.Photo)
		require.True(t, ok)
		assert.Equal(t, "caption", photo.Caption)
		body, err := io.ReadAll(photo.FileReader)
		require.NoError(t, err)
		assert.Equal(t, png, body)
	}
}

func TestSendImageRejectsEmptyPayload(t *testing.T) {
	api := &fakeAPI{}
	assert.Error(t, New(api, nil).SendImage(context.Background(), 7, nil, "c", nil))
	assert.Empty(t, api.calls)
}

func TestSendStickerWrapsFailure(t *testing.T) {
	boom := errors.New("boom")
	api := &fakeAPI{errs: []error{boom}}
	err := New(api, nil).SendSticker(context.Background(), 9, "CAACAg")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "sendSticker")

	sticker, ok := api.calls[0].what.(*tele.Sticker)
	require.True(t, ok)
	assert.Equal(t, "CAACAg", sticker.FileID)
}

func TestMarkupEmpty(t *testing.T) {
	assert.Nil(t, Markup(nil))
	assert.Nil(t, Markup(menu.Keyboard{}))
}
