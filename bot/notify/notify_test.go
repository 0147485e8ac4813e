package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/vpnbot/bot/menu"
	"github.com/m3rciful/vpnbot/bot/session"
)

const adminID = int64(1)

type call struct {
	kind string
	to   int64
	body string
	kb   menu.Keyboard
}

type fakeTransport struct {
	calls []call
	fail  int64
}

func (f *fakeTransport) SendText(_ context.Context, id int64, text string, kb menu.Keyboard) error {
	if id == f.fail {
		return errors.New("forbidden: bot was blocked by the user")
	}
	f.calls = append(f.calls, call{kind: "text", to: id, body: text, kb: kb})
	return nil
}

func (f *fakeTransport) SendImage(_ context.Context, id int64, _ []byte, caption string, kb menu.Keyboard) error {
	f.calls = append(f.calls, call{kind: "image", to: id, body: caption, kb: kb})
	return nil
}

func (f *fakeTransport) SendSticker(_ context.Context, id int64, sticker string) error {
	f.calls = append(f.calls, call{kind: "sticker", to: id, body: sticker})
	return nil
}

func newFanout(t *testing.T, withAdminSession bool) (*Fanout, *fakeTransport) {
	t.Helper()
	store := session.NewStore(nil)
	if withAdminSession {
		unlock := store.Lock(adminID)
		_, err := store.Create(adminID, session.Init{Handle: "root"})
		unlock()
		require.NoError(t, err)
	}
	tr := &fakeTransport{}
	return New(tr, store, adminID, []string{"Android", "Linux"}), tr
}

func decode(t *testing.T, body string) []Notification {
	t.Helper()
	var req struct {
		Users []Notification `json:"users"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return req.Users
}

func TestDeliverBatch(t *testing.T) {
	f, tr := newFanout(t, true)
	batch := decode(t, `{"users":[
		{"id":100,"message":"Ваша заявка одобрена/n/nПриятного пользования","withDefaultOptions":true,"sticker":"CAACAgI"},
		{"id":1,"message":"Новая заявка","control":{"action":"accept offer","offer_id":42}},
		{"id":200,"message":"Как подключиться?","control":{"action":"instruction"}},
		{"id":300,"message":"plain"}
	]}`)

	n, err := f.Deliver(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	want := []call{
		{kind: "sticker", to: 100, body: "CAACAgI"},
		{kind: "text", to: 100, body: "Ваша заявка одобрена\n\nПриятного пользования", kb: menu.MainMenu()},
		{kind: "text", to: 1, body: "Новая заявка", kb: menu.AdminDecision("42")},
		{kind: "text", to: 200, body: "Как подключиться?", kb: menu.Devices([]string{"Android", "Linux"})},
		{kind: "text", to: 300, body: "plain"},
	}
	if diff := cmp.Diff(want, tr.calls, cmp.AllowUnexported(call{})); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestAcceptControlWithoutAdminSession(t *testing.T) {
	f, tr := newFanout(t, false)
	_, err := f.Deliver(context.Background(), []Notification{
		{ID: adminID, Message: "Новая заявка", Control: &Control{Action: ActionAcceptOffer, OfferID: "42"}, WithDefaultOptions: true},
	})
	require.NoError(t, err)
	require.Len(t, tr.calls, 1)
	assert.Equal(t, menu.MainMenu(), tr.calls[0].kb)
}

func TestAcceptControlForNonAdminIsDropped(t *testing.T) {
	f, tr := newFanout(t, true)
	_, err := f.Deliver(context.Background(), []Notification{
		{ID: 100, Message: "x", Control: &Control{Action: ActionAcceptOffer, OfferID: "42"}},
	})
	require.NoError(t, err)
	assert.Nil(t, tr.calls[0].kb)
}

func TestInvalidEntryStopsBatch(t *testing.T) {
	cases := map[string]Notification{
		"missing id":      {Message: "x"},
		"missing message": {ID: 5},
		"unknown action":  {ID: 5, Message: "x", Control: &Control{Action: "explode"}},
		"accept no offer": {ID: 5, Message: "x", Control: &Control{Action: ActionAcceptOffer}},
	}
	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			f, tr := newFanout(t, true)
			n, err := f.Deliver(context.Background(), []Notification{{ID: 10, Message: "first"}, bad, {ID: 11, Message: "never"}})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.Equal(t, 1, n)
			require.Len(t, tr.calls, 1)
			assert.Equal(t, int64(10), tr.calls[0].to)
		})
	}
}

func TestSendFailureDoesNotStopBatch(t *testing.T) {
	f, tr := newFanout(t, true)
	tr.fail = 11
	n, err := f.Deliver(context.Background(), []Notification{{ID: 10, Message: "a"}, {ID: 11, Message: "b"}, {ID: 12, Message: "c"}})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalid))
	assert.True(t, errors.Is(err, ErrUndelivered))
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(12), tr.calls[len(tr.calls)-1].to)
}
