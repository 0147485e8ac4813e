package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/vpnbot/bot/botconfig"
	"github.com/m3rciful/vpnbot/bot/dispatch"
	"github.com/m3rciful/vpnbot/bot/menu"
	"github.com/m3rciful/vpnbot/bot/settings"
	coreconfig "github.com/m3rciful/vpnbot/core/config"

	tele "gopkg.in/telebot.v4"
)

type fakeContext struct {
	tele.Context
	msg    *tele.Message
	sender *tele.User
}

func (f fakeContext) Message() *tele.Message { return f.msg }
func (f fakeContext) Sender() *tele.User     { return f.sender }

func testConfig(t *testing.T) *botconfig.Config {
	t.Helper()
	cfg := &botconfig.Config{
		Config: coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "t", AdminID: 1}},
		Backend: botconfig.BackendConfig{BaseURL: "http://backend.local/"},
		Settings: botconfig.SettingsConfig{
			File:     filepath.Join(t.TempDir(), "settings.yaml"),
			Defaults: botconfig.SettingsValues{AdminContacts: "@admin"},
		},
		Payment: botconfig.PaymentConfig{ImagePath: filepath.Join(t.TempDir(), "absent.png")},
	}
	require.NoError(t, botconfig.Normalize(cfg))
	return cfg
}

func TestBootstrapWithoutDatabase(t *testing.T) {
	cfg := testConfig(t)
	a, err := Bootstrap(context.Background(), cfg)
	require.NoError(t, err)

	assert.Nil(t, a.db)
	assert.Equal(t, "@admin", a.settings.Current().AdminContacts)
	assert.NotEmpty(t, a.settings.Current().DefaultErrorMessage)

	// Defaults are persisted to the file store on first load.
	_, err = os.Stat(cfg.Settings.File)
	assert.NoError(t, err)
}

func TestTelegramRunOptionsRegistersEveryIntent(t *testing.T) {
	a, err := Bootstrap(context.Background(), testConfig(t))
	require.NoError(t, err)

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)

	assert.ElementsMatch(t, menu.Intents, opts.Registry.ListCallbacks())
	for _, name := range []string{"/start", "/menu", "/pending"} {
		_, _, ok := opts.Registry.LookupCommand(name)
		assert.True(t, ok, name)
	}
	_, pending, _ := opts.Registry.LookupCommand("/pending")
	assert.True(t, pending.AdminOnly)

	visible := opts.Registry.ListCommands(true)
	assert.Len(t, visible, 2)
	assert.NotNil(t, opts.Registry.TextFallback())
	assert.NotNil(t, opts.OnStart)
	assert.NotNil(t, opts.OnStop)
	assert.NotEmpty(t, opts.Routes)
}

func TestSettingsStoreSelection(t *testing.T) {
	cfg := &botconfig.Config{}
	assert.IsType(t, &settings.MemoryStore{}, settingsStore(cfg, nil))

	cfg.Settings.File = "settings.yaml"
	assert.Equal(t, settings.FileStore{Path: "settings.yaml"}, settingsStore(cfg, nil))
}

func TestReferralOf(t *testing.T) {
	cases := map[string]struct {
		msg  *tele.Message
		want string
	}{
		"no message":  {nil, ""},
		"payload":     {&tele.Message{Text: "/start abc", Payload: " abc "}, "abc"},
		"parsed text": {&tele.Message{Text: "/start xyz"}, "xyz"},
		"bare start":  {&tele.Message{Text: "/start"}, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, referralOf(fakeContext{msg: tc.msg}))
		})
	}
}

func TestHandleIgnoresUpdatesWithoutUser(t *testing.T) {
	called := false
	h := handle(func(context.Context, dispatch.Sender, tele.Context) error {
		called = true
		return nil
	})
	require.NoError(t, h(fakeContext{}))
	assert.False(t, called)
}

func TestSenderOf(t *testing.T) {
	got := senderOf(fakeContext{sender: &tele.User{ID: 5, Username: "neo", FirstName: "Thomas"}})
	assert.Equal(t, int64(5), got.ID)
	assert.Equal(t, "neo", got.Username)
	assert.Equal(t, "Thomas", got.FirstName)
}

func TestDeviceNames(t *testing.T) {
	assert.Equal(t, []string{"Android", "Linux"},
		deviceNames([]botconfig.Device{{Name: "Android"}, {Name: "Linux"}}))
}
