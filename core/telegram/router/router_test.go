package router

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/vpnbot/core/telegram"
	"github.com/m3rciful/vpnbot/core/telegram/commands"
)

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return bot
}

func textFrom(bot *tele.Bot, userID int64, text string) tele.Context {
	return bot.NewContext(tele.Update{
		ID:      3,
		Message: &tele.Message{Sender: &tele.User{ID: userID}, Chat: &tele.Chat{ID: userID}, Text: text},
	})
}

func TestTextRoutesResolveCommandsAndFallback(t *testing.T) {
	bot := offlineBot(t)
	reg := tg.NewRegistry()
	var got []string
	reg.RegisterCommand("/menu", commands.Command{
		Description: "menu",
		Aliases:     []string{"home"},
		Handler:     func(tele.Context) error { got = append(got, "menu"); return nil },
	})
	reg.RegisterCommand("/pending", commands.Command{
		Description: "pending",
		AdminOnly:   true,
		Handler:     func(tele.Context) error { got = append(got, "pending"); return nil },
	})
	reg.SetTextFallback(func(c tele.Context) error { got = append(got, "text:"+c.Text()); return nil })

	routes := TextRoutes(reg, TextOptions{})
	require.Len(t, routes, 5)
	assert.Equal(t, tele.OnText, routes[0].Endpoint)
	h := routes[0].Handler

	for _, in := range []string{"/home now", "/menu@vpn_bot", "/pending", "menu", "PROMO1"} {
		require.NoError(t, h(textFrom(bot, 1, in)))
	}
	assert.Equal(t, []string{"menu", "menu", "text:/pending", "text:menu", "text:PROMO1"}, got)
}

func TestCallbackRouteUnknownKeyUsesFallback(t *testing.T) {
	bot := offlineBot(t)
	reg := tg.NewRegistry()
	var reason string
	reg.SetCallbackNotFound(func(c tele.Context) error {
		reason = "missing:" + c.Callback().Unique
		return nil
	})
	route := CallbackRoute(reg, CallbackOptions{})
	c := bot.NewContext(tele.Update{
		ID:       4,
		Callback: &tele.Callback{Sender: &tele.User{ID: 2}, Unique: "gone", Data: "x"},
	})
	require.NoError(t, route.Handler(c))
	assert.Equal(t, "missing:gone", reason)
}

func TestCommandRoutesGuardAdminCommands(t *testing.T) {
	bot := offlineBot(t)
	reg := tg.NewRegistry()
	ran, rejected := 0, 0
	reg.RegisterCommand("/pending", commands.Command{
		Description: "pending",
		AdminOnly:   true,
		Handler:     func(tele.Context) error { ran++; return nil },
	})
	routes := CommandRoutes(reg, CommandRouteOptions{
		AdminID:       9,
		OnAdminReject: func(tele.Context) error { rejected++; return nil },
	})
	require.Len(t, routes, 1)
	assert.Equal(t, "/pending", routes[0].Endpoint)

	require.NoError(t, routes[0].Handler(textFrom(bot, 1, "/pending")))
	require.NoError(t, routes[0].Handler(textFrom(bot, 9, "/pending")))
	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, rejected)
}

func TestObserveReturnsHandlerError(t *testing.T) {
	bot := offlineBot(t)
	boom := errors.New("boom")
	err := observe(textFrom(bot, 1, "x"), "text", func(tele.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, observe(textFrom(bot, 1, "x"), "unknown_text", nil))
}

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string  { return "offer expired" }

func TestErrorCodeAndHandlerName(t *testing.T) {
	assert.Equal(t, "OFFER_EXPIRED", errorCode(codedErr{}))
	assert.Equal(t, "ERRORSTRING", errorCode(errors.New("x")))
	assert.Equal(t, "command.start", handlerName("command", "/Start"))
	assert.Equal(t, "callback.unknown", handlerName("callback", " "))
}
