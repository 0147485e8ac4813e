// Package commands describes slash commands registered with the bot.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is a slash command handler with its menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands are routed through the admin guard and listed only
	// in the administrator's chat menu.
	AdminOnly bool
	// Hidden commands work but never appear in a menu.
	Hidden  bool
	Aliases []string
}

// Listed reports whether the command belongs in a menu shown to everyone
// (public) or to the administrator (!public).
func (c Command) Listed(public bool) bool {
	if c.Hidden {
		return false
	}
	return !public || !c.AdminOnly
}
