package telegram

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/m3rciful/vpnbot/core/logger"
	"github.com/m3rciful/vpnbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// Registry maps command names and callback keys to handlers. Commands are
// registered before the bot starts; callbacks may be added at any time.
type Registry struct {
	mu        sync.RWMutex
	commands  map[string]commands.Command
	aliases   map[string]string
	callbacks map[string]tele.HandlerFunc

	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NamedCommand pairs a canonical command name with its definition.
type NamedCommand struct {
	Name string
	commands.Command
}

// NewRegistry creates an empty Registry. Unknown callbacks are answered with
// a short alert.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		aliases:   make(map[string]string),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Действие устарело"})
		},
	}
}

// RegisterCommand adds cmd under name, which must start with a slash.
// Invalid and duplicate registrations are logged and skipped.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) {
	if err := r.addCommand(name, cmd); err != nil {
		logger.LogEvent(context.Background(), logger.TWire, slog.LevelWarn, "register.command.skip",
			slog.String("name", name), logger.Err(err))
	}
}

func (r *Registry) addCommand(name string, cmd commands.Command) error {
	switch {
	case cmd.Handler == nil || cmd.Description == "":
		return errors.New("handler and description are required")
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		return errors.New("name must start with a slash")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.commands[name]; ok {
		return errors.New("duplicate command")
	}
	r.commands[name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[slashed(alias)] = name
	}
	return nil
}

// Commands returns the registered commands ordered by name.
func (r *Registry) Commands() []NamedCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NamedCommand, 0, len(r.commands))
	for name, cmd := range r.commands {
		out = append(out, NamedCommand{Name: name, Command: cmd})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListCommands returns the command menu entries. visibleOnly drops hidden
// and admin-only commands.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	var list []tele.Command
	for _, nc := range r.Commands() {
		if !nc.Listed(visibleOnly) {
			continue
		}
		list = append(list, tele.Command{Text: nc.Name, Description: nc.Description})
	}
	return list
}

// LookupCommand resolves the first word of text by name or alias.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	word, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	if word == "" {
		return "", commands.Command{}, false
	}
	word, _, _ = strings.Cut(slashed(word), "@")

	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[word]; ok {
		return word, cmd, true
	}
	if name, ok := r.aliases[word]; ok {
		return name, r.commands[name], true
	}
	return "", commands.Command{}, false
}

// RegisterCallback binds handler to the callback key.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		return errors.Newf("invalid callback registration %q", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.callbacks[key]; ok {
		return errors.Newf("callback already registered: %s", key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler bound to key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the sorted callback keys.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetCallbackNotFound replaces the handler for unknown callback keys.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

// CallbackNotFound returns the handler for unknown callback keys.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for text that is not a command.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

// TextFallback returns the handler for text that is not a command.
func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// InitBotCommands publishes the command menu. When adminID is set the admin
// chat additionally sees admin-only commands.
func InitBotCommands(bot *tele.Bot, reg *Registry, adminID int64) {
	ctx := context.Background()
	if err := bot.SetCommands(reg.ListCommands(true)); err != nil {
		logger.LogEvent(ctx, logger.TWire, slog.LevelError, "register.commands", logger.Err(err))
	}
	if adminID == 0 {
		return
	}
	scope := tele.CommandScope{Type: tele.CommandScopeChat, ChatID: adminID}
	if err := bot.SetCommands(reg.ListCommands(false), scope); err != nil {
		logger.LogEvent(ctx, logger.TWire, slog.LevelError, "register.commands.admin", logger.Err(err))
	}
}

func slashed(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + name
}
