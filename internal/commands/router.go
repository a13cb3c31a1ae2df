// Package commands routes incoming chat messages to bot command handlers.
package commands

import (
	"context"
	"strings"
	"sync"

	"modelwatch/internal/state"
	"modelwatch/internal/transport"
	"modelwatch/internal/watcher"
	logx "modelwatch/pkg/logx"
)

type handlerFunc func(ctx context.Context, req *request) error

type command struct {
	name        string
	description string
	usage       string
	adminOnly   bool
	handle      handlerFunc
}

type request struct {
	chat   transport.ChatTarget
	fromID int64
	args   []string
}

// Router owns the update dispatch loop and the command registry. Command
// handlers run inline on the loop; every handler is a short state lookup or
// mutation, so there is no worker pool here.
type Router struct {
	adapter transport.Adapter
	states  *state.Manager
	watch   *watcher.Watcher
	log     logx.Logger

	mu     sync.Mutex
	admins []int64

	commands map[string]command
	order    []string
}

func NewRouter(adapter transport.Adapter, states *state.Manager, watch *watcher.Watcher, admins []int64, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		adapter:  adapter,
		states:   states,
		watch:    watch,
		log:      log,
		admins:   append([]int64(nil), admins...),
		commands: map[string]command{},
	}
	r.register(command{name: "start", description: "subscribe this chat to catalog updates", usage: "/start", handle: r.handleStart})
	r.register(command{name: "stop", description: "unsubscribe this chat", usage: "/stop", handle: r.handleStop})
	r.register(command{name: "status", description: "show per-source poll status", usage: "/status [source]", handle: r.handleStatus})
	r.register(command{name: "tag", description: "attach a note to a model", usage: "/tag <model> <text>", adminOnly: true, handle: r.handleTag})
	r.register(command{name: "untag", description: "remove a model note", usage: "/untag <model>", adminOnly: true, handle: r.handleUntag})
	r.register(command{name: "help", description: "show this help", usage: "/help", handle: r.handleHelp})
	return r
}

func (r *Router) register(c command) {
	r.commands[c.name] = c
	r.order = append(r.order, c.name)
}

// SetAdmins updates the admin list used for admin-only checks. Safe to call
// during hot-reload.
func (r *Router) SetAdmins(admins []int64) {
	cp := append([]int64(nil), admins...)
	r.mu.Lock()
	r.admins = cp
	r.mu.Unlock()
}

func (r *Router) isAdmin(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.admins {
		if a == id {
			return true
		}
	}
	return false
}

// Run consumes updates until the context is canceled or the channel closes.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) error {
	r.log.Info("command dispatcher started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("command dispatcher stopped")
			return nil
		case up, ok := <-updates:
			if !ok {
				r.log.Info("command dispatcher stopped (updates channel closed)")
				return nil
			}
			r.routeUpdate(ctx, up)
		}
	}
}

func (r *Router) routeUpdate(ctx context.Context, up transport.Update) {
	if up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	// Group chats address commands as /cmd@botname.
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)

	cmd, ok := r.commands[word]
	if !ok {
		r.reply(ctx, transport.ChatTarget{ChatID: msg.ChatID}, "Unknown command. Try /help")
		return
	}

	req := &request{
		chat:   transport.ChatTarget{ChatID: msg.ChatID},
		fromID: msg.FromID,
		args:   parts[1:],
	}

	if cmd.adminOnly && !r.isAdmin(msg.FromID) {
		r.reply(ctx, req.chat, "Unauthorized.")
		return
	}

	if err := cmd.handle(ctx, req); err != nil {
		r.log.Warn("command failed",
			logx.String("cmd", cmd.name),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.Err(err))
		r.reply(ctx, req.chat, "Something went wrong, try again later.")
	}
}

func (r *Router) reply(ctx context.Context, to transport.ChatTarget, text string) {
	if err := r.adapter.SendText(ctx, to, text, &transport.SendOptions{DisablePreview: true}); err != nil {
		r.log.Debug("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}
