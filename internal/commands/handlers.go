package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Cap for /status <source> model listings; huge catalogs get truncated
// instead of tripping Telegram's message size limit.
const maxStatusModels = 80

func (r *Router) handleStart(ctx context.Context, req *request) error {
	if err := r.states.Subscribe(ctx, req.chat.ChatID); err != nil {
		return err
	}
	r.reply(ctx, req.chat, "Subscribed. This chat now receives model catalog updates. Use /stop to unsubscribe.")
	return nil
}

func (r *Router) handleStop(ctx context.Context, req *request) error {
	was, err := r.states.Unsubscribe(ctx, req.chat.ChatID)
	if err != nil {
		return err
	}
	if !was {
		r.reply(ctx, req.chat, "This chat was not subscribed.")
		return nil
	}
	r.reply(ctx, req.chat, "Unsubscribed. Use /start to resume updates.")
	return nil
}

func (r *Router) handleStatus(ctx context.Context, req *request) error {
	if len(req.args) > 0 {
		return r.statusForSource(ctx, req, req.args[0])
	}

	statuses := r.watch.Statuses()
	if len(statuses) == 0 {
		r.reply(ctx, req.chat, "No sources configured.")
		return nil
	}

	var b strings.Builder
	b.WriteString("Source status:\n")
	for _, st := range statuses {
		if st.LastSuccess.IsZero() {
			fmt.Fprintf(&b, "• %s: no successful poll yet", st.Name)
			if st.LastError != "" {
				fmt.Fprintf(&b, " (last error: %s)", st.LastError)
			}
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(&b, "• %s: %d models, polled %s ago", st.Name, st.ModelCount, humanAge(st.LastSuccess))
		if st.LastError != "" && st.LastErrorAt.After(st.LastSuccess) {
			fmt.Fprintf(&b, ", failing since %s ago: %s", humanAge(st.LastErrorAt), st.LastError)
		}
		b.WriteString("\n")
	}
	r.reply(ctx, req.chat, strings.TrimRight(b.String(), "\n"))
	return nil
}

func (r *Router) statusForSource(ctx context.Context, req *request, name string) error {
	models, ok := r.states.Snapshot(name)
	if !ok {
		r.reply(ctx, req.chat, fmt.Sprintf("No snapshot for %q yet.", name))
		return nil
	}

	names := make([]string, 0, len(models))
	tags := r.states.Tags()
	for _, m := range models {
		line := m.Name
		if line == "" {
			line = m.ID
		}
		if tag := tags.Lookup(m); tag != "" {
			line += " (" + tag + ")"
		}
		names = append(names, line)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d models\n", name, len(names))
	shown := names
	if len(shown) > maxStatusModels {
		shown = shown[:maxStatusModels]
	}
	for _, n := range shown {
		b.WriteString("• " + n + "\n")
	}
	if len(names) > len(shown) {
		fmt.Fprintf(&b, "… and %d more\n", len(names)-len(shown))
	}
	r.reply(ctx, req.chat, strings.TrimRight(b.String(), "\n"))
	return nil
}

func (r *Router) handleTag(ctx context.Context, req *request) error {
	if len(req.args) < 2 {
		r.reply(ctx, req.chat, "Usage: /tag <model> <text>")
		return nil
	}
	key := req.args[0]
	text := strings.Join(req.args[1:], " ")
	if err := r.states.SetTag(ctx, key, text); err != nil {
		return err
	}
	r.reply(ctx, req.chat, fmt.Sprintf("Tagged %q: %s", key, text))
	return nil
}

func (r *Router) handleUntag(ctx context.Context, req *request) error {
	if len(req.args) != 1 {
		r.reply(ctx, req.chat, "Usage: /untag <model>")
		return nil
	}
	key := req.args[0]
	was, err := r.states.ClearTag(ctx, key)
	if err != nil {
		return err
	}
	if !was {
		r.reply(ctx, req.chat, fmt.Sprintf("No tag on %q.", key))
		return nil
	}
	r.reply(ctx, req.chat, fmt.Sprintf("Untagged %q.", key))
	return nil
}

func (r *Router) handleHelp(ctx context.Context, req *request) error {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, name := range r.order {
		c := r.commands[name]
		fmt.Fprintf(&b, "%s - %s\n", c.usage, c.description)
	}
	r.reply(ctx, req.chat, strings.TrimRight(b.String(), "\n"))
	return nil
}

func humanAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
