package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

const (
	indent   = "  "
	redacted = "[redacted]"
)

var (
	timeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	debugStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Message bodies are printed below the line they belong to.
var blockKeys = map[string]bool{
	"preview": true,
	"text":    true,
}

// Keys are compared lowercased with separators removed, so "api_hash",
// "apiHash" and "tg.session" all hit.
var secretKeys = map[string]bool{
	"token":    true,
	"session":  true,
	"password": true,
	"code":     true,
	"phone":    true,
	"apihash":  true,
	"sealkey":  true,
}

// Options configures a Handler.
type Options struct {
	Level slog.Level
	Color bool
}

// Handler writes one compact line per record. Secret attributes are
// replaced before formatting.
type Handler struct {
	w      io.Writer
	mu     *sync.Mutex
	opts   Options
	prefix string
	attrs  []slog.Attr
}

// NewHandler creates a handler writing to w.
func NewHandler(w io.Writer, opts *Options) *Handler {
	h := &Handler{w: w, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var line strings.Builder
	var blocks []string

	emit := func(key string, v slog.Value) {
		if blockKeys[key] {
			blocks = append(blocks, v.String())
			return
		}
		line.WriteByte(' ')
		line.WriteString(h.paint(keyStyle, key))
		line.WriteByte('=')
		line.WriteString(v.String())
	}
	for _, a := range h.attrs {
		walk("", a, emit)
	}
	r.Attrs(func(a slog.Attr) bool {
		walk(h.prefix, a, emit)
		return true
	})

	ts := r.Time.Format("2006-01-02 15:04:05")
	if h.opts.Color {
		ts = r.Time.Format("15:04:05")
	}

	var sb strings.Builder
	sb.WriteString(indent)
	sb.WriteString(h.paint(timeStyle, ts))
	sb.WriteByte(' ')
	sb.WriteString(h.level(r.Level))
	sb.WriteByte(' ')
	sb.WriteString(r.Message)
	sb.WriteString(line.String())
	sb.WriteByte('\n')

	bar := h.paint(timeStyle, "|")
	for _, text := range blocks {
		for _, l := range strings.Split(text, "\n") {
			sb.WriteString(indent + indent + bar + " " + l + "\n")
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		// Pre-qualify so a later WithGroup does not rename them.
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *Handler) paint(s lipgloss.Style, text string) string {
	if !h.opts.Color {
		return text
	}
	return s.Render(text)
}

func (h *Handler) level(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return h.paint(errStyle, "ERR")
	case l >= slog.LevelWarn:
		return h.paint(warnStyle, "WRN")
	case l >= slog.LevelInfo:
		return h.paint(infoStyle, "INF")
	default:
		return h.paint(debugStyle, "DBG")
	}
}

// walk flattens groups into dotted keys and redacts secrets on the way.
func walk(prefix string, a slog.Attr, emit func(key string, v slog.Value)) {
	v := a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, g := range v.Group() {
			walk(p, g, emit)
		}
		return
	}
	if isSecret(a.Key) && v.String() != "" {
		v = slog.StringValue(redacted)
	}
	emit(prefix+a.Key, v)
}

func isSecret(key string) bool {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	key = strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(key))
	return secretKeys[key]
}
