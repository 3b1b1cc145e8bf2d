package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
)

// EnvLevel names the environment variable that overrides the log level.
const EnvLevel = "COUNTRIES_LOG"

// InitLogger sets up Apex with a Handler writing to stderr. The level comes
// from COUNTRIES_LOG, falling back to defaultLevel.
func InitLogger(defaultLevel string) {
	level := strings.ToUpper(os.Getenv(EnvLevel))
	if level == "" {
		level = strings.ToUpper(defaultLevel)
	}
	log.SetHandler(NewHandler(os.Stderr))
	parsed, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		log.SetLevel(log.InfoLevel)
		log.Warnf("unknown log level %q, using info", level)
		return
	}
	log.SetLevel(parsed)
}

// Handler formats log entries as single lines.
type Handler struct {
	mu sync.Mutex
	w  io.Writer
}

// NewHandler returns a Handler writing to w.
func NewHandler(w io.Writer) *Handler {
	return &Handler{w: w}
}

// HandleLog implements the log.Handler interface
func (h *Handler) HandleLog(e *log.Entry) error {
	timestamp := e.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	level := strings.ToUpper(e.Level.String())

	var b strings.Builder
	fmt.Fprintf(&b, "%s %.1s %s", timestamp.Format("2006-01-02 15:04:05"), level, e.Message)

	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%v", name, e.Fields[name])
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}
