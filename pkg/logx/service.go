package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ---- Service (dynamic config + sinks) ----

type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // stores zerolog.Logger

	file *lumberjack.Logger

	// journal forwarding
	jQueue  chan journalItem
	jOnce   sync.Once
	jCancel context.CancelFunc
	jWG     sync.WaitGroup
	send    func(msg string, p journal.Priority, vars map[string]string) error

	// guarded by mu
	limiter  *rate.Limiter
	minLevel zerolog.Level
}

type journalItem struct {
	msg  string
	pri  journal.Priority
	vars map[string]string
}

// New creates the logging service, applies the initial config immediately,
// and returns both the Service and a root Logger.
func New(cfg Config) (*Service, Logger) {
	s := &Service{
		cfg:    cfg,
		jQueue: make(chan journalItem, 256),
		send:   journal.Send,
	}

	// Safe bootstrap root.
	boot := newConsoleRoot(parseLevel(cfg.Level, zerolog.InfoLevel))
	s.root.Store(boot)

	// Apply immediately.
	s.Apply(cfg)

	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	v := s.root.Load()
	if v == nil {
		return zerolog.Nop()
	}
	zl, ok := v.(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	cancel := s.jCancel
	s.jCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.jWG.Wait()
	}
	if f != nil {
		_ = f.Close()
	}
	return nil
}

// Apply swaps logger outputs/levels at runtime.
// It is safe to call concurrently.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg

	s.minLevel = parseLevel(cfg.Journal.MinLevel, zerolog.WarnLevel)
	rps := max(1, cfg.Journal.RatePerSec)
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)

	// Close previous file (if any).
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	lvl := parseLevel(cfg.Level, zerolog.InfoLevel)

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(Stdout()))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./tickd.log"
		}
		f := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		// Open eagerly so a bad path is reported now, not on the first record.
		if _, err := f.Write(nil); err != nil {
			fmt.Fprintf(os.Stderr, "logx: failed opening log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, f)
		}
	}

	if cfg.Journal.Enabled {
		if !journal.Enabled() {
			fmt.Fprintln(os.Stderr, "logx: journal logging enabled but the systemd journal socket is not available")
		} else {
			// Start worker once.
			s.jOnce.Do(func() {
				ctx, cancel := context.WithCancel(context.Background())
				s.jCancel = cancel
				s.jWG.Add(1)
				go func() {
					defer s.jWG.Done()
					s.journalWorker(ctx)
				}()
			})
			writers = append(writers, &journalWriter{svc: s})
		}
	}

	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(Stdout()))
	}

	mw := zerolog.MultiLevelWriter(writers...)
	zl := zerolog.New(mw).Level(lvl).With().Timestamp().Logger()
	// Store as current root.
	s.root.Store(zl)
}

func newConsoleRoot(lvl zerolog.Level) zerolog.Logger {
	cw := newConsoleWriter(Stdout())
	return zerolog.New(cw).Level(lvl).With().Timestamp().Logger()
}

func newConsoleWriter(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	// Keep caller short and stable.
	cw.FormatCaller = func(i interface{}) string {
		s, _ := i.(string)
		if s == "" {
			return ""
		}
		return s
	}
	return cw
}

func (s *Service) journalWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.jQueue:
			_ = s.send(it.msg, it.pri, it.vars)
		}
	}
}

func (s *Service) enqueueJournal(it journalItem) {
	// Never block core logging.
	select {
	case s.jQueue <- it:
	default:
		// drop
	}
}

// ---- Journal writer (zerolog sink) ----

type journalWriter struct{ svc *Service }

func (w *journalWriter) Write(p []byte) (int, error) {
	// Default to info when WriteLevel isn't used.
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *journalWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	if s == nil {
		return len(p), nil
	}

	s.mu.Lock()
	lim := s.limiter
	min := s.minLevel
	s.mu.Unlock()

	if lim == nil || level < min {
		return len(p), nil
	}
	if !lim.Allow() {
		return len(p), nil
	}

	msg, vars := journalRecord(p)
	if msg == "" {
		return len(p), nil
	}
	s.enqueueJournal(journalItem{msg: msg, pri: journalPriority(level), vars: vars})
	return len(p), nil
}

// journalRecord splits a zerolog JSON line into the journal MESSAGE and
// upper-cased structured fields.
func journalRecord(p []byte) (string, map[string]string) {
	var m map[string]any
	if err := json.Unmarshal(bytesTrimSpace(p), &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), 3500), nil
	}
	msg, _ := m["message"].(string)
	vars := make(map[string]string, len(m))
	for k, v := range m {
		if k == "message" || k == "time" || k == "level" {
			continue
		}
		key := journalKey(k)
		if key == "" {
			continue
		}
		vars[key] = truncate(fmt.Sprint(v), 2000)
	}
	return msg, vars
}

// journalKey maps a field name onto the journal's [A-Z0-9_] alphabet.
// Keys may not start with an underscore (reserved for trusted fields).
func journalKey(k string) string {
	var b strings.Builder
	for _, r := range k {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), "_")
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		return ""
	}
	return out
}

func journalPriority(level zerolog.Level) journal.Priority {
	switch {
	case level >= zerolog.ErrorLevel:
		return journal.PriErr
	case level == zerolog.WarnLevel:
		return journal.PriWarning
	case level == zerolog.InfoLevel:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

func bytesTrimSpace(b []byte) []byte {
	i := 0
	j := len(b)
	for i < j && (b[i] == ' ' || b[i] == '\n' || b[i] == '\r' || b[i] == '\t') {
		i++
	}
	for j > i && (b[j-1] == ' ' || b[j-1] == '\n' || b[j-1] == '\r' || b[j-1] == '\t') {
		j--
	}
	return b[i:j]
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Stdout is where console records go.
func Stdout() io.Writer { return os.Stdout }
