// Package audit records one line per statement executed against the
// database: its kind, the table it touched, and whether it failed. It is
// intentionally separate from the slog-based operational logging the other
// engine packages use, so the operation trail can be kept, rotated, and
// forwarded independently of debug/trace logging noise.
package audit

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/RackSec/srslog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger appends audit entries to a rotating file and, optionally, forwards
// them to a syslog server.
type Logger struct {
	out    io.Writer
	sink   *log.Logger
	syslog *srslog.Writer
}

// NewNop returns a Logger that discards every entry, the default used by
// db.Open when the caller supplies no audit configuration.
func NewNop() *Logger {
	return &Logger{out: io.Discard, sink: log.New(io.Discard, "", 0)}
}

// Config describes where audit entries go.
type Config struct {
	// Path is the rotating log file's path. Empty disables file output.
	Path string
	// MaxSizeMB is the size at which the file is rotated.
	MaxSizeMB int
	// MaxBackups is the number of rotated files to keep.
	MaxBackups int
	// SyslogAddr, if set, also forwards every entry to a syslog server at
	// this address (e.g. "localhost:514") over UDP.
	SyslogAddr string
	// SyslogTag labels forwarded messages.
	SyslogTag string
}

// New builds a Logger from cfg. A zero Config is valid and behaves like
// NewNop for file output but still attempts syslog forwarding if SyslogAddr
// is set.
func New(cfg Config) (*Logger, error) {
	l := &Logger{out: io.Discard}

	if cfg.Path != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    maxOr(cfg.MaxSizeMB, 50),
			MaxBackups: maxOr(cfg.MaxBackups, 5),
			Compress:   true,
		}
		l.out = lj
	}
	l.sink = log.New(l.out, "", 0)

	if cfg.SyslogAddr != "" {
		tag := cfg.SyslogTag
		if tag == "" {
			tag = "skepadb"
		}
		w, err := srslog.Dial("udp", cfg.SyslogAddr, srslog.LOG_INFO|srslog.LOG_DAEMON, tag)
		if err != nil {
			return nil, fmt.Errorf("dial syslog: %w", err)
		}
		l.syslog = w
	}

	return l, nil
}

// Record appends one audit entry. err may be nil for a successful statement.
func (l *Logger) Record(kind, table string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	line := fmt.Sprintf("%s\tkind=%s\ttable=%s\tstatus=%s", time.Now().UTC().Format(time.RFC3339Nano), kind, table, status)
	if err != nil {
		line += fmt.Sprintf("\terror=%q", err.Error())
	}

	l.sink.Println(line)
	if l.syslog != nil {
		if err != nil {
			l.syslog.Err(line)
		} else {
			l.syslog.Info(line)
		}
	}
}

// Close releases the syslog connection, if any.
func (l *Logger) Close() error {
	if l.syslog != nil {
		return l.syslog.Close()
	}
	return nil
}

func maxOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
