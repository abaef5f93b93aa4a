// Package logging builds the bot's two log channels. Each channel writes
// everything down to trace level into a dated file and a summary from info
// level up to the console.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ChannelControl       = "Control"
	ChannelDirectMessage = "DirectMessage"
)

func init() {
	// Loggers filter per sink; the global level must not drop trace events.
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
}

// Options configures a channel.
type Options struct {
	Dir        string    // directory for the dated log files
	Suffix     string    // file suffix, e.g. ".log" or ".dms.log"
	Console    io.Writer // defaults to os.Stderr
	MaxSizeMB  int
	MaxBackups int
	Now        func() time.Time
}

// Channel is a named logger together with its durable sink.
type Channel struct {
	zerolog.Logger
	file io.WriteCloser
}

// Close flushes and closes the file sink.
func (c *Channel) Close() error {
	if c.file == nil {
		return nil
	}
	return c.file.Close()
}

// New opens a channel named name.
func New(name string, opts Options) (*Channel, error) {
	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Suffix == "" {
		opts.Suffix = ".log"
	}
	if opts.MaxSizeMB == 0 {
		opts.MaxSizeMB = 50
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, opts.Now().Format("2006-01-02")+opts.Suffix),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}

	console := zerolog.ConsoleWriter{Out: opts.Console, TimeFormat: time.DateTime}
	return &Channel{
		Logger: NewLogger(name, file, console),
		file:   file,
	}, nil
}

// NewLogger tees trace-level output to durable and info-level output to
// console.
func NewLogger(name string, durable, console io.Writer) zerolog.Logger {
	w := zerolog.MultiLevelWriter(
		&zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: durable},
			Level:  zerolog.TraceLevel,
		},
		&zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: console},
			Level:  zerolog.InfoLevel,
		},
	)
	return zerolog.New(w).With().Timestamp().Str("channel", name).Logger()
}
