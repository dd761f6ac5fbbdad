// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Log output formats.
const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

// zap has no level between info and debug, so verbose maps onto
// zap's debug level and our debug sits one below it.
const (
	zapVerbose = zapcore.DebugLevel
	zapDebug   = zapcore.DebugLevel - 1
)

// LoggerOptions configures [NewLoggerWithOptions].
type LoggerOptions struct {
	Verbosity int    // 0 = quiet, 1 = normal, 2 = verbose, 3 = debug
	Format    string // auto, console or json
	File      string // optional rotating JSON log file
}

// Logger writes levelled messages through zap.  The printf-style
// methods mirror the verbosity levels of the CLI's -v flag.
type Logger struct {
	mu         sync.Mutex
	level      LogLevel
	format     string
	output     io.Writer
	file       io.Writer
	timestamps bool // if true, prepend a wall-clock timestamp
	fields     []zap.Field
	z          *zap.Logger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug) to stderr.
func NewLogger(verbosity int) *Logger {
	return NewLoggerWithOptions(LoggerOptions{Verbosity: verbosity})
}

// NewLoggerWithOptions builds a Logger with an explicit format and an
// optional log file rotated by lumberjack.
func NewLoggerWithOptions(opts LoggerOptions) *Logger {
	l := &Logger{
		level:      LogLevel(opts.Verbosity),
		format:     opts.Format,
		output:     os.Stderr,
		timestamps: opts.Verbosity >= int(LogDebug), // auto-enable timestamps in debug mode
	}
	if l.format == "" {
		l.format = FormatAuto
	}
	if opts.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
		}
	}
	l.rebuild()
	return l
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps = on
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// With returns a child logger that attaches the given key/value pairs
// to every message.  Keys must be strings.
func (l *Logger) With(kv ...interface{}) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	child := &Logger{
		level:      l.level,
		format:     l.format,
		output:     l.output,
		file:       l.file,
		timestamps: l.timestamps,
		fields:     append(append([]zap.Field(nil), l.fields...), toFields(kv)...),
	}
	child.rebuild()
	return child
}

// Info prints when verbosity ≥ 1.  Tagged [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(zapcore.InfoLevel, format, args...)
}

// Warn prints when verbosity ≥ 1.  Tagged [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(zapcore.WarnLevel, format, args...)
}

// Verbose prints when verbosity ≥ 2.  Tagged [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.log(zapVerbose, format, args...)
}

// Debug prints when verbosity ≥ 3.  Tagged [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(zapDebug, format, args...)
}

// Error always prints regardless of verbosity.  Tagged [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(zapcore.ErrorLevel, format, args...)
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	l.mu.Lock()
	z := l.z
	l.mu.Unlock()
	return z.Sync()
}

func (l *Logger) log(lvl zapcore.Level, format string, args ...interface{}) {
	l.mu.Lock()
	z := l.z
	l.mu.Unlock()

	if !z.Core().Enabled(lvl) {
		return
	}
	if ce := z.Check(lvl, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write()
	}
}

// rebuild recreates the zap logger.  Callers hold l.mu (or own l
// exclusively during construction).
func (l *Logger) rebuild() {
	enabled := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= threshold(l.level)
	})

	encCfg := zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		EncodeLevel:      encodeLevel,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
		LineEnding:       zapcore.DefaultLineEnding,
	}
	if l.timestamps {
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}

	var enc zapcore.Encoder
	if l.useJSON() {
		encCfg.EncodeLevel = encodeLevelPlain
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(l.output)), enabled),
	}
	if l.file != nil {
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeLevel = encodeLevelPlain
		cores = append(cores,
			zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(l.file), enabled))
	}

	l.z = zap.New(zapcore.NewTee(cores...)).With(l.fields...)
}

// useJSON resolves the auto format: JSON when writing to a file or
// pipe, console text on an interactive terminal or an in-memory writer.
func (l *Logger) useJSON() bool {
	switch l.format {
	case FormatJSON:
		return true
	case FormatConsole:
		return false
	}
	if f, ok := l.output.(*os.File); ok {
		return !term.IsTerminal(int(f.Fd()))
	}
	return false
}

func threshold(level LogLevel) zapcore.Level {
	switch {
	case level <= LogQuiet:
		return zapcore.ErrorLevel
	case level == LogNormal:
		return zapcore.InfoLevel
	case level == LogVerbose:
		return zapVerbose
	default:
		return zapDebug
	}
}

func levelTag(lvl zapcore.Level) string {
	switch {
	case lvl >= zapcore.ErrorLevel:
		return "ERR"
	case lvl == zapcore.WarnLevel:
		return "WRN"
	case lvl == zapcore.InfoLevel:
		return "INF"
	case lvl == zapVerbose:
		return "VRB"
	default:
		return "DBG"
	}
}

func encodeLevel(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + levelTag(lvl) + "]")
}

func encodeLevelPlain(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(levelTag(lvl))
}

func toFields(kv []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, zap.Any(key, kv[i+1]))
	}
	return fields
}
