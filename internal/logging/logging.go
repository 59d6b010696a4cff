// Package logging builds the container's ambient zerolog.Logger from a
// bootconfig.LoggingConfig. Console output is styled around this repo's own
// domain: a controller's state name, wherever it shows up as a field value,
// carries the same up/down/failed semantics a host reads off
// Controller.State() — not the request-latency palette a reverse proxy
// would want.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/nodalcore/container/internal/bootconfig"
)

type ctxKey string

// TransitionIDKey is the context key used to correlate log lines with a
// single install/start/stop call across goroutines.
const TransitionIDKey ctxKey = "transition_id"

// New builds a zerolog.Logger from cfg. The returned logger is ready to use
// as the container's ambient logger and to hand to Container.Config.Logger.
func New(cfg bootconfig.LoggingConfig) (zerolog.Logger, error) {
	output, outputFile, err := selectOutput(cfg.Output)
	if err != nil {
		return zerolog.Logger{}, err
	}

	if shouldUsePretty(cfg, outputFile) {
		output = buildConsoleWriter(output)
	}

	logger := zerolog.New(output).
		Level(cfg.ParseLevel()).
		With().
		Timestamp().
		Logger()

	return logger, nil
}

// selectOutput returns the output writer and, when the output is a regular
// file descriptor (stdout, stderr, or an opened file), the *os.File backing
// it so isatty detection can run.
func selectOutput(outputCfg string) (io.Writer, *os.File, error) {
	switch outputCfg {
	case "", "stdout":
		return os.Stdout, os.Stdout, nil
	case "stderr":
		return os.Stderr, os.Stderr, nil
	default:
		path := filepath.Clean(outputCfg)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: open output %s: %w", path, err)
		}
		return f, f, nil
	}
}

// shouldUsePretty decides whether to wrap output in a zerolog.ConsoleWriter.
func shouldUsePretty(cfg bootconfig.LoggingConfig, outputFile *os.File) bool {
	if cfg.Pretty {
		return true
	}

	switch cfg.Format {
	case "pretty":
		return true
	case "json":
		return false
	default:
		return outputFile != nil && isatty.IsTerminal(outputFile.Fd())
	}
}

const ansiReset = "\033[0m"

// levelColors abbreviates and colors zerolog's level strings. This part has
// nothing to do with the container domain — it's zerolog's own vocabulary —
// so it stays close to any console formatter built on zerolog.
var levelColors = map[string]string{
	"debug": "\033[36mDBG" + ansiReset,
	"info":  "\033[32mINF" + ansiReset,
	"warn":  "\033[33mWRN" + ansiReset,
	"error": "\033[31mERR" + ansiReset,
	"fatal": "\033[35mFTL" + ansiReset,
	"panic": "\033[35mPNC" + ansiReset,
}

// statePalette colors a controller.State's String() form wherever it shows
// up as a logged field value (the "from" and "to" fields controller.go
// logs on every transition): UP stands out green,
// START_FAILED stands out red, the transient Starting/Stopping states
// stand out yellow, and the terminal Down/Removed states render dim. A
// host scanning a pretty console transcript gets the same up/down/failed
// signal Controller.State() would give it programmatically.
var statePalette = map[string]string{
	"UP":           "\033[32m",
	"DOWN":         "\033[2m",
	"STARTING":     "\033[33m",
	"STOPPING":     "\033[33m",
	"START_FAILED": "\033[31m",
	"REMOVED":      "\033[2m",
}

// buildConsoleWriter builds a ConsoleWriter whose field coloring tracks
// this repo's own log vocabulary: service/transition_id as correlation
// keys rendered bold, state names colored by the semantics in
// statePalette, everything else dimmed the way a field label normally is.
func buildConsoleWriter(output io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:              output,
		TimeFormat:       "15:04:05",
		FormatLevel:      formatLevel,
		FormatMessage:    formatMessage,
		FormatFieldName:  formatFieldName,
		FormatFieldValue: formatFieldValue,
	}
}

func formatLevel(i interface{}) string {
	levelStr, ok := i.(string)
	if !ok {
		return ""
	}
	if colored, exists := levelColors[levelStr]; exists {
		return colored
	}
	return levelStr
}

func formatMessage(i interface{}) string {
	if i == nil {
		return ""
	}
	return fmt.Sprintf("-> %s", i)
}

// correlationFields are bolded rather than dimmed: they're the keys a host
// greps a log for to follow one service or one transition across lines,
// not incidental detail the way most fields are.
var correlationFields = map[string]bool{
	"service":       true,
	"transition_id": true,
	"run_id":        true,
}

func formatFieldName(i interface{}) string {
	name := fmt.Sprintf("%s", i)
	if correlationFields[name] {
		return fmt.Sprintf("\033[1m%s=\033[0m", name)
	}
	return fmt.Sprintf("\033[2m%s=\033[0m", name)
}

// formatFieldValue colors a field's value by statePalette when it matches a
// known controller state name, and passes everything else through
// unstyled (zerolog's default rendering already quotes/escapes it).
func formatFieldValue(i interface{}) string {
	val := fmt.Sprintf("%v", i)
	if color, ok := statePalette[val]; ok {
		return color + val + ansiReset
	}
	return val
}

// Scope attaches a transition_id field to logger, generating one if id is
// empty, and returns both the scoped logger and the id actually used.
// internal/installer calls this once per batch Install() so every
// controller built in that batch logs its transitions under the same id —
// there's no request context to carry the id through there, only the bare
// *zerolog.Logger a controller.Config takes.
func Scope(logger zerolog.Logger, id string) (zerolog.Logger, string) {
	if id == "" {
		id = uuid.New().String()
	}
	return logger.With().Str("transition_id", id).Logger(), id
}

// WithTransitionID is Scope's context-carrying counterpart, for call paths
// that do have a context to thread the id through. It stashes the id in ctx and returns ctx wrapped
// around the scoped logger via zerolog's own context carrier.
func WithTransitionID(ctx context.Context, logger zerolog.Logger, id string) context.Context {
	scoped, id := Scope(logger, id)
	ctx = context.WithValue(ctx, TransitionIDKey, id)
	return scoped.WithContext(ctx)
}

// TransitionID retrieves the transition id stashed in ctx, if any.
func TransitionID(ctx context.Context) string {
	if id, ok := ctx.Value(TransitionIDKey).(string); ok {
		return id
	}
	return ""
}
