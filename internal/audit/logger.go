package audit

import (
	"sort"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/charmbracelet/log"
)

// watermillLogger adapts a charmbracelet logger to watermill.LoggerAdapter.
// Watermill's chatty debug and trace output goes to debug level.
type watermillLogger struct {
	l      *log.Logger
	fields watermill.LogFields
}

func newWatermillLogger(l *log.Logger) watermill.LoggerAdapter {
	return &watermillLogger{l: l}
}

func (w *watermillLogger) kv(fields watermill.LogFields) []any {
	merged := w.fields.Add(fields)
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		out = append(out, k, merged[k])
	}
	return out
}

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.l.Error(msg, append(w.kv(fields), "err", err)...)
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.l.Debug(msg, w.kv(fields)...)
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.l.Debug(msg, w.kv(fields)...)
}

func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.l.Debug(msg, w.kv(fields)...)
}

func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{l: w.l, fields: w.fields.Add(fields)}
}
