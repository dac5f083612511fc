// Package zap adapts a *zap.Logger to firequery.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/firequery"
)

var _ firequery.Logger = Logger{}

// Logger writes cache events to L. Fields are emitted in key order.
type Logger struct{ L *zap.Logger }

// New names the logger "firequery" so its entries are easy to filter.
func New(l *zap.Logger) Logger { return Logger{L: l.Named("firequery")} }

func (z Logger) Debug(msg string, f firequery.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f firequery.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f firequery.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f firequery.Fields) { z.L.Error(msg, fields(f)...) }

func fields(f firequery.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
