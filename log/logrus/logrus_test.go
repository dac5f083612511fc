package logrus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/firequery"
)

func TestLoggerTagsComponentAndFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	l.Debug("entry evicted", firequery.Fields{"key": "k1"})
	l.Error("invalidate failed", nil)

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first := entries[0]
	if first.Level != logrus.DebugLevel || first.Message != "entry evicted" {
		t.Fatalf("unexpected entry: %+v", first)
	}
	if first.Data["key"] != "k1" || first.Data["component"] != "firequery" {
		t.Fatalf("unexpected data: %v", first.Data)
	}
	if entries[1].Level != logrus.ErrorLevel || len(entries[1].Data) != 1 {
		t.Fatalf("unexpected entry: %+v", entries[1])
	}
}
