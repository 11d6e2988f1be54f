package webhook

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/omnidesk/omnidesk/internal/channel"
)

// Events without a platform id bypass the ledger entirely: never seen,
// never recorded.
func TestEmptyEventIDBypassesLedger(t *testing.T) {
	d := NewDeduplicator(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	seen, err := d.Seen(context.Background(), channel.SourceTelegram, "")
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if seen {
		t.Error("empty event id reported as seen")
	}

	if err := d.Record(context.Background(), channel.SourceTelegram, "", "message", nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
}
