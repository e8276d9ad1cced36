package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/codetrail/codetrail/internal/ledger/domain/entry"
	"github.com/codetrail/codetrail/internal/ledger/storage"
	apperrors "github.com/codetrail/codetrail/internal/platform/errors"
)

// exportVersion identifies the export envelope layout.
const exportVersion = 1

// ExportBundle is the portable envelope for ledger entries.
type ExportBundle struct {
	Version    int           `json:"version"`
	ExportedAt time.Time     `json:"exportedAt"`
	Entries    []entry.Entry `json:"entries"`
}

// Export writes every entry matching q to w as a JSON bundle, oldest first.
// The bundle carries entries verbatim so Import can restore them losslessly.
func (l *Ledger) Export(ctx context.Context, w io.Writer, q storage.ListQuery) (int, error) {
	if w == nil {
		return 0, fmt.Errorf("export writer is required")
	}

	q.Ascending = true
	entries, err := l.Query(ctx, q)
	if err != nil {
		return 0, err
	}

	bundle := ExportBundle{
		Version:    exportVersion,
		ExportedAt: l.now().UTC().Truncate(time.Millisecond),
		Entries:    entries,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bundle); err != nil {
		return 0, fmt.Errorf("encode export bundle: %w", err)
	}
	return len(entries), nil
}

// Import reads a bundle from r and appends its entries in order, preserving
// their ids, timestamps and sequences. The sequence counter advances past the
// highest imported sequence so later appends stay monotonic.
func (l *Ledger) Import(ctx context.Context, r io.Reader) (int, error) {
	if l == nil {
		return 0, fmt.Errorf("ledger is not configured")
	}
	if r == nil {
		return 0, apperrors.New(apperrors.CodeImportInvalid, "import reader is required")
	}

	var bundle ExportBundle
	dec := json.NewDecoder(r)
	if err := dec.Decode(&bundle); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeImportInvalid, "decode import bundle", err)
	}
	if bundle.Version != exportVersion {
		return 0, apperrors.New(apperrors.CodeImportInvalid,
			fmt.Sprintf("unsupported bundle version %d", bundle.Version))
	}
	for i, e := range bundle.Entries {
		if !e.Type.IsValid() {
			return 0, apperrors.New(apperrors.CodeImportInvalid,
				fmt.Sprintf("entry %d has an empty type", i))
		}
	}

	imported := 0
	for _, e := range bundle.Entries {
		if _, err := l.Append(ctx, e); err != nil {
			return imported, err
		}
		imported++
	}
	if err := l.Flush(ctx); err != nil {
		return imported, err
	}
	return imported, nil
}
