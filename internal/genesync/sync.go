// Package genesync applies bulk HGNC symbol updates to stored genes. It is
// a maintenance pass separate from panel import; nothing else may rewrite a
// gene's display fields.
package genesync

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/genepanel-curator/internal/domain"
	"github.com/genepanel-curator/internal/store"
)

// Syncer applies symbol records against the store.
type Syncer struct {
	store *store.Store
	log   *logrus.Logger
}

// Result summarizes one sync pass.
type Result struct {
	Updated   int
	Unchanged int
	Unknown   int
}

// New creates a gene symbol syncer.
func New(s *store.Store, logger *logrus.Logger) *Syncer {
	return &Syncer{store: s, log: logger}
}

// Apply updates every stored gene named in records, in one transaction. A
// record for a gene the store has never seen is counted and logged; sync
// never creates genes. Every changed row gets a history note; a symbol
// change names old and new, a list-only change names the standing symbol.
func (sy *Syncer) Apply(ctx context.Context, records []domain.SymbolRecord) (*Result, error) {
	result := &Result{}
	err := sy.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, rec := range records {
			if rec.HGNCID == "" {
				continue
			}

			gene, err := tx.GeneByHGNC(ctx, rec.HGNCID)
			if err != nil {
				if domain.IsNotFound(err) {
					result.Unknown++
					sy.log.WithField("hgnc_id", rec.HGNCID).Debug("Symbol record for unknown gene")
					continue
				}
				return err
			}

			if gene.Symbol == rec.ApprovedSymbol &&
				equalSets(gene.AliasSymbols, rec.AliasSymbols) &&
				equalSets(gene.PreviousSymbols, rec.PreviousSymbols) {
				result.Unchanged++
				continue
			}

			if err := tx.UpdateGeneSymbols(ctx, gene.ID, rec.ApprovedSymbol, rec.AliasSymbols, rec.PreviousSymbols); err != nil {
				return err
			}
			note := domain.NoteSymbolListsChanged(gene.Symbol)
			if gene.Symbol != rec.ApprovedSymbol {
				note = domain.NoteSymbolChanged(gene.Symbol, rec.ApprovedSymbol)
			}
			if err := tx.AddGeneHistory(ctx, gene.ID, note, "hgnc_sync"); err != nil {
				return err
			}
			result.Updated++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sy.log.WithFields(logrus.Fields{
		"updated":   result.Updated,
		"unchanged": result.Unchanged,
		"unknown":   result.Unknown,
	}).Info("Gene symbol sync complete")
	return result, nil
}

// ParseTSV reads the HGNC bulk download format: tab-separated with a header
// line naming hgnc_id, symbol, alias_symbol and prev_symbol columns.
// Multi-valued columns are pipe-delimited within the cell.
func ParseTSV(r io.Reader) ([]domain.SymbolRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read symbol file header: %w", err)
		}
		return nil, fmt.Errorf("%w: symbol file is empty", domain.ErrMalformedPayload)
	}

	cols := map[string]int{}
	for i, name := range strings.Split(scanner.Text(), "\t") {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"hgnc_id", "symbol"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: symbol file missing %q column", domain.ErrMalformedPayload, required)
		}
	}

	var records []domain.SymbolRecord
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		rec := domain.SymbolRecord{
			HGNCID:          cell(fields, cols, "hgnc_id"),
			ApprovedSymbol:  cell(fields, cols, "symbol"),
			AliasSymbols:    multiCell(fields, cols, "alias_symbol"),
			PreviousSymbols: multiCell(fields, cols, "prev_symbol"),
		}
		if rec.HGNCID == "" {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read symbol file: %w", err)
	}
	return records, nil
}

func cell(fields []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func multiCell(fields []string, cols map[string]int, name string) []string {
	raw := cell(fields, cols, name)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.Trim(p, `"`))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
