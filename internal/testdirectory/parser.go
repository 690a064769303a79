// Package testdirectory parses test directory releases and reconciles the
// store's live associations against them.
package testdirectory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/genepanel-curator/internal/domain"
)

// hgncPrefix marks a panel-list entry that is a bare gene id rather than an
// external panel reference.
const hgncPrefix = "HGNC:"

type tdFile struct {
	ConfigSource string       `json:"config_source"`
	Date         string       `json:"date"`
	Indications  []tdIndEntry `json:"indications"`
	SourceFile   string       `json:"td_source,omitempty"`
}

type tdIndEntry struct {
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	GeminiName string   `json:"gemini_name,omitempty"`
	TestMethod string   `json:"test_method,omitempty"`
	Panels     []string `json:"panels"`
}

// Parse decodes one exported test directory release. Unknown wire fields are
// rejected rather than absorbed; the release label comes from the caller
// since the export format does not carry it.
func Parse(r io.Reader, release string) (*domain.TestDirectory, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var raw tdFile
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}

	td := &domain.TestDirectory{
		Release:      release,
		SourceFile:   raw.SourceFile,
		ConfigSource: raw.ConfigSource,
		Date:         raw.Date,
		Indications:  make([]domain.TDIndication, 0, len(raw.Indications)),
	}
	for _, ind := range raw.Indications {
		panels := make([]string, 0, len(ind.Panels))
		for _, p := range ind.Panels {
			p = strings.TrimSpace(p)
			if p != "" {
				panels = append(panels, p)
			}
		}
		td.Indications = append(td.Indications, domain.TDIndication{
			Code:       strings.TrimSpace(ind.Code),
			Name:       strings.TrimSpace(ind.Name),
			GeminiName: ind.GeminiName,
			TestMethod: ind.TestMethod,
			Panels:     panels,
		})
	}

	if err := td.Validate(); err != nil {
		return nil, err
	}
	return td, nil
}

// ParseFile is Parse over a file on disk, recording the file name as the
// release's source when the export itself does not name one.
func ParseFile(path, release string) (*domain.TestDirectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open test directory export: %w", err)
	}
	defer f.Close()

	td, err := Parse(f, release)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if td.SourceFile == "" {
		td.SourceFile = filepath.Base(path)
	}
	return td, nil
}

func isGeneEntry(entry string) bool {
	return strings.HasPrefix(entry, hgncPrefix)
}
