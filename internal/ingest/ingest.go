// Package ingest handles letter scan ingestion from a directory of PDF
// files named YYMMDD-part.pdf. One file is one transcribable page; all
// parts sharing a date form one document. Ingestion is idempotent:
// re-running a scan never duplicates documents or pages.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/jackzampolin/letterpress/internal/store"
)

// filenamePattern is the required scan naming scheme: a six digit date
// token and a part number, e.g. 430115-2.pdf.
var filenamePattern = regexp.MustCompile(`^(\d{6})-(\d+)\.pdf$`)

// Request contains the parameters for a directory scan.
type Request struct {
	Dir    string // directory of scanned PDFs
	Logger *slog.Logger
}

// Result tallies one scan pass.
type Result struct {
	Scanned   int // matching files seen
	Documents int // document rows created
	Pages     int // page rows created
	Skipped   int // non-matching or invalid files
}

// scanFile is one parsed, validated source file.
type scanFile struct {
	path      string
	date      string // YYYY-MM-DD
	label     string // original YYMMDD token
	partIndex int
	pdfPages  int
}

// Scan walks the source directory and creates document and page rows
// for every valid scan that is not already recorded.
func Scan(ctx context.Context, s *store.Store, req Request) (*Result, error) {
	log := req.Logger
	if log == nil {
		log = slog.Default()
	}

	entries, err := os.ReadDir(req.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scan directory: %w", err)
	}

	res := &Result{}
	var files []scanFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		sf, ok := parseFilename(entry.Name())
		if !ok {
			res.Skipped++
			continue
		}
		res.Scanned++
		sf.path = filepath.Join(req.Dir, entry.Name())

		pages, err := pageCount(sf.path)
		if err != nil {
			// A corrupt scan is skipped, not fatal to the pass.
			log.Warn("skipping invalid pdf", "file", entry.Name(), "error", err)
			res.Skipped++
			continue
		}
		sf.pdfPages = pages
		files = append(files, sf)
	}

	// Date then part order keeps row creation deterministic across runs.
	sort.Slice(files, func(i, j int) bool {
		if files[i].date != files[j].date {
			return files[i].date < files[j].date
		}
		return files[i].partIndex < files[j].partIndex
	})

	log.Info("scanning source directory", "dir", req.Dir, "files", len(files))

	docIDs := make(map[string]int64)
	for _, sf := range files {
		docID, ok := docIDs[sf.label]
		if !ok {
			if _, err := s.GetDocumentByLabel(ctx, sf.label); errors.Is(err, store.ErrNotFound) {
				res.Documents++
			}
			id, err := s.CreateDocument(ctx, sf.date, sf.label)
			if err != nil {
				return res, fmt.Errorf("failed to create document %s: %w", sf.label, err)
			}
			docID = id
			docIDs[sf.label] = docID
		}

		if _, err := s.PageIDBySource(ctx, sf.path); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return res, err
		}
		if _, err := s.CreatePage(ctx, docID, sf.partIndex, sf.path, sf.pdfPages); err != nil {
			return res, fmt.Errorf("failed to create page %s: %w", filepath.Base(sf.path), err)
		}
		res.Pages++
	}

	log.Info("scan complete",
		"scanned", res.Scanned,
		"documents", res.Documents,
		"pages", res.Pages,
		"skipped", res.Skipped)
	return res, nil
}

// parseFilename extracts date and part identity from a scan filename.
// The archive predates 2000, so the two digit year maps into the 1900s.
func parseFilename(name string) (scanFile, bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return scanFile{}, false
	}

	label := m[1]
	month, _ := strconv.Atoi(label[2:4])
	day, _ := strconv.Atoi(label[4:6])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return scanFile{}, false
	}

	part, err := strconv.Atoi(m[2])
	if err != nil || part < 1 {
		return scanFile{}, false
	}

	return scanFile{
		date:      fmt.Sprintf("19%s-%s-%s", label[0:2], label[2:4], label[4:6]),
		label:     label,
		partIndex: part,
	}, true
}

// pageCount opens a PDF and counts its pages, validating that the file
// is a readable PDF in the process. Overridable in tests.
var pageCount = func(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	count, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return count, nil
}
