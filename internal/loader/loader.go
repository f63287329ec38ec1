// Package loader reads the ingestion manifest and the documents it names.
package loader

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"go.uber.org/zap"

	"marketrag/internal/domain"
	"marketrag/internal/zlog"
)

// Skipped records a manifest entry that could not be read.
type Skipped struct {
	Source string
	Err    error
}

// Result is the outcome of loading a manifest.
type Result struct {
	Documents []domain.Document
	Skipped   []Skipped
}

// Loader reads documents relative to a root filesystem.
type Loader struct {
	fsys        fs.FS
	csvRowLimit int
}

// New returns a loader over fsys. Tables are truncated to csvRowLimit data rows.
func New(fsys fs.FS, csvRowLimit int) *Loader {
	if csvRowLimit <= 0 {
		csvRowLimit = 200
	}
	return &Loader{fsys: fsys, csvRowLimit: csvRowLimit}
}

// ParseManifest returns the non-empty, non-comment lines of r in order.
func ParseManifest(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan manifest: %w", err)
	}
	return out, nil
}

// LoadManifest reads the manifest at name and loads every entry.
// A missing manifest is an error; missing entries are skipped.
func (l *Loader) LoadManifest(name string) (Result, error) {
	f, err := l.fsys.Open(cleanPath(name))
	if err != nil {
		return Result{}, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	sources, err := ParseManifest(f)
	if err != nil {
		return Result{}, err
	}
	return l.Load(sources), nil
}

// Load reads each source in order. Unreadable sources are logged and skipped.
func (l *Loader) Load(sources []string) Result {
	var res Result
	for _, src := range sources {
		doc, err := l.Read(src)
		if err != nil {
			zlog.Warn("skipping source", zap.String("source", src), zap.Error(err))
			res.Skipped = append(res.Skipped, Skipped{Source: src, Err: err})
			continue
		}
		res.Documents = append(res.Documents, doc)
	}
	return res
}

// Read loads a single source. CSV tables are re-emitted as CSV text limited
// to the header plus the first rows; everything else is read as text with
// CRLF line endings folded to LF.
func (l *Loader) Read(source string) (domain.Document, error) {
	name := cleanPath(source)
	if !fs.ValidPath(name) {
		return domain.Document{}, domain.NewOpError("read source", source, domain.ErrIngestion, errors.New("path escapes root"))
	}
	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return domain.Document{}, domain.NewOpError("read source", source, domain.ErrIngestion, err)
	}
	content := strings.ReplaceAll(strings.ToValidUTF8(string(data), ""), "\r\n", "\n")
	if strings.EqualFold(path.Ext(name), ".csv") {
		content, err = l.tableText(data)
		if err != nil {
			return domain.Document{}, domain.NewOpError("parse table", source, domain.ErrIngestion, err)
		}
	}
	return domain.Document{Source: source, Content: content}, nil
}

func (l *Loader) tableText(data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for rows := 0; rows <= l.csvRowLimit; rows++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func cleanPath(p string) string {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "./")
}
