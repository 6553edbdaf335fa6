// Package importer turns bank statement exports into journal drafts.
package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/model"
)

// StatementLine is one row of a bank statement. Amount is positive for money
// into the account and negative for money out.
type StatementLine struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Reference   string
	Type        string
}

// Parser converts a bank CSV file into statement lines.
type Parser interface {
	Parse(r io.Reader) ([]StatementLine, error)
	Format() string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// FileInfo describes a CSV file waiting in the import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&ChaseParser{})
	return r
}

// Drafts books each line against bankAccount, with offsetAccount taking the
// other side: deposits debit the bank, withdrawals credit it. Zero-amount
// lines carry no money and are skipped.
func Drafts(lines []StatementLine, bankAccount, offsetAccount int64) []model.Draft {
	var drafts []model.Draft
	for _, l := range lines {
		if l.Amount.IsZero() {
			continue
		}
		bankSide := model.Debit
		if l.Amount.IsNegative() {
			bankSide = model.Credit
		}
		amount := l.Amount.Abs()
		drafts = append(drafts, model.Draft{
			Date:        model.FormatDate(l.Date),
			Description: l.Description,
			Reference:   l.Reference,
			Entries: []model.EntryDraft{
				{AccountID: bankAccount, Amount: amount, EntryType: bankSide},
				{AccountID: offsetAccount, Amount: amount, EntryType: bankSide.Opposite()},
			},
		})
	}
	return drafts
}

// Dir is the project subdirectory scanned for statements.
const Dir = "import"

// processedDir is where statements go once posted.
var processedDir = filepath.Join(Dir, "processed")

// Scan returns CSV files in <projectDir>/import/.
func Scan(projectDir string) ([]FileInfo, error) {
	dir := filepath.Join(projectDir, Dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves a file from import/ to import/processed/. An earlier
// statement with the same name is never overwritten.
func MarkProcessed(projectDir, fileName string) error {
	src := filepath.Join(projectDir, Dir, fileName)
	dstDir := filepath.Join(projectDir, processedDir)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%s was already processed", fileName)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}
