// Package leads converts between CSV files and the generator's Lead and
// GeneratedEmail records.
package leads

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"hypersales/generator"
)

// Column names of the ingestion contract.
const (
	ColName    = "NAME"
	ColCompany = "COMPANY NAME"
	ColProduct = "PRODUCT DESCRIPTION"
	ColEmail   = "EMAIL"
)

// ExportFilename is the suggested attachment name for exported emails.
const ExportFilename = "personalized_emails.csv"

const utf8BOM = "\ufeff"

var exportHeader = []string{"Recipient Name", "Recipient Company", "Subject", "Email Body"}

var (
	// ErrMissingColumns is returned when the header lacks NAME or COMPANY NAME.
	ErrMissingColumns = errors.New("csv header must include NAME and COMPANY NAME columns")
	// ErrNothingToExport is returned by Export for an empty list.
	ErrNothingToExport = errors.New("no emails to export")
)

// Rejected describes one dropped row.
type Rejected struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Report 统计有效行数，用于 "N of M valid" 提示。
type Report struct {
	Valid    int        `json:"valid"`
	Total    int        `json:"total"`
	Rejected []Rejected `json:"rejected,omitempty"`
}

func (r Report) String() string {
	return fmt.Sprintf("%d of %d valid", r.Valid, r.Total)
}

// Ingest 读取 CSV 并映射为 Lead。缺少 NAME 或 COMPANY NAME 的行被丢弃并计入 Report。
func Ingest(r io.Reader) ([]generator.Lead, Report, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, Report{}, ErrMissingColumns
	}
	if err != nil {
		return nil, Report{}, fmt.Errorf("read csv header: %w", err)
	}
	cols := indexColumns(header)
	if _, ok := cols[ColName]; !ok {
		return nil, Report{}, ErrMissingColumns
	}
	if _, ok := cols[ColCompany]; !ok {
		return nil, Report{}, ErrMissingColumns
	}

	var (
		out    []generator.Lead
		report Report
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, Report{}, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if blankRecord(rec) {
			continue
		}
		report.Total++

		lead := generator.Lead{
			Name:               field(rec, cols, ColName),
			CompanyName:        field(rec, cols, ColCompany),
			ProductDescription: field(rec, cols, ColProduct),
			Email:              field(rec, cols, ColEmail),
		}
		if err := lead.Validate(); err != nil {
			report.Rejected = append(report.Rejected, Rejected{Line: line, Reason: err.Error()})
			continue
		}
		out = append(out, lead)
		report.Valid++
	}
	return out, report, nil
}

// Filter 对直接提交的 Lead 列表套用与 Ingest 相同的校验规则。
// Line in the returned report is the 1-based position in leads.
func Filter(in []generator.Lead) ([]generator.Lead, Report) {
	out := make([]generator.Lead, 0, len(in))
	report := Report{Total: len(in)}
	for i, l := range in {
		l = generator.Lead{
			Name:               strings.TrimSpace(l.Name),
			CompanyName:        strings.TrimSpace(l.CompanyName),
			ProductDescription: strings.TrimSpace(l.ProductDescription),
			Email:              strings.TrimSpace(l.Email),
		}
		if err := l.Validate(); err != nil {
			report.Rejected = append(report.Rejected, Rejected{Line: i + 1, Reason: err.Error()})
			continue
		}
		out = append(out, l)
		report.Valid++
	}
	return out, report
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		key := strings.ToUpper(strings.TrimSpace(h))
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	return cols
}

func field(rec []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

var lineBreak = regexp.MustCompile(`\r\n|\r|\n`)

// flattenLine 把每个换行（\r\n、\r 或 \n）替换为一个空格，导出为单行记录。
// 这一步有损：多行文本无法从导出文件中还原。
func flattenLine(s string) string {
	return lineBreak.ReplaceAllString(s, " ")
}

// Export 按列表顺序写出 Recipient Name, Recipient Company, Subject, Email Body。
func Export(w io.Writer, emails []generator.GeneratedEmail) error {
	if len(emails) == 0 {
		return ErrNothingToExport
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, e := range emails {
		row := []string{e.Lead.Name, e.Lead.CompanyName, flattenLine(e.Subject), flattenLine(e.Body)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportBytes is Export into a byte slice.
func ExportBytes(emails []generator.GeneratedEmail) ([]byte, error) {
	var buf bytes.Buffer
	if err := Export(&buf, emails); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportRecord is one row of an exported file.
type ExportRecord struct {
	RecipientName    string
	RecipientCompany string
	Subject          string
	Body             string
}

// ReadExport 读取 Export 生成的文件。
func ReadExport(r io.Reader) ([]ExportRecord, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	cols := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		cols[strings.TrimSpace(h)] = i
	}
	for _, h := range exportHeader {
		if _, ok := cols[h]; !ok {
			return nil, fmt.Errorf("export header missing %q", h)
		}
	}
	out := make([]ExportRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		out = append(out, ExportRecord{
			RecipientName:    row[cols["Recipient Name"]],
			RecipientCompany: row[cols["Recipient Company"]],
			Subject:          row[cols["Subject"]],
			Body:             row[cols["Email Body"]],
		})
	}
	return out, nil
}

// SampleCSV 返回带三条示例的模板文件。
func SampleCSV() []byte {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.WriteAll([][]string{
		{ColName, ColCompany, ColProduct, ColEmail},
		{"Jane Smith", "XYZ Corp", "Software Development", ""},
		{"John Doe", "ABC Inc", "Digital Marketing", ""},
		{"Sarah Johnson", "123 Solutions", "Cloud Services", ""},
	})
	return buf.Bytes()
}
