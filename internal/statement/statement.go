// Package statement renders an account's record history as a PDF or XLSX
// document.
package statement

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/tealeg/xlsx"

	"payportal/models"
)

// Format is an output document type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

// ParseFormat defaults to PDF when s is empty.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatPDF:
		return FormatPDF, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported statement format %q", s)
	}
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/pdf"
}

// Statement is the data behind one document.
type Statement struct {
	Owner       *models.Account
	Kind        models.Kind
	Records     []models.RecordView
	GeneratedAt time.Time
}

// Filename suggests a download name.
func (s Statement) Filename(f Format) string {
	return fmt.Sprintf("%s-statement-%s-%s.%s",
		s.Kind, s.Owner.AccountNumber, s.GeneratedAt.Format("20060102"), f)
}

var header = []string{"Date", "Direction", "Counterparty", "Account", "SWIFT", "Amount", "Currency", "Status"}

func (s Statement) rows() [][]string {
	out := make([][]string, 0, len(s.Records))
	for _, r := range s.Records {
		counterparty := r.Recipient
		if r.Direction == models.DirectionIncoming {
			counterparty = r.Sender
		}
		out = append(out, []string{
			r.CreatedAt.Format("2006-01-02 15:04"),
			string(r.Direction),
			strings.TrimSpace(counterparty.Name + " " + counterparty.Surname),
			counterparty.AccountNumber,
			r.SwiftCode,
			r.Amount.StringFixed(2),
			r.Currency,
			string(r.Status),
		})
	}
	return out
}

func title(k models.Kind) string {
	if k == "" {
		return ""
	}
	return strings.ToUpper(string(k[:1])) + string(k[1:])
}

// Render writes the statement to w in format f.
func Render(w io.Writer, f Format, s Statement) error {
	switch f {
	case FormatPDF:
		return renderPDF(w, s)
	case FormatXLSX:
		return renderXLSX(w, s)
	default:
		return fmt.Errorf("unsupported statement format %q", f)
	}
}

var pdfWidths = []float64{30, 22, 40, 26, 26, 22, 16, 20}

func renderPDF(w io.Writer, s Statement) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, fmt.Sprintf("%s statement", title(s.Kind)))
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(40, 6, fmt.Sprintf("%s %s  |  Account %s  |  Balance %s",
		s.Owner.Name, s.Owner.Surname, s.Owner.AccountNumber, s.Owner.Balance.StringFixed(2)))
	pdf.Ln(6)
	pdf.Cell(40, 6, "Generated "+s.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	for i, h := range header {
		pdf.CellFormat(pdfWidths[i], 7, h, "1", 0, "", false, 0, "")
	}
	pdf.Ln(7)

	pdf.SetFont("Arial", "", 10)
	for _, row := range s.rows() {
		for i, v := range row {
			pdf.CellFormat(pdfWidths[i], 7, v, "1", 0, "", false, 0, "")
		}
		pdf.Ln(7)
	}

	return pdf.Output(w)
}

func renderXLSX(w io.Writer, s Statement) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(title(s.Kind) + "s")
	if err != nil {
		return err
	}

	row := sheet.AddRow()
	for _, h := range header {
		row.AddCell().SetValue(h)
	}
	for _, values := range s.rows() {
		row = sheet.AddRow()
		for _, v := range values {
			row.AddCell().SetValue(v)
		}
	}

	return file.Write(w)
}
