package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf/v2"

	"transcript-parser/internal/domain"
)

const (
	caseIDPrefix = "CS"
	caseIDSuffix = "0001"
	sourceTag    = "transcript_parser"
	pdfTitle     = "Customer Service Summary"
)

// Payload is the nested JSON artifact derived from a case record.
type Payload struct {
	CaseID   string `json:"case_id"`
	Customer struct {
		Name    string `json:"name"`
		Contact string `json:"contact"`
	} `json:"customer"`
	Order struct {
		Number       string `json:"number"`
		Product      string `json:"product"`
		PurchaseDate string `json:"purchase_date"`
	} `json:"order"`
	Issue struct {
		Description         string `json:"description"`
		PreferredResolution string `json:"preferred_resolution"`
	} `json:"issue"`
	Source    string `json:"source"`
	CreatedAt string `json:"created_at"`
}

// Writer renders case records into the fixed output artifacts,
// overwriting any previous run's files.
type Writer struct {
	jsonPath string
	pdfPath  string
	now      func() time.Time
}

func NewWriter(jsonPath, pdfPath string) *Writer {
	return &Writer{jsonPath: jsonPath, pdfPath: pdfPath, now: time.Now}
}

// JSONPath returns where GenerateJSON writes its artifact.
func (w *Writer) JSONPath() string { return w.jsonPath }

// PDFPath returns where GeneratePDF writes its artifact.
func (w *Writer) PDFPath() string { return w.pdfPath }

// GenerateJSON builds the nested payload, writes it to the fixed JSON path
// and returns it for display. The record itself is never mutated.
func (w *Writer) GenerateJSON(record domain.CaseRecord) (Payload, error) {
	now := w.now()
	var p Payload
	p.CaseID = fmt.Sprintf("%s-%s-%s", caseIDPrefix, now.Format("20060102"), caseIDSuffix)
	p.Customer.Name = record.CustomerName
	p.Customer.Contact = record.ContactInfo
	p.Order.Number = record.OrderNumber
	p.Order.Product = record.ProductName
	p.Order.PurchaseDate = record.DateOfPurchase
	p.Issue.Description = record.IssueDescription
	p.Issue.PreferredResolution = record.PreferredResolution
	p.Source = sourceTag
	p.CreatedAt = now.Format(time.RFC3339)

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return Payload{}, err
	}
	if err := os.MkdirAll(filepath.Dir(w.jsonPath), 0o755); err != nil {
		return Payload{}, fmt.Errorf("ensure output directory: %w", err)
	}
	if err := os.WriteFile(w.jsonPath, data, 0o644); err != nil {
		return Payload{}, fmt.Errorf("write json artifact: %w", err)
	}
	return p, nil
}

// GeneratePDF renders one "key: value" line per case field onto a single
// page and writes it to the fixed PDF path.
func (w *Writer) GeneratePDF(record domain.CaseRecord) error {
	if err := os.MkdirAll(filepath.Dir(w.pdfPath), 0o755); err != nil {
		return fmt.Errorf("ensure output directory: %w", err)
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(pdfTitle, false)
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)
	for _, f := range record.Fields() {
		pdf.MultiCell(190, 10, fmt.Sprintf("%s: %s", f.Key, f.Value), "", "L", false)
	}
	if err := pdf.OutputFileAndClose(w.pdfPath); err != nil {
		return fmt.Errorf("write pdf artifact: %w", err)
	}
	return nil
}
