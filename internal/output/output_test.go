package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcript-parser/internal/domain"
)

func testRecord() domain.CaseRecord {
	return domain.CaseRecord{
		CustomerName:        "Jane Doe",
		ContactInfo:         "a@b.com",
		OrderNumber:         domain.Sentinel,
		ProductName:         "X200 blender",
		DateOfPurchase:      "March 1",
		IssueDescription:    "Arrived broken",
		PreferredResolution: "refund",
	}
}

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	dir := t.TempDir()
	return NewWriter(filepath.Join(dir, "json_format.json"), filepath.Join(dir, "pdf_summary.pdf"))
}

func TestGenerateJSONRoundTrip(t *testing.T) {
	w := newTestWriter(t)
	payload, err := w.GenerateJSON(testRecord())
	require.NoError(t, err)

	data, err := os.ReadFile(w.JSONPath())
	require.NoError(t, err)

	var fromDisk Payload
	require.NoError(t, json.Unmarshal(data, &fromDisk))

	// timestamp and id carry the generation moment; compare the rest
	fromDisk.CaseID, payload.CaseID = "", ""
	fromDisk.CreatedAt, payload.CreatedAt = "", ""
	assert.Equal(t, payload, fromDisk)

	assert.Equal(t, "Jane Doe", fromDisk.Customer.Name)
	assert.Equal(t, domain.Sentinel, fromDisk.Order.Number)
	assert.Equal(t, "refund", fromDisk.Issue.PreferredResolution)
	assert.Equal(t, "transcript_parser", fromDisk.Source)
}

func TestGenerateJSONCaseIDShape(t *testing.T) {
	w := newTestWriter(t)
	w.now = func() time.Time { return time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC) }

	payload, err := w.GenerateJSON(testRecord())
	require.NoError(t, err)
	assert.Equal(t, "CS-20260828-0001", payload.CaseID)
	assert.Regexp(t, regexp.MustCompile(`^CS-\d{8}-0001$`), payload.CaseID)

	_, err = time.Parse(time.RFC3339, payload.CreatedAt)
	assert.NoError(t, err)
}

func TestGenerateJSONOverwritesPreviousRun(t *testing.T) {
	w := newTestWriter(t)
	_, err := w.GenerateJSON(testRecord())
	require.NoError(t, err)

	second := testRecord()
	second.CustomerName = "John Roe"
	_, err = w.GenerateJSON(second)
	require.NoError(t, err)

	data, err := os.ReadFile(w.JSONPath())
	require.NoError(t, err)
	var fromDisk Payload
	require.NoError(t, json.Unmarshal(data, &fromDisk))
	assert.Equal(t, "John Roe", fromDisk.Customer.Name)
}

func TestGeneratePDF(t *testing.T) {
	w := newTestWriter(t)
	require.NoError(t, w.GeneratePDF(testRecord()))

	info, err := os.Stat(w.PDFPath())
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	header := make([]byte, 5)
	f, err := os.Open(w.PDFPath())
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Read(header)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(header))
}

func TestWriterCreatesOutputDirectories(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(
		filepath.Join(dir, "outputs", "json_format.json"),
		filepath.Join(dir, "outputs", "pdf_summary.pdf"),
	)
	_, err := w.GenerateJSON(testRecord())
	require.NoError(t, err)
	require.NoError(t, w.GeneratePDF(testRecord()))
}
