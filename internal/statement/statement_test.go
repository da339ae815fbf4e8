package statement

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"

	"payportal/models"
)

func sampleStatement() Statement {
	owner := &models.Account{ID: uuid.New(), Name: "Alice", Surname: "Dlamini", AccountNumber: "1234567890", Balance: decimal.NewFromInt(8000)}
	other := models.PartySummary{ID: uuid.New(), Name: "Bob", Surname: "Naidoo", AccountNumber: "9876543210"}
	created := time.Date(2024, 2, 10, 8, 15, 0, 0, time.UTC)

	out := models.NewRecordView(models.Record{
		ID: uuid.New(), Kind: models.KindPayment, SenderID: owner.ID, RecipientID: other.ID,
		SwiftCode: "ABSAZAJJ", Amount: decimal.NewFromInt(2000), Currency: "ZAR",
		Status: models.StatusApproved, CreatedAt: created,
	}, owner.Summary(), other, owner.ID)

	in := models.NewRecordView(models.Record{
		ID: uuid.New(), Kind: models.KindPayment, SenderID: other.ID, RecipientID: owner.ID,
		SwiftCode: "FIRNZAJJ", Amount: decimal.RequireFromString("15.5"), Currency: "ZAR",
		Status: models.StatusPending, CreatedAt: created.Add(time.Hour),
	}, other, owner.Summary(), owner.ID)

	return Statement{
		Owner:       owner,
		Kind:        models.KindPayment,
		Records:     []models.RecordView{in, out},
		GeneratedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatPDF, false},
		{"PDF", FormatPDF, false},
		{"xlsx", FormatXLSX, false},
		{"csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRows(t *testing.T) {
	rows := sampleStatement().rows()
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"2024-02-10 09:15", "incoming", "Bob Naidoo", "9876543210", "FIRNZAJJ", "15.50", "ZAR", "Pending"}, rows[0])
	assert.Equal(t, "outgoing", rows[1][1])
	assert.Equal(t, "Bob Naidoo", rows[1][2])
	assert.Equal(t, "2000.00", rows[1][5])
}

func TestRenderPDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatPDF, sampleStatement()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestRenderXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatXLSX, sampleStatement()))

	file, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	sheet, ok := file.Sheet["Payments"]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "Date", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "Bob Naidoo", sheet.Rows[1].Cells[2].String())
}

func TestRenderUnknownFormat(t *testing.T) {
	assert.Error(t, Render(&bytes.Buffer{}, Format("csv"), sampleStatement()))
}

func TestFilename(t *testing.T) {
	s := sampleStatement()
	assert.Equal(t, "payment-statement-1234567890-20240301.xlsx", s.Filename(FormatXLSX))
	assert.Equal(t, "application/pdf", FormatPDF.ContentType())
}
