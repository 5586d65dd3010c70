package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/assefaz/stockledger/web"
)

const utf8BOM = "\ufeff"

var csvHeader = []string{"Data", "Hora", "Colaborador", "Produto", "Quantidade", "Responsavel"}

// WriteCSV renders the report as a semicolon separated file that spreadsheet
// programs open with the right encoding.
func WriteCSV(report MonthlyReport) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	w := csv.NewWriter(&buf)
	w.Comma = ';'

	records := [][]string{
		{"Relatorio Mensal de Logistica - Unidade " + report.Location.Label()},
		{"Periodo: " + report.PeriodLabel},
		{""},
		csvHeader,
	}
	for _, row := range report.Rows {
		records = append(records, []string{
			row.Date,
			row.Time,
			row.Sector,
			row.Product,
			strconv.Itoa(row.Quantity),
			row.Operator,
		})
	}
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("reports: write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteXLSX renders the report on a sheet named after the location.
func WriteXLSX(report MonthlyReport) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := report.Location.Label()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	header := make([]any, len(csvHeader))
	for i, h := range csvHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, row := range report.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []any{row.Date, row.Time, row.Sector, row.Product, row.Quantity, row.Operator}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheet, "A1", "F1", style); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheet, "C", "D", 32); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheet, "F", "F", 24); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("reports: write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

var monthlyTemplate = template.Must(template.New("monthly.html").Funcs(template.FuncMap{
	"upper": strings.ToUpper,
}).ParseFS(web.Templates, "templates/reports/monthly.html"))

// RenderHTML produces the printable page that is converted into the PDF.
func RenderHTML(report MonthlyReport, tz *time.Location) (string, error) {
	generated := report.GeneratedAt
	if tz != nil {
		generated = generated.In(tz)
	}
	var buf bytes.Buffer
	err := monthlyTemplate.Execute(&buf, struct {
		Report      MonthlyReport
		GeneratedAt string
	}{Report: report, GeneratedAt: generated.Format("02/01/2006, 15:04:05")})
	if err != nil {
		return "", fmt.Errorf("reports: render html: %w", err)
	}
	return buf.String(), nil
}
