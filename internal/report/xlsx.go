package report

import (
	"fmt"

	excelize "github.com/xuri/excelize/v2"

	"cucibersih/backend/internal/domain"
)

const sheetName = "Laporan Pendapatan"

// rupiah number format, e.g. Rp12.500
const currencyFormat = `"Rp"#,##0`

// RenderXLSX renders the pivoted report as a spreadsheet: a title block with
// the merchant name and range, one column per service plus a daily total, one
// row per calendar day, and a totals row at the bottom.
func RenderXLSX(report *domain.RevenueReport, merchantName string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName("Sheet1", sheetName)

	lastCol, err := excelize.ColumnNumberToName(2 + len(report.Services) + 1)
	if err != nil {
		return nil, err
	}

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"2F5597"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Border:    boxBorder(),
	})
	if err != nil {
		return nil, err
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{
		CustomNumFmt: ptr(currencyFormat),
		Border:       boxBorder(),
	})
	if err != nil {
		return nil, err
	}
	cellStyle, err := f.NewStyle(&excelize.Style{Border: boxBorder()})
	if err != nil {
		return nil, err
	}
	totalStyle, err := f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Bold: true},
		CustomNumFmt: ptr(currencyFormat),
		Fill:         excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9E2F3"}},
		Border:       boxBorder(),
	})
	if err != nil {
		return nil, err
	}

	f.SetCellValue(sheetName, "A1", "Laporan Pendapatan "+merchantName)
	f.MergeCell(sheetName, "A1", lastCol+"1")
	f.SetCellStyle(sheetName, "A1", lastCol+"1", titleStyle)

	f.SetCellValue(sheetName, "A2", fmt.Sprintf("Periode %s s.d. %s", report.From, report.To))
	f.MergeCell(sheetName, "A2", lastCol+"2")

	const headerRow = 4
	f.SetCellValue(sheetName, cellRef(1, headerRow), "Tanggal")
	f.SetCellValue(sheetName, cellRef(2, headerRow), "Transaksi")
	for i, svc := range report.Services {
		f.SetCellValue(sheetName, cellRef(3+i, headerRow), svc.ServiceName)
	}
	f.SetCellValue(sheetName, cellRef(3+len(report.Services), headerRow), "Total")
	f.SetCellStyle(sheetName, cellRef(1, headerRow), cellRef(3+len(report.Services), headerRow), headerStyle)

	row := headerRow + 1
	for _, day := range report.Days {
		f.SetCellValue(sheetName, cellRef(1, row), day.Date)
		f.SetCellValue(sheetName, cellRef(2, row), day.Transactions)
		f.SetCellStyle(sheetName, cellRef(1, row), cellRef(2, row), cellStyle)
		for i, svc := range report.Services {
			f.SetCellValue(sheetName, cellRef(3+i, row), day.PerService[svc.ServiceID])
		}
		f.SetCellValue(sheetName, cellRef(3+len(report.Services), row), day.TotalRevenue)
		f.SetCellStyle(sheetName, cellRef(3, row), cellRef(3+len(report.Services), row), moneyStyle)
		row++
	}

	f.SetCellValue(sheetName, cellRef(1, row), "Total")
	f.SetCellValue(sheetName, cellRef(2, row), report.TotalTransactions)
	for i, svc := range report.Services {
		f.SetCellValue(sheetName, cellRef(3+i, row), svc.TotalAmount)
	}
	f.SetCellValue(sheetName, cellRef(3+len(report.Services), row), report.TotalRevenue)
	f.SetCellStyle(sheetName, cellRef(1, row), cellRef(3+len(report.Services), row), totalStyle)

	f.SetColWidth(sheetName, "A", "A", 14)
	f.SetColWidth(sheetName, "B", "B", 11)
	if len(report.Services) > 0 {
		firstSvc, _ := excelize.ColumnNumberToName(3)
		lastSvc, _ := excelize.ColumnNumberToName(2 + len(report.Services))
		f.SetColWidth(sheetName, firstSvc, lastSvc, 16)
	}
	f.SetColWidth(sheetName, lastCol, lastCol, 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.Bytes()...), nil
}

func cellRef(col, row int) string {
	name, _ := excelize.ColumnNumberToName(col)
	return fmt.Sprintf("%s%d", name, row)
}

func boxBorder() []excelize.Border {
	sides := []string{"left", "right", "top", "bottom"}
	borders := make([]excelize.Border, 0, len(sides))
	for _, side := range sides {
		borders = append(borders, excelize.Border{Type: side, Color: "999999", Style: 1})
	}
	return borders
}

func ptr(s string) *string { return &s }
