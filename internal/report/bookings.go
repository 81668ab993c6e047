package report

import (
	"fmt"
	"io"
	"time"

	"storagebooking/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	SheetName   = "Bookings"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	headerRow    = 2
	firstDataRow = 3
	timeLayout   = "2006-01-02 15:04"
)

var columns = []string{
	"Booking Number", "Unit ID", "User ID", "Status", "Start", "End",
	"Total", "Currency", "Checked In", "Checked Out",
}

var statusFill = map[models.BookingStatus]string{
	models.BookingPending:   "#FFEB9C",
	models.BookingConfirmed: "#C6EFCE",
	models.BookingActive:    "#BDD7EE",
	models.BookingCompleted: "#FFFFFF",
	models.BookingCancelled: "#D9D9D9",
}

// WriteBookings renders bookings as a single-sheet workbook. Times are shown in loc.
func WriteBookings(w io.Writer, bookings []*models.Booking, from, to time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	lastCol, _ := excelize.ColumnNumberToName(len(columns))
	_ = f.SetCellValue(SheetName, "A1", fmt.Sprintf("Bookings %s - %s",
		from.In(loc).Format(timeLayout), to.In(loc).Format(timeLayout)))
	_ = f.MergeCell(SheetName, "A1", lastCol+"1")
	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("title style: %w", err)
	}
	_ = f.SetCellStyle(SheetName, "A1", "A1", titleStyle)

	if err := writeHeader(f, lastCol); err != nil {
		return err
	}

	styles := make(map[models.BookingStatus]int, len(statusFill))
	for status, color := range statusFill {
		id, err := f.NewStyle(&excelize.Style{
			Fill:   excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			NumFmt: 2,
		})
		if err != nil {
			return fmt.Errorf("status style: %w", err)
		}
		styles[status] = id
	}

	for i, b := range bookings {
		row := firstDataRow + i
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []any{
			b.BookingNumber,
			b.UnitID,
			b.UserID,
			string(b.Status),
			b.StartTime.In(loc).Format(timeLayout),
			b.EndTime.In(loc).Format(timeLayout),
			b.TotalPrice.Round(2).InexactFloat64(),
			b.Currency,
			formatOptional(b.CheckInTime, loc),
			formatOptional(b.CheckOutTime, loc),
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		if style, ok := styles[b.Status]; ok {
			last, _ := excelize.CoordinatesToCellName(len(columns), row)
			_ = f.SetCellStyle(SheetName, cell, last, style)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 24)
	_ = f.SetColWidth(SheetName, "B", lastCol, 18)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, lastCol string) error {
	cell, _ := excelize.CoordinatesToCellName(1, headerRow)
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, cell, &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	return f.SetCellStyle(SheetName, cell, fmt.Sprintf("%s%d", lastCol, headerRow), style)
}

func formatOptional(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format(timeLayout)
}
