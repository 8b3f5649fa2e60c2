package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/leverage-trade-engine/internal/storage"
)

// ExcelExporter writes the trade journal to a workbook for offline review.
type ExcelExporter struct {
	store *storage.Store
}

// NewExcelExporter creates an exporter over the journal store.
func NewExcelExporter(store *storage.Store) *ExcelExporter {
	return &ExcelExporter{store: store}
}

type excelStyles struct {
	Header   int
	Base     int
	Currency int
	Profit   int
	Loss     int
}

// Export writes the full trade and position history to path.
func (e *ExcelExporter) Export(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const tradesSheet = "Trades"
	const positionsSheet = "Positions"

	fx.SetSheetName(fx.GetSheetName(0), tradesSheet)
	if _, err := fx.NewSheet(positionsSheet); err != nil {
		return err
	}

	styles, err := e.createStyles(fx)
	if err != nil {
		return err
	}
	if err := e.writeTradesSheet(fx, tradesSheet, styles); err != nil {
		return err
	}
	if err := e.writePositionsSheet(fx, positionsSheet, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (e *ExcelExporter) createStyles(fx *excelize.File) (excelStyles, error) {
	var styles excelStyles
	var err error

	styles.Header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return styles, err
	}

	styles.Base, err = fx.NewStyle(&excelize.Style{
		Border: []excelize.Border{
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.Currency, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return styles, err
	}

	styles.Profit, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Font:      &excelize.Font{Color: "008000"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return styles, err
	}

	styles.Loss, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Font:      &excelize.Font{Color: "FF0000"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	return styles, err
}

func (e *ExcelExporter) writeTradesSheet(fx *excelize.File, sheet string, styles excelStyles) error {
	headers := []string{"Time (UTC)", "Symbol", "Strategy", "Direction", "Entry", "Size", "Leverage", "Stop Loss", "Take Profit", "Fees"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.Header)
	}

	for row, trade := range e.store.Trades() {
		values := []interface{}{
			trade.TradeTime.UTC().Format(time.RFC3339),
			trade.Symbol,
			trade.Strategy,
			string(trade.Direction),
			trade.EntryPrice,
			trade.Size,
			trade.Leverage,
			trade.StopLoss,
			trade.TakeProfit,
			trade.Fees,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			fx.SetCellValue(sheet, cell, v)
			if col >= 4 {
				fx.SetCellStyle(sheet, cell, cell, styles.Currency)
			} else {
				fx.SetCellStyle(sheet, cell, cell, styles.Base)
			}
		}
	}

	fx.SetColWidth(sheet, "A", "A", 22)
	fx.SetColWidth(sheet, "B", "D", 14)
	fx.SetColWidth(sheet, "E", "J", 12)
	return nil
}

func (e *ExcelExporter) writePositionsSheet(fx *excelize.File, sheet string, styles excelStyles) error {
	headers := []string{"Opened (UTC)", "Symbol", "Strategy", "Direction", "Status", "Entry", "Close", "Close Reason", "PnL"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.Header)
	}

	var total float64
	row := 2
	for _, position := range e.store.PositionHistory("") {
		var pnl interface{}
		pnlStyle := styles.Base
		if position.PnL != nil {
			pnl = *position.PnL
			total += *position.PnL
			if *position.PnL >= 0 {
				pnlStyle = styles.Profit
			} else {
				pnlStyle = styles.Loss
			}
		}

		values := []interface{}{
			position.OpenedAt.UTC().Format(time.RFC3339),
			position.Symbol,
			position.Strategy,
			string(position.Direction),
			string(position.Status),
			position.EntryPrice,
			position.ClosePrice,
			string(position.CloseReason),
			pnl,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			fx.SetCellValue(sheet, cell, v)
			switch col {
			case 5, 6:
				fx.SetCellStyle(sheet, cell, cell, styles.Currency)
			case 8:
				fx.SetCellStyle(sheet, cell, cell, pnlStyle)
			default:
				fx.SetCellStyle(sheet, cell, cell, styles.Base)
			}
		}
		row++
	}

	// Total row.
	labelCell, _ := excelize.CoordinatesToCellName(8, row+1)
	totalCell, _ := excelize.CoordinatesToCellName(9, row+1)
	fx.SetCellValue(sheet, labelCell, "Total PnL")
	fx.SetCellStyle(sheet, labelCell, labelCell, styles.Header)
	fx.SetCellValue(sheet, totalCell, total)
	if total >= 0 {
		fx.SetCellStyle(sheet, totalCell, totalCell, styles.Profit)
	} else {
		fx.SetCellStyle(sheet, totalCell, totalCell, styles.Loss)
	}

	fx.SetColWidth(sheet, "A", "A", 22)
	fx.SetColWidth(sheet, "B", "E", 14)
	fx.SetColWidth(sheet, "F", "I", 12)
	return nil
}

// ExportDaily writes a dated workbook into dir, named by UTC day.
func (e *ExcelExporter) ExportDaily(dir string) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("trades_%s.xlsx", time.Now().UTC().Format("2006-01-02")))
	if err := e.Export(path); err != nil {
		return "", err
	}
	return path, nil
}
