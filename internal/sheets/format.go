package sheets

import (
	"context"

	"github.com/Veraticus/orderproof/internal/common"
	"google.golang.org/api/sheets/v4"
)

// format styles a newly created worksheet: bold frozen header and sized
// columns. Failures are logged and otherwise ignored.
func (t *Table) format(ctx context.Context) {
	if !t.config.EnableFormatting {
		return
	}

	requests := []*sheets.Request{
		// Format header
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          t.sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   Columns,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{
							Bold: true,
						},
					},
				},
				Fields: "userEnteredFormat.textFormat",
			},
		},
		// Freeze header row
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId: t.sheetID,
					GridProperties: &sheets.GridProperties{
						FrozenRowCount: 1,
					},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
		// Auto-resize columns
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    t.sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   Columns,
				},
			},
		},
	}

	err := common.WithRetry(ctx, func() error {
		_, err := t.sheets.Spreadsheets.BatchUpdate(t.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: requests,
		}).Context(ctx).Do()
		return err
	}, t.retryOptions())
	if err != nil {
		// Don't fail the whole operation if formatting fails
		t.logger.Warn("failed to apply formatting", "error", err)
	}
}
