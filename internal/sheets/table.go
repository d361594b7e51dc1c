package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Veraticus/orderproof/internal/common"
	"github.com/Veraticus/orderproof/internal/gauth"
	"github.com/Veraticus/orderproof/internal/service"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/sheets/v4"
)

// Columns is the number of ledger columns kept in the worksheet.
const Columns = 4

const spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

// Table is one worksheet of a spreadsheet, addressed as rows of text cells.
// Row indexes are 0-based and include the header row.
type Table struct {
	sheets        *sheets.Service
	drive         *drive.Service
	logger        *slog.Logger
	spreadsheetID string
	worksheet     string
	config        Config
	sheetID       int64
	unshared      bool
}

// NewTable opens the configured worksheet, creating the spreadsheet or the
// worksheet when they do not exist.
func NewTable(ctx context.Context, config Config, logger *slog.Logger) (*Table, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts, err := gauth.ClientOptions(ctx, config.Credentials, sheets.SpreadsheetsScope, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	sheetsSrv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	driveSrv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create drive service: %w", err)
	}

	return NewTableWithServices(ctx, sheetsSrv, driveSrv, config, logger)
}

// NewTableWithServices opens the worksheet through existing API clients. The
// Drive client finds a spreadsheet by name and shares a new one. It may be
// nil.
func NewTableWithServices(ctx context.Context, sheetsSrv *sheets.Service, driveSrv *drive.Service, config Config, logger *slog.Logger) (*Table, error) {
	if logger == nil {
		logger = slog.Default()
	}

	t := &Table{
		sheets:    sheetsSrv,
		drive:     driveSrv,
		logger:    logger,
		config:    config,
		worksheet: config.WorksheetName,
	}

	err := common.WithRetry(ctx, func() error {
		return t.open(ctx)
	}, t.retryOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open worksheet %q: %w", config.WorksheetName, err)
	}

	return t, nil
}

func (t *Table) retryOptions() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  t.config.RetryAttempts,
		InitialDelay: t.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// SpreadsheetID returns the id of the opened spreadsheet.
func (t *Table) SpreadsheetID() string {
	return t.spreadsheetID
}

// URL returns the browser URL of the worksheet.
func (t *Table) URL() string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit#gid=%d", t.spreadsheetID, t.sheetID)
}

func (t *Table) open(ctx context.Context) error {
	id, created, err := t.resolveSpreadsheet(ctx)
	if err != nil {
		return err
	}
	t.spreadsheetID = id
	if created {
		t.unshared = true
	}
	if t.unshared {
		if err := t.share(ctx); err != nil {
			return err
		}
		t.unshared = false
	}

	spreadsheet, err := t.sheets.Spreadsheets.Get(id).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to access spreadsheet %s: %w", id, err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == t.worksheet {
			t.sheetID = sheet.Properties.SheetId
			if created {
				t.format(ctx)
			}
			return nil
		}
	}

	resp, err := t.sheets.Spreadsheets.BatchUpdate(id, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{
					Title: t.worksheet,
					GridProperties: &sheets.GridProperties{
						RowCount:    1000,
						ColumnCount: Columns,
					},
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to add worksheet: %w", err)
	}
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		t.sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}
	t.logger.Info("created worksheet", "spreadsheet_id", id, "worksheet", t.worksheet)

	t.format(ctx)
	return nil
}

// resolveSpreadsheet returns the configured spreadsheet id, the id of the
// spreadsheet with the configured name, or the id of a new spreadsheet.
func (t *Table) resolveSpreadsheet(ctx context.Context) (string, bool, error) {
	if t.config.SpreadsheetID != "" {
		return t.config.SpreadsheetID, false, nil
	}
	if t.spreadsheetID != "" {
		return t.spreadsheetID, false, nil
	}

	if t.drive != nil {
		q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
			strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(t.config.SpreadsheetName), spreadsheetMimeType)
		list, err := t.drive.Files.List().
			Q(q).
			OrderBy("createdTime").
			Fields("files(id, name)").
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			PageSize(10).
			Context(ctx).
			Do()
		if err != nil {
			return "", false, fmt.Errorf("unable to search for spreadsheet %q: %w", t.config.SpreadsheetName, err)
		}
		if len(list.Files) > 0 {
			if len(list.Files) > 1 {
				t.logger.Warn("several spreadsheets share the name, using the oldest",
					"name", t.config.SpreadsheetName, "count", len(list.Files))
			}
			return list.Files[0].Id, false, nil
		}
	}

	created, err := t.sheets.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:    t.config.SpreadsheetName,
			TimeZone: t.config.TimeZone,
		},
		Sheets: []*sheets.Sheet{{
			Properties: &sheets.SheetProperties{Title: t.worksheet},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return "", false, fmt.Errorf("unable to create spreadsheet: %w", err)
	}

	t.logger.Info("created new spreadsheet",
		"id", created.SpreadsheetId,
		"url", created.SpreadsheetUrl)

	return created.SpreadsheetId, true, nil
}

// share grants the configured role on the spreadsheet to the share address,
// or to anyone with the link.
func (t *Table) share(ctx context.Context) error {
	if t.config.ShareRole == "" {
		return nil
	}
	if t.drive == nil {
		t.logger.Warn("no drive client, new spreadsheet left unshared", "spreadsheet_id", t.spreadsheetID)
		return nil
	}

	perm := &drive.Permission{Type: "anyone", Role: t.config.ShareRole}
	if t.config.ShareEmail != "" {
		perm = &drive.Permission{Type: "user", Role: t.config.ShareRole, EmailAddress: t.config.ShareEmail}
	}

	_, err := t.drive.Permissions.Create(t.spreadsheetID, perm).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("unable to share spreadsheet %s: %w", t.spreadsheetID, err)
	}

	t.logger.Info("shared spreadsheet", "spreadsheet_id", t.spreadsheetID, "type", perm.Type, "role", perm.Role)
	return nil
}

// ReadAll returns every non-empty row of the worksheet.
func (t *Table) ReadAll(ctx context.Context) ([][]string, error) {
	var resp *sheets.ValueRange
	err := common.WithRetry(ctx, func() error {
		var err error
		resp, err = t.sheets.Spreadsheets.Values.Get(t.spreadsheetID, t.columnRange()).
			ValueRenderOption("FORMATTED_VALUE").
			Context(ctx).
			Do()
		return err
	}, t.retryOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet: %w", err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, values := range resp.Values {
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = fmt.Sprint(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Append adds a row after the last row of the worksheet and returns the
// index it landed at. Values are stored as entered so that they read back
// unchanged.
func (t *Table) Append(ctx context.Context, row []string) (int, error) {
	var resp *sheets.AppendValuesResponse
	err := common.WithRetry(ctx, func() error {
		var err error
		resp, err = t.sheets.Spreadsheets.Values.Append(t.spreadsheetID, t.columnRange(), rowValues(row)).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return err
	}, t.retryOptions())
	if err != nil {
		return 0, fmt.Errorf("failed to append row: %w", err)
	}
	if resp.Updates == nil {
		return 0, fmt.Errorf("append response has no updated range")
	}

	index, err := rangeRowIndex(resp.Updates.UpdatedRange)
	if err != nil {
		return 0, fmt.Errorf("failed to locate appended row: %w", err)
	}
	return index, nil
}

// Update overwrites the row at index.
func (t *Table) Update(ctx context.Context, index int, row []string) error {
	rangeStr := fmt.Sprintf("%s!A%d:%s%d", quoteSheet(t.worksheet), index+1, lastColumn(), index+1)
	err := common.WithRetry(ctx, func() error {
		_, err := t.sheets.Spreadsheets.Values.Update(t.spreadsheetID, rangeStr, rowValues(row)).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	}, t.retryOptions())
	if err != nil {
		return fmt.Errorf("failed to update row %d: %w", index+1, err)
	}
	return nil
}

func (t *Table) columnRange() string {
	return fmt.Sprintf("%s!A:%s", quoteSheet(t.worksheet), lastColumn())
}

func lastColumn() string {
	return string(rune('A' + Columns - 1))
}

// rangeRowIndex returns the 0-based index of the first row of an A1 range
// such as 'Orders'!A7:D7.
func rangeRowIndex(a1 string) (int, error) {
	cells := a1[strings.LastIndex(a1, "!")+1:]
	if i := strings.Index(cells, ":"); i >= 0 {
		cells = cells[:i]
	}
	digits := strings.TrimLeftFunc(cells, unicode.IsLetter)
	row, err := strconv.Atoi(digits)
	if err != nil || row < 1 {
		return 0, fmt.Errorf("unexpected range %q", a1)
	}
	return row - 1, nil
}

// quoteSheet quotes a worksheet name for use in A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func rowValues(row []string) *sheets.ValueRange {
	values := make([]any, len(row))
	for i, v := range row {
		values[i] = v
	}
	return &sheets.ValueRange{Values: [][]any{values}}
}
