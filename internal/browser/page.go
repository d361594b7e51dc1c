// Package browser drives an authenticated browser tab through the order history.
// All knowledge of the upstream page structure lives in this package.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Page is the capability set the pipeline needs from a browser engine.
// A Page is a single tab and is not safe for concurrent use.
type Page interface {
	// Navigate loads url and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	// WaitForURL blocks until the current URL matches the glob pattern.
	// A zero timeout waits until ctx is done.
	WaitForURL(ctx context.Context, pattern string, timeout time.Duration) error
	// WaitForText blocks until an element whose text equals text is visible.
	WaitForText(ctx context.Context, text string, timeout time.Duration) error
	// CountText returns how many elements currently have exactly this text.
	CountText(ctx context.Context, text string) (int, error)
	// ClickText clicks the first element with this text.
	ClickText(ctx context.Context, text string, timeout time.Duration) error
	// OpenDetail opens the detail view addressed by handle. Reopening the
	// view that is already open is a no-op.
	OpenDetail(ctx context.Context, handle string) error
	// CloseDetail returns to the list view. It is a no-op when no detail is open.
	CloseDetail(ctx context.Context) error
	// OuterHTML returns the HTML of the first element matching the CSS selector.
	OuterHTML(ctx context.Context, selector string) (string, error)
	// Screenshot captures the visible viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// Close releases the tab and the browser process.
	Close() error
}

// Selectors describes where order data lives in the upstream markup.
type Selectors struct {
	ViewDetailsText string `mapstructure:"view_details_text"`
	ShowMoreText    string `mapstructure:"show_more_text"`
	PopupClose      string `mapstructure:"popup_close"`
	DetailContainer string `mapstructure:"detail_container"`
	OrderID         string `mapstructure:"order_id"`
	Amount          string `mapstructure:"amount"`
	DeliveredOn     string `mapstructure:"delivered_on"`
	// Location selects the delivery location label. Empty means the text of
	// the open order's detail view is searched, scripts and styles excluded.
	Location string `mapstructure:"location"`
}

// DefaultSelectors returns the selectors for the current order-history markup.
func DefaultSelectors() Selectors {
	return Selectors{
		ViewDetailsText: "VIEW DETAILS",
		ShowMoreText:    "Show More Orders",
		PopupClose:      "span[class='_1X6No icon-close']",
		DetailContainer: "body",
		OrderID:         "div._1Hjkp",
		Amount:          "div.rupee",
		DeliveredOn:     "div._2kNey",
	}
}

// Validate checks that every required selector is set.
func (s Selectors) Validate() error {
	required := map[string]string{
		"view_details_text": s.ViewDetailsText,
		"show_more_text":    s.ShowMoreText,
		"detail_container":  s.DetailContainer,
		"order_id":          s.OrderID,
		"amount":            s.Amount,
		"delivered_on":      s.DeliveredOn,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("selector %s cannot be empty", name)
		}
	}
	return nil
}

// ItemHandle returns the handle for the index-th (1-based) order in the list.
func ItemHandle(viewDetailsText string, index int) string {
	return fmt.Sprintf("(%s)[%d]", textXPath(viewDetailsText), index)
}

// textXPath selects elements whose own text equals text.
func textXPath(text string) string {
	return fmt.Sprintf("//*[normalize-space(text())=%s]", xpathLiteral(text))
}

// xpathLiteral quotes s for use inside an XPath 1.0 expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts))
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+part+"'")
	}
	return "concat(" + strings.Join(quoted, ",") + ")"
}
