package browser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/Veraticus/orderproof/internal/model"
	"github.com/shopspring/decimal"
)

// Extraction errors.
var (
	ErrMissingOrderID = errors.New("order id not found")
	ErrInvalidOrderID = errors.New("order id contains unsupported characters")
	ErrMissingAmount  = errors.New("amount not found")
	ErrMissingDate    = errors.New("delivery date not found")
)

var (
	orderIDPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	orderPrefixPattern = regexp.MustCompile(`(?i)^order\s*(?:id)?\s*#?\s*:?\s*`)
	deliveredOnPattern = regexp.MustCompile(`(?i)delivered\s+on\s*`)
	amountCharsPattern = regexp.MustCompile(`[^0-9.\-]`)

	monthDayYearPattern = regexp.MustCompile(`([A-Za-z]{3,9})\.?\s+(\d{1,2}),?\s+(\d{4})`)
	dayMonthYearPattern = regexp.MustCompile(`(\d{1,2})\s+([A-Za-z]{3,9})\.?,?\s+(\d{4})`)
	isoDatePattern      = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
)

// ValidOrderID reports whether id is safe to use as an order identity and
// as a file name.
func ValidOrderID(id string) bool {
	return orderIDPattern.MatchString(id)
}

// ParseDetail extracts an order from the HTML of an order's detail view.
// The location text may be empty; every other field is required.
func ParseDetail(html string, sel Selectors) (model.RawOrder, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return model.RawOrder{}, fmt.Errorf("parse detail html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	id := orderPrefixPattern.ReplaceAllString(cleanText(doc.Find(sel.OrderID).First().Text()), "")
	if id == "" {
		return model.RawOrder{}, ErrMissingOrderID
	}
	if !ValidOrderID(id) {
		return model.RawOrder{}, fmt.Errorf("%w: %q", ErrInvalidOrderID, id)
	}

	amount, err := parseAmount(doc.Find(sel.Amount).First().Text())
	if err != nil {
		return model.RawOrder{}, fmt.Errorf("order %s: %w", id, err)
	}

	date, err := parseDeliveredOn(doc, sel.DeliveredOn)
	if err != nil {
		return model.RawOrder{}, fmt.Errorf("order %s: %w", id, err)
	}

	var location string
	if sel.Location != "" {
		location = cleanText(doc.Find(sel.Location).First().Text())
	} else {
		location = cleanText(orderScope(doc, sel).Text())
	}

	return model.RawOrder{
		OrderID:      id,
		LocationText: location,
		OrderDate:    date,
		Amount:       amount,
	}, nil
}

// orderScope returns the smallest element around the order id that also holds
// the amount and delivery date: the open order's own detail view, not the
// list of other orders behind it.
func orderScope(doc *goquery.Document, sel Selectors) *goquery.Selection {
	for s := doc.Find(sel.OrderID).First(); s.Length() > 0; s = s.Parent() {
		if s.Find(sel.Amount).Length() > 0 && s.Find(sel.DeliveredOn).Length() > 0 {
			return s
		}
	}
	return doc.Selection
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// parseAmount reads a rendered currency value such as "₹1,234.50".
func parseAmount(text string) (decimal.Decimal, error) {
	digits := amountCharsPattern.ReplaceAllString(text, "")
	if digits == "" {
		return decimal.Decimal{}, ErrMissingAmount
	}
	amount, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrMissingAmount, text)
	}
	return amount, nil
}

// parseDeliveredOn finds the "Delivered on ..." line and parses its date.
func parseDeliveredOn(doc *goquery.Document, selector string) (time.Time, error) {
	var line string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, candidate := range strings.Split(s.Text(), "\n") {
			if loc := deliveredOnPattern.FindStringIndex(candidate); loc != nil {
				line = candidate[loc[1]:]
				return false
			}
		}
		return true
	})
	if strings.TrimSpace(line) == "" {
		return time.Time{}, ErrMissingDate
	}

	date, ok := ParseDate(line)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unrecognized date %q", ErrMissingDate, strings.TrimSpace(line))
	}
	return date, nil
}

// ParseDate pulls a calendar date out of free-form text such as
// "Sat, Aug 23, 2025, 01:23 PM" or "23 August 2025". The result is midnight UTC.
func ParseDate(text string) (time.Time, bool) {
	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		if t, err := time.Parse(model.DateLayout, m[0]); err == nil {
			return t, true
		}
	}
	if m := monthDayYearPattern.FindStringSubmatch(text); m != nil {
		if t, ok := buildDate(m[1], m[2], m[3]); ok {
			return t, true
		}
	}
	if m := dayMonthYearPattern.FindStringSubmatch(text); m != nil {
		if t, ok := buildDate(m[2], m[1], m[3]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func buildDate(month, day, year string) (time.Time, bool) {
	for _, layout := range []string{"Jan 2 2006", "January 2 2006"} {
		t, err := time.Parse(layout, fmt.Sprintf("%s %s %s", month, day, year))
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
