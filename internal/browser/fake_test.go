package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var errNotFound = errors.New("element not found")

// fakePage renders a paged order list from canned detail views.
type fakePage struct {
	failOpen    map[int]bool
	sel         Selectors
	url         string
	open        string
	details     []string
	navigated   []string
	batch       int
	visible     int
	screenshots int
	closeErr    error
	urlErr      error
	listMissing bool
}

func newFakePage(batch int, details ...string) *fakePage {
	visible := batch
	if visible > len(details) {
		visible = len(details)
	}
	return &fakePage{
		sel:      DefaultSelectors(),
		details:  details,
		batch:    batch,
		visible:  visible,
		failOpen: make(map[int]bool),
	}
}

func (f *fakePage) Navigate(_ context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	f.url = "https://example.test/my-account/orders"
	return nil
}

func (f *fakePage) WaitForURL(_ context.Context, pattern string, _ time.Duration) error {
	if f.urlErr != nil {
		return f.urlErr
	}
	re, err := compileURLGlob(pattern)
	if err != nil {
		return err
	}
	if !re.MatchString(f.url) {
		return fmt.Errorf("url %s does not match %s", f.url, pattern)
	}
	return nil
}

func (f *fakePage) WaitForText(_ context.Context, text string, _ time.Duration) error {
	if text == f.sel.ViewDetailsText && (f.listMissing || f.visible == 0) {
		return errNotFound
	}
	return nil
}

func (f *fakePage) CountText(_ context.Context, text string) (int, error) {
	if text == f.sel.ViewDetailsText {
		return f.visible, nil
	}
	return 0, nil
}

func (f *fakePage) ClickText(_ context.Context, text string, _ time.Duration) error {
	if text != f.sel.ShowMoreText || f.visible >= len(f.details) {
		return errNotFound
	}
	f.visible += f.batch
	if f.visible > len(f.details) {
		f.visible = len(f.details)
	}
	return nil
}

func (f *fakePage) OpenDetail(_ context.Context, handle string) error {
	if f.open == handle {
		return nil
	}
	for i := 1; i <= f.visible; i++ {
		if ItemHandle(f.sel.ViewDetailsText, i) != handle {
			continue
		}
		if f.failOpen[i] {
			return fmt.Errorf("click %s: timeout", handle)
		}
		f.open = handle
		return nil
	}
	return errNotFound
}

func (f *fakePage) CloseDetail(_ context.Context) error {
	if f.closeErr != nil {
		return f.closeErr
	}
	f.open = ""
	return nil
}

func (f *fakePage) OuterHTML(_ context.Context, _ string) (string, error) {
	for i := 1; i <= f.visible; i++ {
		if ItemHandle(f.sel.ViewDetailsText, i) == f.open {
			return f.details[i-1], nil
		}
	}
	return "", errNotFound
}

func (f *fakePage) Screenshot(_ context.Context) ([]byte, error) {
	f.screenshots++
	return []byte("png:" + f.open), nil
}

func (f *fakePage) Close() error { return nil }

func detailHTML(orderID, location, delivered, amount string) string {
	return fmt.Sprintf(`<html><body>
<div class="_1Hjkp">Order #%s</div>
<div class="_2kNey">Delivered on %s
Rated 5</div>
<div class="address"><span>%s</span></div>
<div class="rupee">%s</div>
</body></html>`, orderID, delivered, location, amount)
}
