package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Veraticus/orderproof/internal/common"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// SessionConfig configures the browser session.
type SessionConfig struct {
	ProfileDir    string
	ExecPath      string
	Selectors     Selectors
	ActionTimeout time.Duration // bound on a single click, wait or read
	SettleDelay   time.Duration // pause around detail clicks for the page to react
	ListTimeout   time.Duration // bound on the list view reappearing after a detail closes
	Headless      bool
}

// DefaultSessionConfig returns the default session settings.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Selectors:     DefaultSelectors(),
		ActionTimeout: 30 * time.Second,
		SettleDelay:   time.Second,
		ListTimeout:   30 * time.Second,
	}
}

// Session is a chromedp-backed Page attached to an existing browser profile.
type Session struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	logger      *slog.Logger
	openHandle  string
	config      SessionConfig
}

// Open launches the browser against the configured profile and opens one tab.
// The caller owns the session and must Close it.
func Open(ctx context.Context, config SessionConfig, logger *slog.Logger) (*Session, error) {
	if config.ProfileDir == "" {
		return nil, fmt.Errorf("%w: browser profile directory", common.ErrMissingConfig)
	}
	if config.ExecPath != "" {
		if _, err := os.Stat(config.ExecPath); err != nil {
			return nil, common.NewUserError(fmt.Sprintf("browser executable not found at %q", config.ExecPath), err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(config.ProfileDir),
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("restore-last-session", false),
	)
	if config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(config.ExecPath))
	}

	// The browser outlives individual calls; only Close tears it down.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		if isProfileLocked(err) {
			return nil, common.NewUserError("browser is already running with this profile; close it completely and retry", err)
		}
		return nil, fmt.Errorf("%w: launch browser: %w", common.ErrFatalSession, err)
	}

	logger.Info("Browser session opened", "profile", config.ProfileDir, "headless", config.Headless)

	return &Session{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		config:      config,
		logger:      logger,
	}, nil
}

func isProfileLocked(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "ProcessSingleton") || strings.Contains(msg, "SingletonLock")
}

// run executes actions on the tab, bounded by timeout (when positive) and by ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate implements Page.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.openHandle = ""
	return s.run(ctx, s.config.ActionTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// WaitForURL implements Page.
func (s *Session) WaitForURL(ctx context.Context, pattern string, timeout time.Duration) error {
	re, err := compileURLGlob(pattern)
	if err != nil {
		return err
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		var location string
		if err := s.run(waitCtx, s.config.ActionTimeout, chromedp.Location(&location)); err != nil {
			return fmt.Errorf("read current url: %w", err)
		}
		if re.MatchString(location) {
			s.logger.Debug("URL pattern matched", "url", location, "pattern", pattern)
			return s.run(ctx, s.config.ActionTimeout, chromedp.WaitReady("body", chromedp.ByQuery))
		}

		select {
		case <-waitCtx.Done():
			return fmt.Errorf("waiting for %s: %w", pattern, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// WaitForText implements Page.
func (s *Session) WaitForText(ctx context.Context, text string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitVisible(textXPath(text), chromedp.BySearch))
}

// CountText implements Page.
func (s *Session) CountText(ctx context.Context, text string) (int, error) {
	var count int
	js := fmt.Sprintf(
		`document.evaluate(%q, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null).snapshotLength`,
		textXPath(text))
	if err := s.run(ctx, s.config.ActionTimeout, chromedp.Evaluate(js, &count)); err != nil {
		return 0, fmt.Errorf("count %q: %w", text, err)
	}
	return count, nil
}

// ClickText implements Page.
func (s *Session) ClickText(ctx context.Context, text string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.Click(textXPath(text), chromedp.BySearch, chromedp.NodeVisible))
}

// OpenDetail implements Page.
func (s *Session) OpenDetail(ctx context.Context, handle string) error {
	if s.openHandle == handle {
		return nil
	}
	if err := s.CloseDetail(ctx); err != nil {
		return err
	}

	s.dismissPopup(ctx)

	err := s.run(ctx, s.config.ActionTimeout,
		chromedp.Sleep(s.config.SettleDelay),
		chromedp.Click(handle, chromedp.BySearch, chromedp.NodeVisible),
		chromedp.Sleep(s.config.SettleDelay),
	)
	if err != nil {
		return fmt.Errorf("open detail %s: %w", handle, err)
	}
	s.openHandle = handle
	return nil
}

// CloseDetail implements Page. The detail view is a side drawer that closes
// when the page outside it is clicked.
func (s *Session) CloseDetail(ctx context.Context) error {
	if s.openHandle == "" {
		return nil
	}
	err := s.run(ctx, s.config.ListTimeout,
		chromedp.MouseClickXY(100, 250),
		chromedp.WaitVisible(textXPath(s.config.Selectors.ViewDetailsText), chromedp.BySearch),
	)
	if err != nil {
		return fmt.Errorf("return to order list: %w", err)
	}
	s.openHandle = ""
	return nil
}

// dismissPopup closes a promotional overlay if one is showing.
func (s *Session) dismissPopup(ctx context.Context) {
	sel := s.config.Selectors.PopupClose
	if sel == "" {
		return
	}

	var present bool
	js := fmt.Sprintf(`(() => { const el = document.querySelector(%q); return !!el && el.offsetParent !== null; })()`, sel)
	if err := s.run(ctx, time.Second, chromedp.Evaluate(js, &present)); err != nil || !present {
		return
	}

	s.logger.Debug("Popup detected, closing it")
	if err := s.run(ctx, time.Second, chromedp.Click(sel, chromedp.ByQuery), chromedp.Sleep(500*time.Millisecond)); err != nil {
		s.logger.Debug("Failed to close popup", "error", err)
	}
}

// OuterHTML implements Page.
func (s *Session) OuterHTML(ctx context.Context, selector string) (string, error) {
	var html string
	if err := s.run(ctx, s.config.ActionTimeout, chromedp.OuterHTML(selector, &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read %s: %w", selector, err)
	}
	return html, nil
}

// Screenshot implements Page. The image is always PNG, whatever the browser default.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	capture := chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithFromSurface(true).
			Do(ctx)
		return err
	})
	if err := s.run(ctx, s.config.ActionTimeout, capture); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	if len(buf) == 0 {
		return nil, errors.New("capture screenshot: empty image")
	}
	return buf, nil
}

// Close implements Page. It is safe to call more than once.
func (s *Session) Close() error {
	if s.cancelTab == nil {
		return nil
	}
	err := chromedp.Cancel(s.ctx)
	s.cancelTab()
	s.cancelAlloc()
	s.cancelTab = nil
	s.logger.Info("Browser session closed")
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}
