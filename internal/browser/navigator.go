package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/orderproof/internal/common"
	"github.com/Veraticus/orderproof/internal/model"
)

// NavigatorConfig controls how the order history is reached and paged.
type NavigatorConfig struct {
	StartURL         string
	OrdersURLPattern string
	Selectors        Selectors
	LoginTimeout     time.Duration // zero waits until the context is done
	ListTimeout      time.Duration // wait for orders to render after opening or paging
	ShowMoreTimeout  time.Duration // a missing "show more" control within this bound ends paging
}

// DefaultNavigatorConfig returns the navigator settings for the live site.
func DefaultNavigatorConfig() NavigatorConfig {
	return NavigatorConfig{
		StartURL:         "https://www.swiggy.com/",
		OrdersURLPattern: "**/my-account/orders",
		Selectors:        DefaultSelectors(),
		ListTimeout:      30 * time.Second,
		ShowMoreTimeout:  7 * time.Second,
	}
}

// Navigator is a forward-only cursor over the order history of one run.
// It is not restartable: once Next reports common.ErrNoMoreOrders a new
// Navigator must be opened.
type Navigator struct {
	page   Page
	logger *slog.Logger
	config NavigatorConfig
	loaded int // orders currently rendered in the list
	next   int // 0-based index of the next order to read
	done   bool
}

// OpenNavigator brings the page to the order history and waits for the user to
// be logged in. It returns once the first page of orders is visible.
func OpenNavigator(ctx context.Context, page Page, config NavigatorConfig, logger *slog.Logger) (*Navigator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := page.Navigate(ctx, config.StartURL); err != nil {
		return nil, fatal("open start page", err)
	}

	logger.Info("Waiting for the order history page; log in and open your orders in the browser window",
		"pattern", config.OrdersURLPattern)
	if err := page.WaitForURL(ctx, config.OrdersURLPattern, config.LoginTimeout); err != nil {
		return nil, fatal("wait for order history", err)
	}

	n := &Navigator{page: page, config: config, logger: logger}

	if err := page.WaitForText(ctx, config.Selectors.ViewDetailsText, config.ListTimeout); err != nil {
		if ctx.Err() != nil {
			return nil, fatal("wait for order list", ctx.Err())
		}
		// An account with no orders renders no list at all.
		logger.Warn("No orders visible on the order history page", "error", err)
		return n, nil
	}

	count, err := page.CountText(ctx, config.Selectors.ViewDetailsText)
	if err != nil {
		return nil, fatal("count orders", err)
	}
	n.loaded = count
	logger.Info("Order history opened", "orders_visible", count)

	return n, nil
}

// Next returns the next order in the history. Per-item problems come back as
// errors wrapping common.ErrExtraction and the cursor still advances; a broken
// list view is reported with common.ErrFatalSession.
func (n *Navigator) Next(ctx context.Context) (model.RawOrder, error) {
	if n.done {
		return model.RawOrder{}, common.ErrNoMoreOrders
	}

	if err := n.page.CloseDetail(ctx); err != nil {
		return model.RawOrder{}, fatal("close previous order", err)
	}

	if n.next >= n.loaded {
		if err := n.loadMore(ctx); err != nil {
			return model.RawOrder{}, err
		}
		if n.next >= n.loaded {
			n.done = true
			n.logger.Info("Reached the end of the order history", "orders", n.loaded)
			return model.RawOrder{}, common.ErrNoMoreOrders
		}
	}

	n.next++
	handle := ItemHandle(n.config.Selectors.ViewDetailsText, n.next)
	item := fmt.Sprintf("item %d", n.next)

	if err := n.page.OpenDetail(ctx, handle); err != nil {
		if ctx.Err() != nil {
			return model.RawOrder{}, fatal("open order detail", ctx.Err())
		}
		return model.RawOrder{}, common.NewStageError(common.ErrExtraction, model.StageExtract, item, err)
	}

	html, err := n.page.OuterHTML(ctx, n.config.Selectors.DetailContainer)
	if err != nil {
		if ctx.Err() != nil {
			return model.RawOrder{}, fatal("read order detail", ctx.Err())
		}
		return model.RawOrder{}, common.NewStageError(common.ErrExtraction, model.StageExtract, item, err)
	}

	raw, err := ParseDetail(html, n.config.Selectors)
	if err != nil {
		return model.RawOrder{}, common.NewStageError(common.ErrExtraction, model.StageExtract, item, err)
	}
	raw.DetailHandle = handle

	return raw, nil
}

// loadMore asks the page for the next batch of orders. Having no "show more"
// control is the normal end of the history.
func (n *Navigator) loadMore(ctx context.Context) error {
	if err := n.page.ClickText(ctx, n.config.Selectors.ShowMoreText, n.config.ShowMoreTimeout); err != nil {
		if ctx.Err() != nil {
			return fatal("load more orders", ctx.Err())
		}
		n.logger.Debug("No more orders to load", "error", err)
		return nil
	}

	deadline := time.Now().Add(n.config.ListTimeout)
	for {
		count, err := n.page.CountText(ctx, n.config.Selectors.ViewDetailsText)
		if err != nil {
			return fatal("count orders", err)
		}
		if count > n.loaded {
			n.logger.Info("Loaded more orders", "orders_visible", count)
			n.loaded = count
			return nil
		}
		if !time.Now().Before(deadline) {
			n.logger.Debug("Show more produced no new orders", "orders_visible", count)
			return nil
		}

		select {
		case <-ctx.Done():
			return fatal("load more orders", ctx.Err())
		case <-time.After(loadPollInterval):
		}
	}
}

// loadPollInterval is how often the list is recounted after a "show more" click.
var loadPollInterval = 500 * time.Millisecond

func fatal(action string, err error) error {
	if errors.Is(err, common.ErrFatalSession) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", common.ErrFatalSession, action, err)
}
