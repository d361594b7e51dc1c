// Package artifact captures order screenshots into a directory keyed by order id.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/orderproof/internal/common"
	"github.com/Veraticus/orderproof/internal/model"
)

// Screen is the part of the browser the capturer needs.
type Screen interface {
	OpenDetail(ctx context.Context, handle string) error
	Screenshot(ctx context.Context) ([]byte, error)
}

// Capturer writes one screenshot per order to <dir>/<order_id>.png.
type Capturer struct {
	screen Screen
	logger *slog.Logger
	now    func() time.Time
	dir    string
}

// NewCapturer creates a capturer writing into dir, creating it if needed.
func NewCapturer(screen Screen, dir string, logger *slog.Logger) (*Capturer, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: artifact directory", common.ErrMissingConfig)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Capturer{
		screen: screen,
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Path returns the artifact path for an order id. It depends on nothing else.
func Path(dir, orderID string) string {
	return filepath.Join(dir, orderID+".png")
}

// Capture screenshots the order's detail view, replacing any earlier artifact
// for the same order. An identical screenshot leaves the existing file, and
// its modification time, untouched.
func (c *Capturer) Capture(ctx context.Context, order model.MatchedOrder) (model.Artifact, error) {
	fail := func(err error) (model.Artifact, error) {
		return model.Artifact{}, common.NewStageError(common.ErrCapture, model.StageCapture, order.OrderID, err)
	}

	if order.OrderID == "" || filepath.Base(order.OrderID) != order.OrderID {
		return fail(fmt.Errorf("invalid order id %q", order.OrderID))
	}

	if err := c.screen.OpenDetail(ctx, order.DetailHandle); err != nil {
		return fail(err)
	}

	png, err := c.screen.Screenshot(ctx)
	if err != nil {
		return fail(err)
	}

	path := Path(c.dir, order.OrderID)
	written, err := writeFileAtomic(path, png)
	if err != nil {
		return fail(err)
	}

	c.logger.Debug("Screenshot saved", "order_id", order.OrderID, "path", path, "bytes", len(png), "changed", written)

	return model.Artifact{
		OrderID:   order.OrderID,
		LocalPath: path,
		CreatedAt: c.now(),
	}, nil
}

// writeFileAtomic replaces path with data via a temp file in the same
// directory. It reports false, and writes nothing, when path already holds data.
func writeFileAtomic(path string, data []byte) (bool, error) {
	if current, err := os.ReadFile(path); err == nil && bytes.Equal(current, data) { // #nosec G304
		return false, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return false, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return false, fmt.Errorf("write screenshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("close screenshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return false, fmt.Errorf("chmod screenshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return false, fmt.Errorf("save screenshot: %w", err)
	}
	return true, nil
}
