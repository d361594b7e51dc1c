// Package publish uploads artifacts to remote storage, at most one object per order.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Veraticus/orderproof/internal/common"
	"github.com/Veraticus/orderproof/internal/model"
	"github.com/Veraticus/orderproof/internal/service"
)

// RemoteObject describes an object already in remote storage.
type RemoteObject struct {
	// ModifiedAt is the modification time of the local file the object was
	// uploaded from, as recorded by the store.
	ModifiedAt time.Time
	ID         string
	Name       string
}

// ObjectStore is the remote storage the publisher writes to.
type ObjectStore interface {
	// Stat returns the object with this name, or an error wrapping
	// common.ErrNotFound.
	Stat(ctx context.Context, name string) (*RemoteObject, error)
	// Upload writes localPath under name. When existing is non-nil its
	// content is replaced in place so the object keeps its identity.
	Upload(ctx context.Context, localPath, name string, existing *RemoteObject) (*RemoteObject, error)
	// PublicLink makes the object publicly readable, if it is not already,
	// and returns its URL.
	PublicLink(ctx context.Context, obj *RemoteObject) (string, error)
}

// RemoteName returns the remote object name for an order.
func RemoteName(orderID string) string {
	return orderID + ".png"
}

// Publisher uploads artifacts with retry and reuses objects that are current.
type Publisher struct {
	store  ObjectStore
	logger *slog.Logger
	retry  service.RetryOptions
}

// NewPublisher creates a publisher over store.
func NewPublisher(store ObjectStore, retry service.RetryOptions, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		store:  store,
		retry:  retry,
		logger: logger,
	}
}

// Publish uploads the artifact unless an object for the order already exists
// and is at least as new as the local file, then returns its public link.
func (p *Publisher) Publish(ctx context.Context, artifact model.Artifact) (model.PublishedReference, error) {
	fail := func(err error) (model.PublishedReference, error) {
		return model.PublishedReference{}, common.NewStageError(common.ErrPublish, model.StagePublish, artifact.OrderID, err)
	}

	info, err := os.Stat(artifact.LocalPath)
	if err != nil {
		return fail(fmt.Errorf("stat artifact: %w", err))
	}

	name := RemoteName(artifact.OrderID)

	var existing *RemoteObject
	err = common.WithRetry(ctx, func() error {
		obj, err := p.store.Stat(ctx, name)
		if errors.Is(err, common.ErrNotFound) {
			existing = nil
			return nil
		}
		if err != nil {
			return err
		}
		existing = obj
		return nil
	}, p.retry)
	if err != nil {
		return fail(fmt.Errorf("check remote object %s: %w", name, err))
	}

	obj := existing
	uploaded := false
	if existing == nil || newer(info.ModTime(), existing.ModifiedAt) {
		target := existing
		attempt := 0
		err = common.WithRetry(ctx, func() error {
			attempt++
			// A create whose response was lost may still have happened.
			if target == nil && attempt > 1 {
				found, err := p.store.Stat(ctx, name)
				switch {
				case err == nil:
					p.logger.Debug("Earlier upload attempt created the object, replacing it", "order_id", artifact.OrderID, "object", found.ID)
					target = found
				case !errors.Is(err, common.ErrNotFound):
					return err
				}
			}
			var err error
			obj, err = p.store.Upload(ctx, artifact.LocalPath, name, target)
			return err
		}, p.retry)
		if err != nil {
			return fail(fmt.Errorf("upload %s: %w", name, err))
		}
		uploaded = true
		p.logger.Info("Uploaded artifact", "order_id", artifact.OrderID, "object", obj.ID, "replaced", existing != nil)
	} else {
		p.logger.Debug("Remote artifact is current, reusing it", "order_id", artifact.OrderID, "object", obj.ID)
	}

	var url string
	err = common.WithRetry(ctx, func() error {
		var err error
		url, err = p.store.PublicLink(ctx, obj)
		return err
	}, p.retry)
	if err != nil {
		return fail(fmt.Errorf("share %s: %w", name, err))
	}

	return model.PublishedReference{
		OrderID:   artifact.OrderID,
		RemoteURL: url,
		Uploaded:  uploaded,
	}, nil
}

// Remote stores keep modification times at coarser precision than the local
// filesystem, so times are compared at whole seconds.
func newer(local, remote time.Time) bool {
	return local.Truncate(time.Second).After(remote.Truncate(time.Second))
}
