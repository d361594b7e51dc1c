package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Veraticus/orderproof/internal/common"
	"github.com/Veraticus/orderproof/internal/gauth"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DriveStore stores artifacts as files in one Google Drive folder.
type DriveStore struct {
	service  *drive.Service
	logger   *slog.Logger
	folderID string
}

// NewDriveStore creates a Drive-backed store for the given folder.
func NewDriveStore(ctx context.Context, creds gauth.Credentials, folderID string, logger *slog.Logger) (*DriveStore, error) {
	if folderID == "" {
		return nil, fmt.Errorf("%w: drive folder id", common.ErrMissingConfig)
	}

	opts, err := gauth.ClientOptions(ctx, creds, drive.DriveScope)
	if err != nil {
		return nil, err
	}
	return NewDriveStoreWithOptions(ctx, folderID, logger, opts...)
}

// NewDriveStoreWithOptions creates a Drive-backed store from explicit client
// options, such as an endpoint override.
func NewDriveStoreWithOptions(ctx context.Context, folderID string, logger *slog.Logger, opts ...option.ClientOption) (*DriveStore, error) {
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create drive service: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DriveStore{service: srv, folderID: folderID, logger: logger}, nil
}

// Stat implements ObjectStore. When several files share the name the oldest
// one is used.
func (d *DriveStore) Stat(ctx context.Context, name string) (*RemoteObject, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), escapeQuery(d.folderID))

	list, err := d.service.Files.List().
		Q(q).
		OrderBy("createdTime").
		Fields("files(id, name, modifiedTime)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		PageSize(10).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list drive files: %w", err)
	}
	if len(list.Files) == 0 {
		return nil, fmt.Errorf("drive file %s: %w", name, common.ErrNotFound)
	}
	if len(list.Files) > 1 {
		d.logger.Warn("Several drive files share a name, using the oldest", "name", name, "count", len(list.Files))
	}

	return driveObject(list.Files[0])
}

// Upload implements ObjectStore. The file's modifiedTime is set to the local
// file's modification time.
func (d *DriveStore) Upload(ctx context.Context, localPath, name string, existing *RemoteObject) (*RemoteObject, error) {
	f, err := os.Open(localPath) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	meta := &drive.File{
		Name:         name,
		ModifiedTime: info.ModTime().UTC().Format(time.RFC3339Nano),
	}

	var file *drive.File
	if existing == nil {
		meta.Parents = []string{d.folderID}
		file, err = d.service.Files.Create(meta).
			Media(f, googleapi.ContentType("image/png")).
			Fields("id, name, modifiedTime").
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	} else {
		file, err = d.service.Files.Update(existing.ID, meta).
			Media(f, googleapi.ContentType("image/png")).
			Fields("id, name, modifiedTime").
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	}
	if err != nil {
		return nil, fmt.Errorf("upload to drive: %w", err)
	}

	return driveObject(file)
}

// PublicLink implements ObjectStore. Anyone with the link may view the file.
func (d *DriveStore) PublicLink(ctx context.Context, obj *RemoteObject) (string, error) {
	perms, err := d.service.Permissions.List(obj.ID).
		Fields("permissions(id, type, role)").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("list permissions: %w", err)
	}

	shared := false
	for _, p := range perms.Permissions {
		if p.Type == "anyone" {
			shared = true
			break
		}
	}

	if !shared {
		_, err = d.service.Permissions.Create(obj.ID, &drive.Permission{Type: "anyone", Role: "reader"}).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		if err != nil {
			return "", fmt.Errorf("share drive file: %w", err)
		}
	}

	return DriveViewURL(obj.ID), nil
}

// DriveViewURL returns the shareable view link for a Drive file.
func DriveViewURL(fileID string) string {
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view?usp=sharing", fileID)
}

func driveObject(f *drive.File) (*RemoteObject, error) {
	obj := &RemoteObject{ID: f.Id, Name: f.Name}
	if f.ModifiedTime != "" {
		t, err := time.Parse(time.RFC3339Nano, f.ModifiedTime)
		if err != nil {
			return nil, fmt.Errorf("parse modifiedTime %q: %w", f.ModifiedTime, err)
		}
		obj.ModifiedAt = t
	}
	return obj, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
