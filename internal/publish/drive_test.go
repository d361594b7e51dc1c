package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/orderproof/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

var nameClause = regexp.MustCompile(`name = '((?:[^'\\]|\\.)*)'`)

// fakeDrive serves the subset of the Drive REST API the store uses.
type fakeDrive struct {
	files       []*drive.File
	contents    map[string][]byte
	perms       map[string][]*drive.Permission
	queries     []string
	creates     int
	updates     int
	permCreates int
	mu          sync.Mutex
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		contents: make(map[string][]byte),
		perms:    make(map[string][]*drive.Permission),
	}
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := strings.Index(r.URL.Path, "files")
	if i < 0 {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(r.URL.Path[i:], "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		q := r.URL.Query().Get("q")
		f.queries = append(f.queries, q)
		resp := &drive.FileList{}
		if m := nameClause.FindStringSubmatch(q); m != nil {
			name := strings.NewReplacer(`\'`, `'`, `\\`, `\`).Replace(m[1])
			for _, file := range f.files {
				if file.Name == name {
					resp.Files = append(resp.Files, file)
				}
			}
		}
		writeJSON(w, resp)

	case len(parts) == 1 && r.Method == http.MethodPost:
		meta, data, err := readUpload(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.creates++
		meta.Id = fmt.Sprintf("file-%d", len(f.files)+1)
		f.files = append(f.files, meta)
		f.contents[meta.Id] = data
		writeJSON(w, meta)

	case len(parts) == 2 && r.Method == http.MethodPatch:
		file := f.find(parts[1])
		if file == nil {
			http.Error(w, `{"error":{"code":404,"message":"File not found"}}`, http.StatusNotFound)
			return
		}
		meta, data, err := readUpload(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.updates++
		file.ModifiedTime = meta.ModifiedTime
		f.contents[file.Id] = data
		writeJSON(w, file)

	case len(parts) == 3 && parts[2] == "permissions" && r.Method == http.MethodGet:
		writeJSON(w, &drive.PermissionList{Permissions: f.perms[parts[1]]})

	case len(parts) == 3 && parts[2] == "permissions" && r.Method == http.MethodPost:
		var perm drive.Permission
		if err := json.NewDecoder(r.Body).Decode(&perm); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.permCreates++
		perm.Id = fmt.Sprintf("perm-%d", f.permCreates)
		f.perms[parts[1]] = append(f.perms[parts[1]], &perm)
		writeJSON(w, &perm)

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeDrive) find(id string) *drive.File {
	for _, file := range f.files {
		if file.Id == id {
			return file
		}
	}
	return nil
}

// readUpload splits a multipart upload into its metadata and media parts.
func readUpload(r *http.Request) (*drive.File, []byte, error) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, nil, err
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, nil, fmt.Errorf("unexpected content type %q", mediaType)
	}

	mr := multipart.NewReader(r.Body, params["boundary"])
	part, err := mr.NextPart()
	if err != nil {
		return nil, nil, err
	}
	var meta drive.File
	if err := json.NewDecoder(part).Decode(&meta); err != nil {
		return nil, nil, err
	}
	part, err = mr.NextPart()
	if err != nil {
		return nil, nil, err
	}
	data, err := io.ReadAll(part)
	if err != nil {
		return nil, nil, err
	}
	return &meta, data, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestDriveStore(t *testing.T, fake *fakeDrive) *DriveStore {
	t.Helper()

	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	store, err := NewDriveStoreWithOptions(context.Background(), "folder-1", nil,
		option.WithEndpoint(server.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	return store
}

func TestDriveStore_StatNotFound(t *testing.T) {
	store := newTestDriveStore(t, newFakeDrive())

	_, err := store.Stat(context.Background(), "1001.png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestDriveStore_UpdateKeepsFileIDAndModifiedTime(t *testing.T) {
	fake := newFakeDrive()
	store := newTestDriveStore(t, fake)
	ctx := context.Background()
	dir := t.TempDir()

	first := time.Date(2025, 8, 23, 10, 15, 30, 123456789, time.UTC)
	artifact := writeArtifact(t, dir, "1001", "first", first)

	created, err := store.Upload(ctx, artifact.LocalPath, "1001.png", nil)
	require.NoError(t, err)
	assert.Equal(t, "1001.png", created.Name)
	assert.True(t, created.ModifiedAt.Equal(first), "modifiedTime round-trips: %s", created.ModifiedAt)
	assert.Equal(t, []string{"folder-1"}, fake.files[0].Parents)

	stat, err := store.Stat(ctx, "1001.png")
	require.NoError(t, err)
	assert.Equal(t, created.ID, stat.ID)
	assert.True(t, stat.ModifiedAt.Equal(first))

	second := first.Add(time.Hour)
	require.NoError(t, os.WriteFile(artifact.LocalPath, []byte("second"), 0600))
	require.NoError(t, os.Chtimes(artifact.LocalPath, second, second))

	updated, err := store.Upload(ctx, artifact.LocalPath, "1001.png", stat)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.True(t, updated.ModifiedAt.Equal(second))

	assert.Equal(t, 1, fake.creates)
	assert.Equal(t, 1, fake.updates)
	assert.Len(t, fake.files, 1)
	assert.Equal(t, []byte("second"), fake.contents[created.ID])
}

func TestDriveStore_StatUsesOldestDuplicate(t *testing.T) {
	fake := newFakeDrive()
	store := newTestDriveStore(t, fake)
	ctx := context.Background()

	artifact := writeArtifact(t, t.TempDir(), "1001", "image", time.Now())
	first, err := store.Upload(ctx, artifact.LocalPath, "1001.png", nil)
	require.NoError(t, err)
	_, err = store.Upload(ctx, artifact.LocalPath, "1001.png", nil)
	require.NoError(t, err)

	stat, err := store.Stat(ctx, "1001.png")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stat.ID)
}

func TestDriveStore_PublicLinkSharesOnce(t *testing.T) {
	fake := newFakeDrive()
	store := newTestDriveStore(t, fake)
	ctx := context.Background()

	obj := &RemoteObject{ID: "file-9", Name: "1001.png"}

	for i := 0; i < 2; i++ {
		link, err := store.PublicLink(ctx, obj)
		require.NoError(t, err)
		assert.Equal(t, DriveViewURL("file-9"), link)
	}

	assert.Equal(t, 1, fake.permCreates)
	require.Len(t, fake.perms["file-9"], 1)
	assert.Equal(t, "anyone", fake.perms["file-9"][0].Type)
	assert.Equal(t, "reader", fake.perms["file-9"][0].Role)
}

func TestDriveStore_StatEscapesQuery(t *testing.T) {
	fake := newFakeDrive()
	store := newTestDriveStore(t, fake)
	ctx := context.Background()

	artifact := writeArtifact(t, t.TempDir(), "1001", "image", time.Now())
	created, err := store.Upload(ctx, artifact.LocalPath, `Bob's \ order.png`, nil)
	require.NoError(t, err)

	stat, err := store.Stat(ctx, `Bob's \ order.png`)
	require.NoError(t, err)
	assert.Equal(t, created.ID, stat.ID)

	require.Len(t, fake.queries, 1)
	assert.Equal(t, `name = 'Bob\'s \\ order.png' and 'folder-1' in parents and trashed = false`, fake.queries[0])
}

func TestDriveStore_PublishThroughPublisher(t *testing.T) {
	fake := newFakeDrive()
	p := NewPublisher(newTestDriveStore(t, fake), fastRetry, nil)
	ctx := context.Background()

	artifact := writeArtifact(t, t.TempDir(), "1001", "image", time.Now().Add(-time.Hour))

	first, err := p.Publish(ctx, artifact)
	require.NoError(t, err)
	assert.True(t, first.Uploaded)
	assert.Equal(t, DriveViewURL("file-1"), first.RemoteURL)

	second, err := p.Publish(ctx, artifact)
	require.NoError(t, err)
	assert.False(t, second.Uploaded, "remote modifiedTime matches the local file")
	assert.Equal(t, first.RemoteURL, second.RemoteURL)

	assert.Equal(t, 1, fake.creates)
	assert.Equal(t, 0, fake.updates)
	assert.Equal(t, 1, fake.permCreates)
}

func TestEscapeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "1001.png", want: "1001.png"},
		{in: "Bob's", want: `Bob\'s`},
		{in: `a\b`, want: `a\\b`},
		{in: `it's \ here`, want: `it\'s \\ here`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeQuery(tt.in))
		})
	}
}
