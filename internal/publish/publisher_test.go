package publish

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/orderproof/internal/common"
	"github.com/Veraticus/orderproof/internal/model"
	"github.com/Veraticus/orderproof/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

var fastRetry = service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func writeArtifact(t *testing.T, dir, orderID, content string, mtime time.Time) model.Artifact {
	t.Helper()
	path := filepath.Join(dir, orderID+".png")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return model.Artifact{OrderID: orderID, LocalPath: path, CreatedAt: mtime}
}

func TestPublish_UploadsOnceAndReusesCurrentObject(t *testing.T) {
	dir := t.TempDir()
	store := NewMemoryStore()
	p := NewPublisher(store, fastRetry, nil)

	artifact := writeArtifact(t, dir, "1001", "image", time.Now().Add(-time.Hour))

	first, err := p.Publish(context.Background(), artifact)
	require.NoError(t, err)
	assert.True(t, first.Uploaded)
	assert.Equal(t, "1001", first.OrderID)
	assert.NotEmpty(t, first.RemoteURL)

	second, err := p.Publish(context.Background(), artifact)
	require.NoError(t, err)
	assert.False(t, second.Uploaded)
	assert.Equal(t, first.RemoteURL, second.RemoteURL)

	assert.Equal(t, 1, store.Uploads())
	assert.Equal(t, 1, store.Len())
}

func TestPublish_NewerLocalFileOverwritesSameObject(t *testing.T) {
	dir := t.TempDir()
	store := NewMemoryStore()
	p := NewPublisher(store, fastRetry, nil)

	old := time.Now().Add(-2 * time.Hour)
	first, err := p.Publish(context.Background(), writeArtifact(t, dir, "1001", "old", old))
	require.NoError(t, err)

	second, err := p.Publish(context.Background(), writeArtifact(t, dir, "1001", "new", old.Add(time.Hour)))
	require.NoError(t, err)
	assert.True(t, second.Uploaded)
	assert.Equal(t, first.RemoteURL, second.RemoteURL, "the object keeps its identity")

	data, ok := store.Data(RemoteName("1001"))
	require.True(t, ok)
	assert.Equal(t, "new", string(data))
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 2, store.Uploads())
}

func TestPublish_SubSecondDifferenceIsNotNewer(t *testing.T) {
	base := time.Date(2025, 8, 23, 10, 0, 0, 0, time.UTC)
	assert.False(t, newer(base.Add(400*time.Millisecond), base))
	assert.True(t, newer(base.Add(time.Second), base))
	assert.False(t, newer(base, base.Add(time.Minute)))
}

func TestPublish_RetriesTransientFailures(t *testing.T) {
	dir := t.TempDir()
	store := NewMemoryStore()
	store.FailNext(&googleapi.Error{Code: http.StatusServiceUnavailable})
	p := NewPublisher(store, fastRetry, nil)

	ref, err := p.Publish(context.Background(), writeArtifact(t, dir, "1001", "image", time.Now()))
	require.NoError(t, err)
	assert.True(t, ref.Uploaded)
}

func TestPublish_LostCreateResponseDoesNotDuplicate(t *testing.T) {
	dir := t.TempDir()
	store := NewMemoryStore()
	store.LoseNextUpload(&googleapi.Error{Code: http.StatusServiceUnavailable})
	p := NewPublisher(store, fastRetry, nil)

	ref, err := p.Publish(context.Background(), writeArtifact(t, dir, "1001", "image", time.Now()))
	require.NoError(t, err)
	assert.True(t, ref.Uploaded)

	assert.Equal(t, 1, store.Len(), "the retry replaces the object the first attempt created")
	assert.Equal(t, 2, store.Uploads())
	assert.Equal(t, "memory://mem-1/1001.png", ref.RemoteURL)
}

func TestMemoryStore_CreateDoesNotDeduplicate(t *testing.T) {
	dir := t.TempDir()
	store := NewMemoryStore()
	artifact := writeArtifact(t, dir, "1001", "image", time.Now())

	first, err := store.Upload(context.Background(), artifact.LocalPath, "1001.png", nil)
	require.NoError(t, err)
	second, err := store.Upload(context.Background(), artifact.LocalPath, "1001.png", nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, store.Len())

	oldest, err := store.Stat(context.Background(), "1001.png")
	require.NoError(t, err)
	assert.Equal(t, first.ID, oldest.ID)
}

func TestPublish_FailuresAreStageErrors(t *testing.T) {
	tests := []struct {
		name     string
		failures []error
	}{
		{
			name:     "permanent error",
			failures: []error{&googleapi.Error{Code: http.StatusForbidden}},
		},
		{
			name: "retries exhausted",
			failures: []error{
				common.ErrRateLimit, common.ErrRateLimit, common.ErrRateLimit,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			store.FailNext(tt.failures...)
			p := NewPublisher(store, fastRetry, nil)

			_, err := p.Publish(context.Background(), writeArtifact(t, t.TempDir(), "1001", "image", time.Now()))
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrPublish)

			stage, ok := common.FailedStage(err)
			require.True(t, ok)
			assert.Equal(t, model.StagePublish, stage)
			assert.Equal(t, 0, store.Uploads())
		})
	}
}

func TestPublish_MissingLocalFile(t *testing.T) {
	p := NewPublisher(NewMemoryStore(), fastRetry, nil)

	_, err := p.Publish(context.Background(), model.Artifact{OrderID: "1001", LocalPath: filepath.Join(t.TempDir(), "missing.png")})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPublish)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPublicURLs(t *testing.T) {
	assert.Equal(t, "https://drive.google.com/file/d/abc123/view?usp=sharing", DriveViewURL("abc123"))
	assert.Equal(t, "https://storage.googleapis.com/bills/2025/1001.png", GCSPublicURL("bills", "2025/1001.png"))
	assert.Equal(t, `it\'s \\ here`, escapeQuery(`it's \ here`))
}
