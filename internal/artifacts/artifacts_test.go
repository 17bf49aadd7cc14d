package artifacts

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/mlocid-e2e/internal/browser"
	"github.com/kuitang/mlocid-e2e/internal/config"
)

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "run1/TestCreateFlashcard/screenshot.png", Key("run1", "TestCreateFlashcard", ScreenshotName))
	assert.Equal(t, "run1/TestLogin_sub_case/page.html", Key("run1", "TestLogin/sub case", PageName))
	assert.Equal(t, "run1/unnamed/console.log", Key("run1", "///", ConsoleName))
}

func testKey_StaysInsideRun(t *rapid.T) {
	name := rapid.String().Draw(t, "test_name")
	key := Key("run", name, ConsoleName)

	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		t.Fatalf("key %q has %d segments", key, len(parts))
	}
	if parts[1] == ".." || parts[1] == "." || parts[1] == "" {
		t.Fatalf("unsafe test segment in %q", key)
	}
}

func TestKey_StaysInsideRun(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testKey_StaysInsideRun)
}

func TestDirStore_PutGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "artifacts")
	store, err := NewDirStore(root)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "run/TestX/page.html", []byte("<html></html>"), "text/html"))
	got, err := store.Get(ctx, "run/TestX/page.html")
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(got))
	assert.Equal(t, filepath.Join(root, "run", "TestX", "page.html"), store.Location("run/TestX/page.html"))

	_, err = store.Get(ctx, "run/TestX/missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	assert.Error(t, store.Put(ctx, "../escape", nil, "text/plain"))
}

func TestS3Store_PutGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFakeS3Store(t, "e2e-artifacts")

	require.NoError(t, store.Put(ctx, "run/TestX/console.log", []byte("[log] ready"), "text/plain"))
	got, err := store.Get(ctx, "run/TestX/console.log")
	require.NoError(t, err)
	assert.Equal(t, "[log] ready", string(got))

	_, err = store.Get(ctx, "run/TestX/absent")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.Contains(t, store.Location("run/TestX/console.log"), "/e2e-artifacts/run/TestX/console.log")
}

func TestRecorder_CaptureToS3(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFakeS3Store(t, "e2e-artifacts")
	rec := &Recorder{Store: store, RunID: "run42"}

	s := browser.NewFakeSession()
	s.SetPage("http://localhost/cards", "Cards", "<html><body>cards</body></html>")
	s.Log("[error] failed to load flashcards")

	locations, err := rec.Capture(ctx, "TestCreateFlashcard", s)
	require.NoError(t, err)
	assert.Len(t, locations, 3)

	html, err := store.Get(ctx, "run42/TestCreateFlashcard/page.html")
	require.NoError(t, err)
	assert.Contains(t, string(html), "cards")

	console, err := store.Get(ctx, "run42/TestCreateFlashcard/console.log")
	require.NoError(t, err)
	assert.Equal(t, "[error] failed to load flashcards", string(console))

	shot, err := store.Get(ctx, "run42/TestCreateFlashcard/screenshot.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(shot), "\x89PNG"))
}

func TestRecorder_PartialFailureStillStoresRest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	rec := &Recorder{Store: store, RunID: "run"}

	s := browser.NewFakeSession()
	s.Err = errors.New("target closed")

	locations, err := rec.Capture(ctx, "TestBroken", s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page source")
	// screenshot and console log survive
	assert.Len(t, locations, 2)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	t.Parallel()

	var rec *Recorder
	locations, err := rec.Capture(context.Background(), "TestX", browser.NewFakeSession())
	assert.NoError(t, err)
	assert.Empty(t, locations)
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultSuite()
	store, err := FromConfig(context.Background(), &cfg)
	require.NoError(t, err)
	assert.Nil(t, store)

	cfg.ArtifactDir = t.TempDir()
	store, err = FromConfig(context.Background(), &cfg)
	require.NoError(t, err)
	assert.IsType(t, &DirStore{}, store)

	cfg.ArtifactBucket = "bucket"
	cfg.AWSEndpointS3 = "http://127.0.0.1:9000"
	cfg.AWSAccessKeyID = "k"
	cfg.AWSSecretKey = "s"
	store, err = FromConfig(context.Background(), &cfg)
	require.NoError(t, err)
	assert.IsType(t, &S3Store{}, store)
}
