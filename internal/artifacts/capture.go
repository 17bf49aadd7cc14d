package artifacts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kuitang/mlocid-e2e/internal/browser"
	"github.com/kuitang/mlocid-e2e/internal/obs"
)

const (
	ScreenshotName = "screenshot.png"
	PageName       = "page.html"
	ConsoleName    = "console.log"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Key builds "<run-id>/<test-name>/<name>". Subtest separators and other
// unsafe characters in the test name collapse to underscores.
func Key(runID, testName, name string) string {
	safe := strings.Trim(unsafeKeyChars.ReplaceAllString(testName, "_"), "_.")
	if safe == "" {
		safe = "unnamed"
	}
	return runID + "/" + safe + "/" + name
}

// Recorder captures session state into a Store under one run id.
type Recorder struct {
	Store Store
	RunID string
}

// NewRecorder returns a Recorder with a fresh run id.
func NewRecorder(store Store) *Recorder {
	return &Recorder{Store: store, RunID: obs.NewID()}
}

// Capture saves whatever the session can still produce. Every piece is
// attempted even if an earlier one fails; the returned locations cover what
// was stored.
func (r *Recorder) Capture(ctx context.Context, testName string, s browser.Session) ([]string, error) {
	if r == nil || r.Store == nil {
		return nil, nil
	}
	logger := obs.From(ctx).With("pkg", "artifacts")

	var (
		locations []string
		errList   []error
	)
	put := func(name, contentType string, data []byte) {
		key := Key(r.RunID, testName, name)
		if err := r.Store.Put(ctx, key, data, contentType); err != nil {
			errList = append(errList, err)
			return
		}
		locations = append(locations, r.Store.Location(key))
	}

	if shot, err := s.Screenshot(ctx); err != nil {
		errList = append(errList, fmt.Errorf("screenshot: %w", err))
	} else {
		put(ScreenshotName, "image/png", shot)
	}

	if html, err := s.PageSource(ctx); err != nil {
		errList = append(errList, fmt.Errorf("page source: %w", err))
	} else {
		put(PageName, "text/html; charset=utf-8", []byte(html))
	}

	console := strings.Join(s.ConsoleLog(), "\n")
	put(ConsoleName, "text/plain; charset=utf-8", []byte(console))

	err := errors.Join(errList...)
	logger.Info("artifacts_captured", "test", testName, "stored", len(locations), "error", err)
	return locations, err
}
