// Package pwdriver implements browser.Session on playwright-go with Chromium.
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/mlocid-e2e/internal/browser"
	"github.com/kuitang/mlocid-e2e/internal/obs"
)

// Session is a single Chromium page driven over the Playwright protocol.
type Session struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	context  playwright.BrowserContext
	page     playwright.Page
	implicit time.Duration

	consoleMu sync.Mutex
	console   []string

	closeOnce sync.Once
	closeErr  error
}

var _ browser.Session = (*Session)(nil)

// Install downloads the Playwright driver and Chromium.
func Install() error {
	if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
		return fmt.Errorf("install playwright chromium: %w", err)
	}
	return nil
}

// Launch starts Playwright, launches Chromium and opens one page whose
// default timeout is the implicit wait.
func Launch(ctx context.Context, opts browser.Options) (*Session, error) {
	logger := obs.From(ctx).With("pkg", "pwdriver")

	if !opts.SkipInstall {
		if err := Install(); err != nil {
			return nil, err
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Args,
	}
	if opts.ExecPath != "" {
		launchOpts.ExecutablePath = playwright.String(opts.ExecPath)
	}
	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	bctx, err := b.NewContext()
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("new browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("new page: %w", err)
	}

	implicit := opts.ImplicitWaitOrDefault()
	page.SetDefaultTimeout(ms(implicit))
	page.SetDefaultNavigationTimeout(ms(3 * implicit))

	s := &Session{
		pw:       pw,
		browser:  b,
		context:  bctx,
		page:     page,
		implicit: implicit,
	}
	page.OnConsole(func(msg playwright.ConsoleMessage) {
		s.consoleMu.Lock()
		s.console = append(s.console, "["+msg.Type()+"] "+msg.Text())
		s.consoleMu.Unlock()
	})

	logger.Info("browser_launched", "headless", opts.Headless, "implicit_wait", implicit.String())
	return s, nil
}

func ms(d time.Duration) float64 {
	return float64(d.Milliseconds())
}

// selector translates a locator into a Playwright selector.
func selector(loc browser.Locator) (string, error) {
	if err := loc.Validate(); err != nil {
		return "", err
	}
	switch loc.By {
	case browser.ByID:
		return "[id=" + strconv.Quote(loc.Value) + "]", nil
	case browser.ByLinkText:
		return "a:text-is(" + strconv.Quote(loc.Value) + ")", nil
	default:
		return loc.Value, nil
	}
}

func (s *Session) locator(loc browser.Locator) (playwright.Locator, error) {
	sel, err := selector(loc)
	if err != nil {
		return nil, err
	}
	return s.page.Locator(sel).First(), nil
}

// bounded runs call and returns early with ctx.Err() if ctx ends first.
// Playwright calls take no context, so an abandoned call finishes in the
// background and its result is dropped.
func bounded[T any](ctx context.Context, call func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// callTimeout is the Playwright timeout in milliseconds for a call that
// would otherwise use limit: limit, cut down to ctx's remaining deadline.
func callTimeout(ctx context.Context, limit time.Duration) float64 {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < limit {
			limit = max(left, time.Millisecond)
		}
	}
	return ms(limit)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(callTimeout(ctx, 3*s.implicit)),
	}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	return bounded(ctx, s.page.Title)
}

func (s *Session) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.page.URL(), nil
}

func (s *Session) PageSource(ctx context.Context) (string, error) {
	return bounded(ctx, s.page.Content)
}

func (s *Session) Find(ctx context.Context, loc browser.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l, err := s.locator(loc)
	if err != nil {
		return err
	}
	if err := l.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(callTimeout(ctx, s.implicit)),
	}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &browser.LookupError{Locator: loc, Timeout: s.implicit, Err: err}
	}
	return nil
}

func (s *Session) Click(ctx context.Context, loc browser.Locator) error {
	if err := s.Find(ctx, loc); err != nil {
		return err
	}
	l, _ := s.locator(loc)
	if err := l.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(callTimeout(ctx, s.implicit)),
	}); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

func (s *Session) SendKeys(ctx context.Context, loc browser.Locator, text string) error {
	if err := s.Find(ctx, loc); err != nil {
		return err
	}
	l, _ := s.locator(loc)
	if err := l.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Timeout: playwright.Float(callTimeout(ctx, s.implicit)),
	}); err != nil {
		return fmt.Errorf("type into %s: %w", loc, err)
	}
	return nil
}

func (s *Session) Present(ctx context.Context, loc browser.Locator) (bool, error) {
	sel, err := selector(loc)
	if err != nil {
		return false, err
	}
	n, err := bounded(ctx, s.page.Locator(sel).Count)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Session) Visible(ctx context.Context, loc browser.Locator) (bool, error) {
	l, err := s.locator(loc)
	if err != nil {
		return false, err
	}
	return bounded(ctx, func() (bool, error) { return l.IsVisible() })
}

func (s *Session) ClearCookies(context.Context) error {
	return s.context.ClearCookies()
}

func (s *Session) Screenshot(context.Context) ([]byte, error) {
	return s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	})
}

func (s *Session) ConsoleLog() []string {
	s.consoleMu.Lock()
	defer s.consoleMu.Unlock()
	return append([]string(nil), s.console...)
}

// Close closes the page and browser and stops the driver. Later calls
// return the first call's result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errList []error
		if err := s.page.Close(); err != nil {
			errList = append(errList, fmt.Errorf("close page: %w", err))
		}
		if err := s.browser.Close(); err != nil {
			errList = append(errList, fmt.Errorf("close browser: %w", err))
		}
		if err := s.pw.Stop(); err != nil {
			errList = append(errList, fmt.Errorf("stop playwright: %w", err))
		}
		s.closeErr = errors.Join(errList...)
	})
	return s.closeErr
}
