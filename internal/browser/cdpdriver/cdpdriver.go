// Package cdpdriver implements browser.Session on chromedp, talking the
// DevTools protocol to a locally installed Chrome or Chromium.
package cdpdriver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/kuitang/mlocid-e2e/internal/browser"
	"github.com/kuitang/mlocid-e2e/internal/obs"
)

// actionTimeout bounds protocol round trips that do not look up elements.
const actionTimeout = 30 * time.Second

// Session is one Chrome tab driven over the DevTools protocol.
type Session struct {
	ctx         context.Context
	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc
	implicit    time.Duration

	lock    sync.RWMutex
	console []string

	closeOnce sync.Once
	closeErr  error
}

var _ browser.Session = (*Session)(nil)

// allocatorOptions turns launch options into exec allocator options.
func allocatorOptions(opts browser.Options) []chromedp.ExecAllocatorOption {
	options := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	options = append(options, chromedp.Flag("headless", opts.Headless))
	if !opts.Headless {
		options = append(options, chromedp.Flag("hide-scrollbars", false), chromedp.Flag("mute-audio", false))
	}
	for _, arg := range opts.Args {
		name, value, ok := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if ok {
			options = append(options, chromedp.Flag(name, value))
		} else {
			options = append(options, chromedp.Flag(name, true))
		}
	}
	if opts.ExecPath != "" {
		options = append(options, chromedp.ExecPath(opts.ExecPath))
	}
	return options
}

// Launch starts the browser subprocess and attaches to its first tab. The
// parent ctx only scopes logging; the browser lives until Close.
func Launch(ctx context.Context, opts browser.Options) (*Session, error) {
	logger := obs.From(ctx).With("pkg", "cdpdriver")

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Warn(fmt.Sprintf(format, args...))
		}),
	)

	s := &Session{
		ctx:         tabCtx,
		cancelAlloc: cancelAlloc,
		cancelTab:   cancelTab,
		implicit:    opts.ImplicitWaitOrDefault(),
	}

	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch ev := ev.(type) {
		case *cdpruntime.EventConsoleAPICalled:
			args := make([]string, len(ev.Args))
			for i, arg := range ev.Args {
				args[i] = strings.Trim(string(arg.Value), `"`)
			}
			s.lock.Lock()
			s.console = append(s.console, "["+ev.Type.String()+"] "+strings.Join(args, " "))
			s.lock.Unlock()
		case *cdpruntime.EventExceptionThrown:
			s.lock.Lock()
			s.console = append(s.console, "[exception] "+ev.ExceptionDetails.Error())
			s.lock.Unlock()
		}
	})

	// No timeout here: cancelling the run context would kill the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	logger.Info("browser_launched", "headless", opts.Headless, "implicit_wait", s.implicit.String())
	return s, nil
}

func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	// Propagate the caller's cancellation into the tab-scoped context.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// query maps a locator onto a chromedp selector and query option.
func query(loc browser.Locator) (string, chromedp.QueryOption, error) {
	if err := loc.Validate(); err != nil {
		return "", nil, err
	}
	switch loc.By {
	case browser.ByID:
		return loc.Value, chromedp.ByID, nil
	case browser.ByLinkText:
		return linkTextXPath(loc.Value), chromedp.BySearch, nil
	default:
		return loc.Value, chromedp.ByQuery, nil
	}
}

func linkTextXPath(text string) string {
	return "//a[normalize-space(.)=" + xpathLiteral(strings.TrimSpace(text)) + "]"
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		quoted = append(quoted, `"`+p+`"`)
	}
	return "concat(" + strings.Join(quoted, ",") + ")"
}

// elementExpr is a JS expression evaluating to the first element matching
// loc, or null.
func elementExpr(loc browser.Locator) (string, error) {
	if err := loc.Validate(); err != nil {
		return "", err
	}
	switch loc.By {
	case browser.ByID:
		v, _ := json.Marshal(loc.Value)
		return "document.getElementById(" + string(v) + ")", nil
	case browser.ByLinkText:
		v, _ := json.Marshal(linkTextXPath(loc.Value))
		return "document.evaluate(" + string(v) + ", document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", nil
	default:
		v, _ := json.Marshal(loc.Value)
		return "document.querySelector(" + string(v) + ")", nil
	}
}

const visibleJS = `(function(el) {
	if (!el) return false;
	const style = window.getComputedStyle(el);
	if (style.visibility === 'hidden' || style.display === 'none') return false;
	return el.getClientRects().length > 0;
})(%s)`

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, actionTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, actionTimeout, chromedp.Title(&title))
	return title, err
}

func (s *Session) URL(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, actionTimeout, chromedp.Location(&url))
	return url, err
}

func (s *Session) PageSource(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, actionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (s *Session) Find(ctx context.Context, loc browser.Locator) error {
	sel, by, err := query(loc)
	if err != nil {
		return err
	}
	if err := s.run(ctx, s.implicit, chromedp.WaitReady(sel, by)); err != nil {
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
	sel, by, _ := query(loc)
	if err := s.run(ctx, s.implicit, chromedp.Click(sel, by, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

func (s *Session) SendKeys(ctx context.Context, loc browser.Locator, text string) error {
	if err := s.Find(ctx, loc); err != nil {
		return err
	}
	sel, by, _ := query(loc)
	if err := s.run(ctx, s.implicit, chromedp.SendKeys(sel, text, by, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("type into %s: %w", loc, err)
	}
	return nil
}

func (s *Session) evalBool(ctx context.Context, expr string) (bool, error) {
	var ok bool
	err := s.run(ctx, actionTimeout, chromedp.Evaluate(expr, &ok))
	return ok, err
}

func (s *Session) Present(ctx context.Context, loc browser.Locator) (bool, error) {
	expr, err := elementExpr(loc)
	if err != nil {
		return false, err
	}
	return s.evalBool(ctx, expr+" !== null")
}

func (s *Session) Visible(ctx context.Context, loc browser.Locator) (bool, error) {
	expr, err := elementExpr(loc)
	if err != nil {
		return false, err
	}
	return s.evalBool(ctx, fmt.Sprintf(visibleJS, expr))
}

func (s *Session) ClearCookies(ctx context.Context) error {
	return s.run(ctx, actionTimeout, network.ClearBrowserCookies())
}

// Screenshot captures the full page as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, actionTimeout, chromedp.FullScreenshot(&buf, 100))
	return buf, err
}

func (s *Session) ConsoleLog() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append([]string(nil), s.console...)
}

// Close shuts the browser down gracefully and releases the allocator.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		err := chromedp.Cancel(s.ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.cancelTab()
		s.cancelAlloc()
		s.closeErr = err
	})
	return s.closeErr
}
