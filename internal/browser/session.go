// Package browser defines the session handle the suite drives, the locators
// it looks elements up with, and the conditions its explicit waits poll.
//
// Two timeout policies compose here without layering. Find, Click and
// SendKeys apply the session's implicit wait to the element lookup. Present,
// Visible, Title, URL and PageSource answer immediately, so an explicit wait
// built from them is bounded only by its own policy.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kuitang/mlocid-e2e/internal/errs"
)

// DefaultImplicitWait bounds every element lookup that has no explicit wait.
const DefaultImplicitWait = 10 * time.Second

// By selects how a Locator's value is interpreted.
type By string

const (
	ByID       By = "id"
	ByLinkText By = "link text"
	ByCSS      By = "css selector"
)

// Locator identifies one DOM element.
type Locator struct {
	By    By
	Value string
}

// ID locates an element by its id attribute.
func ID(id string) Locator { return Locator{By: ByID, Value: id} }

// LinkText locates an anchor whose visible text equals text exactly.
func LinkText(text string) Locator { return Locator{By: ByLinkText, Value: text} }

// CSS locates the first element matching a CSS selector.
func CSS(selector string) Locator { return Locator{By: ByCSS, Value: selector} }

func (l Locator) String() string {
	return fmt.Sprintf("%s=%q", l.By, l.Value)
}

// Validate rejects locators no backend can resolve.
func (l Locator) Validate() error {
	switch l.By {
	case ByID, ByLinkText, ByCSS:
	default:
		return errs.New(errs.InvalidArgument, fmt.Sprintf("unknown locator strategy %q", l.By))
	}
	if strings.TrimSpace(l.Value) == "" {
		return errs.New(errs.InvalidArgument, "locator value is empty")
	}
	return nil
}

// Session is a live handle to one controlled browser page.
type Session interface {
	// Navigate loads url and returns once the document has loaded.
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	// PageSource returns the serialized current DOM.
	PageSource(ctx context.Context) (string, error)

	// Find waits up to the implicit wait for loc to be attached.
	Find(ctx context.Context, loc Locator) error
	// Click finds loc under the implicit wait and clicks it.
	Click(ctx context.Context, loc Locator) error
	// SendKeys finds loc under the implicit wait and types text into it.
	SendKeys(ctx context.Context, loc Locator, text string) error

	// Present reports whether loc is attached right now.
	Present(ctx context.Context, loc Locator) (bool, error)
	// Visible reports whether loc is attached and rendered right now.
	Visible(ctx context.Context, loc Locator) (bool, error)

	ClearCookies(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	// ConsoleLog returns browser console lines captured so far.
	ConsoleLog() []string

	// Close terminates the browser. It is safe to call more than once.
	Close() error
}

// LookupError reports an element that did not appear within the implicit wait.
type LookupError struct {
	Locator Locator
	Timeout time.Duration
	Err     error
}

func (e *LookupError) Error() string {
	msg := fmt.Sprintf("element %s not found within %s", e.Locator, e.Timeout)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LookupError) Unwrap() error { return e.Err }

// ErrorCode implements errs.Coder.
func (e *LookupError) ErrorCode() errs.Code { return errs.NotFound }

// Options configures a backend at launch.
type Options struct {
	Headless     bool
	ImplicitWait time.Duration
	// Args are extra browser command-line switches.
	Args []string
	// ExecPath overrides the browser binary; empty means the backend default.
	ExecPath string
	// SkipInstall skips the backend's browser download step.
	SkipInstall bool
}

// DefaultArgs are the switches for restricted CI containers.
var DefaultArgs = []string{"--no-sandbox", "--disable-dev-shm-usage"}

// DefaultOptions returns headless options with the CI switches and a 10s implicit wait.
func DefaultOptions() Options {
	return Options{
		Headless:     true,
		ImplicitWait: DefaultImplicitWait,
		Args:         append([]string(nil), DefaultArgs...),
	}
}

// ImplicitWaitOrDefault returns the configured implicit wait, or the default when unset.
func (o Options) ImplicitWaitOrDefault() time.Duration {
	if o.ImplicitWait <= 0 {
		return DefaultImplicitWait
	}
	return o.ImplicitWait
}
