package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeElement is one scripted element in a FakeSession.
type FakeElement struct {
	Visible bool
	Value   string
	// OnClick runs with the session lock released after a successful click.
	OnClick func(f *FakeSession)
}

// FakeSession is an in-memory Session for unit tests. Elements are keyed by
// locator; Find and friends never wait.
type FakeSession struct {
	mu       sync.Mutex
	url      string
	title    string
	source   string
	elements map[Locator]*FakeElement
	cookies  int
	console  []string
	closed   bool

	Clicks []Locator
	// Pages maps a navigated URL to the page source it should show.
	Pages map[string]string
	// Err, when set, is returned by every state-reading call.
	Err error
}

var _ Session = (*FakeSession)(nil)

// NewFakeSession returns an empty fake at about:blank.
func NewFakeSession() *FakeSession {
	return &FakeSession{
		url:      "about:blank",
		elements: make(map[Locator]*FakeElement),
		Pages:    make(map[string]string),
	}
}

// SetElement adds or replaces an element.
func (f *FakeSession) SetElement(loc Locator, el FakeElement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.elements[loc] = &el
}

// RemoveElement detaches an element.
func (f *FakeSession) RemoveElement(loc Locator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.elements, loc)
}

// SetVisible toggles an attached element's visibility.
func (f *FakeSession) SetVisible(loc Locator, visible bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if el, ok := f.elements[loc]; ok {
		el.Visible = visible
	}
}

// SetPage sets the current url, title and source directly.
func (f *FakeSession) SetPage(url, title, source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url, f.title, f.source = url, title, source
}

// Value returns the text typed into loc.
func (f *FakeSession) Value(loc Locator) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if el, ok := f.elements[loc]; ok {
		return el.Value
	}
	return ""
}

// Log appends a console line.
func (f *FakeSession) Log(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.console = append(f.console, line)
}

// CookieClears reports how many times ClearCookies ran.
func (f *FakeSession) CookieClears() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cookies
}

// Closed reports whether Close ran.
func (f *FakeSession) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeSession) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("navigate %s: session closed", url)
	}
	f.url = url
	f.source = f.Pages[url]
	return nil
}

func (f *FakeSession) Title(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title, f.Err
}

func (f *FakeSession) URL(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, f.Err
}

func (f *FakeSession) PageSource(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.source, f.Err
}

func (f *FakeSession) lookup(loc Locator) (*FakeElement, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	el, ok := f.elements[loc]
	if !ok {
		return nil, &LookupError{Locator: loc}
	}
	return el, nil
}

func (f *FakeSession) Find(_ context.Context, loc Locator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.lookup(loc)
	return err
}

func (f *FakeSession) Click(_ context.Context, loc Locator) error {
	f.mu.Lock()
	el, err := f.lookup(loc)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	if !el.Visible {
		f.mu.Unlock()
		return fmt.Errorf("click %s: element not visible", loc)
	}
	f.Clicks = append(f.Clicks, loc)
	onClick := el.OnClick
	f.mu.Unlock()

	if onClick != nil {
		onClick(f)
	}
	return nil
}

func (f *FakeSession) SendKeys(_ context.Context, loc Locator, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	el, err := f.lookup(loc)
	if err != nil {
		return err
	}
	el.Value += text
	return nil
}

func (f *FakeSession) Present(_ context.Context, loc Locator) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	_, ok := f.elements[loc]
	return ok, nil
}

func (f *FakeSession) Visible(_ context.Context, loc Locator) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	el, ok := f.elements[loc]
	return ok && el.Visible, nil
}

func (f *FakeSession) ClearCookies(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies++
	return nil
}

func (f *FakeSession) Screenshot(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// PNG signature only; enough for artifact plumbing.
	return []byte("\x89PNG\r\n\x1a\n" + strings.TrimSpace(f.url)), nil
}

func (f *FakeSession) ConsoleLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.console...)
}

func (f *FakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
