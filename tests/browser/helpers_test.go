package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	drv "github.com/kuitang/mlocid-e2e/internal/browser"
	"github.com/kuitang/mlocid-e2e/internal/obs"
	"github.com/kuitang/mlocid-e2e/internal/wait"
)

// Locators shared by several scenarios.
var (
	registerForm = drv.ID("registerForm")
	loginForm    = drv.ID("loginForm")
	usernameIn   = drv.ID("username")
	passwordIn   = drv.ID("password")
	submitButton = drv.CSS("button[type='submit']")
	newCardBtn   = drv.ID("newCardBtn")
	logoutLink   = drv.ID("logout")
)

// Credentials are what RegisterFreshUser signed up with.
type Credentials struct {
	Username string
	Password string
}

// UsernameGenerator issues prefix<unix seconds>. A second name inside the
// same second gets "_2", a third "_3", and so on.
type UsernameGenerator struct {
	mu     sync.Mutex
	prefix string
	now    func() time.Time
	second int64
	issued int
}

func NewUsernameGenerator(prefix string, now func() time.Time) *UsernameGenerator {
	return &UsernameGenerator{prefix: prefix, now: now}
}

func (g *UsernameGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	sec := g.now().Unix()
	if sec == g.second && g.issued > 0 {
		g.issued++
	} else {
		g.second, g.issued = sec, 1
	}
	if g.issued == 1 {
		return fmt.Sprintf("%s%d", g.prefix, sec)
	}
	return fmt.Sprintf("%s%d_%d", g.prefix, sec, g.issued)
}

// Scenario is one test's handle on the shared session. Every helper fails
// the test on error.
type Scenario struct {
	t       *testing.T
	ctx     context.Context
	suite   *Suite
	session drv.Session
}

// Start resets the shared session for t and arranges artifact capture if t fails.
func Start(t *testing.T) *Scenario {
	t.Helper()
	if testing.Short() {
		t.Skip("browser scenarios are skipped in -short mode")
	}
	require.NotNil(t, suite, "suite not initialized")
	return newScenario(t, suite)
}

func newScenario(t *testing.T, s *Suite) *Scenario {
	t.Helper()
	runID := ""
	if s.Recorder != nil {
		runID = s.Recorder.RunID
	}
	sc := &Scenario{
		t:       t,
		ctx:     obs.WithTest(context.Background(), runID, t.Name()),
		suite:   s,
		session: s.Session,
	}
	t.Cleanup(sc.captureOnFailure)
	sc.reset()
	return sc
}

// RequireStandIn skips scenarios that read messages only the bundled
// application renders.
func (sc *Scenario) RequireStandIn() {
	sc.t.Helper()
	if !sc.suite.Config.UsesStandIn() {
		sc.t.Skip("needs the bundled application; MLOCID_BASE_URL is set")
	}
}

func (sc *Scenario) log(step string, args ...any) {
	obs.From(sc.ctx).With("pkg", "e2e").Debug("step", append([]any{"step", step}, args...)...)
}

// reset points the session back at the landing page. Cookies survive unless
// the suite isolates them.
func (sc *Scenario) reset() {
	sc.t.Helper()
	if sc.suite.Config.IsolateCookies {
		require.NoError(sc.t, sc.session.ClearCookies(sc.ctx), "clear cookies")
	}
	sc.Navigate(sc.suite.BaseURL)
}

func (sc *Scenario) captureOnFailure() {
	sc.captureIf(sc.t.Failed())
}

func (sc *Scenario) captureIf(failed bool) {
	if !failed || sc.suite.Recorder == nil {
		return
	}
	locations, err := sc.suite.Recorder.Capture(sc.ctx, sc.t.Name(), sc.session)
	for _, loc := range locations {
		sc.t.Logf("artifact: %s", loc)
	}
	if err != nil {
		sc.t.Logf("artifact capture incomplete: %v", err)
	}
}

func (sc *Scenario) Navigate(url string) {
	sc.t.Helper()
	sc.log("navigate", "url", url)
	require.NoError(sc.t, sc.session.Navigate(sc.ctx, url))
}

func (sc *Scenario) Find(loc drv.Locator) {
	sc.t.Helper()
	sc.log("find", "locator", loc.String())
	require.NoError(sc.t, sc.session.Find(sc.ctx, loc))
}

func (sc *Scenario) Click(loc drv.Locator) {
	sc.t.Helper()
	sc.log("click", "locator", loc.String())
	require.NoError(sc.t, sc.session.Click(sc.ctx, loc))
}

func (sc *Scenario) Type(loc drv.Locator, text string) {
	sc.t.Helper()
	sc.log("type", "locator", loc.String(), "chars", len(text))
	require.NoError(sc.t, sc.session.SendKeys(sc.ctx, loc, text))
}

// WaitFor blocks until cond holds or the explicit wait expires.
func (sc *Scenario) WaitFor(cond drv.Condition) {
	sc.t.Helper()
	sc.log("wait", "condition", cond.Description)
	require.NoError(sc.t, drv.WaitUntil(sc.ctx, sc.session, sc.suite.Config.WaitPolicy(), cond))
}

// Settle sleeps for the configured settle delay.
func (sc *Scenario) Settle() {
	sc.t.Helper()
	sc.log("settle", "delay", sc.suite.Config.SettleDelay.String())
	require.NoError(sc.t, wait.Settle(sc.ctx, sc.suite.Config.SettleDelay))
}

func (sc *Scenario) Title() string {
	sc.t.Helper()
	title, err := sc.session.Title(sc.ctx)
	require.NoError(sc.t, err)
	return title
}

func (sc *Scenario) URL() string {
	sc.t.Helper()
	u, err := sc.session.URL(sc.ctx)
	require.NoError(sc.t, err)
	return u
}

func (sc *Scenario) PageSource() string {
	sc.t.Helper()
	src, err := sc.session.PageSource(sc.ctx)
	require.NoError(sc.t, err)
	return src
}

// FillCredentials types into the username and password fields and submits
// the form on screen.
func (sc *Scenario) FillCredentials(c Credentials) {
	sc.t.Helper()
	sc.Type(usernameIn, c.Username)
	sc.Type(passwordIn, c.Password)
	sc.Click(submitButton)
}

// OpenRegister follows the landing page's Register link.
func (sc *Scenario) OpenRegister() {
	sc.t.Helper()
	sc.Click(drv.LinkText("Register"))
	sc.WaitFor(drv.ElementPresent(registerForm))
}

// NewCredentials returns a fresh username with the suite password.
func (sc *Scenario) NewCredentials() Credentials {
	return Credentials{Username: sc.suite.Names.Next(), Password: sc.suite.Config.Password}
}

// RegisterFreshUser signs up a new account from the landing page and waits
// until the Cards screen is ready.
func (sc *Scenario) RegisterFreshUser() Credentials {
	sc.t.Helper()
	creds := sc.NewCredentials()
	sc.OpenRegister()
	sc.FillCredentials(creds)
	sc.WaitFor(drv.ElementPresent(newCardBtn))
	sc.log("registered", "username", creds.Username)
	return creds
}

// Logout clicks the nav logout link and waits for the login form.
func (sc *Scenario) Logout() {
	sc.t.Helper()
	sc.Click(logoutLink)
	sc.WaitFor(drv.ElementPresent(loginForm))
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
