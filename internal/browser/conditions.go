package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/kuitang/mlocid-e2e/internal/wait"
)

// Condition is a named predicate over session state.
type Condition struct {
	Description string
	Check       func(ctx context.Context, s Session) (bool, error)
}

// ElementPresent holds once loc is attached to the DOM.
func ElementPresent(loc Locator) Condition {
	return Condition{
		Description: "presence of " + loc.String(),
		Check: func(ctx context.Context, s Session) (bool, error) {
			return s.Present(ctx, loc)
		},
	}
}

// ElementVisible holds once loc is attached and rendered.
func ElementVisible(loc Locator) Condition {
	return Condition{
		Description: "visibility of " + loc.String(),
		Check: func(ctx context.Context, s Session) (bool, error) {
			return s.Visible(ctx, loc)
		},
	}
}

// ElementInvisible holds once loc is absent or not rendered.
func ElementInvisible(loc Locator) Condition {
	return Condition{
		Description: "invisibility of " + loc.String(),
		Check: func(ctx context.Context, s Session) (bool, error) {
			visible, err := s.Visible(ctx, loc)
			if err != nil {
				return false, err
			}
			return !visible, nil
		},
	}
}

// URLContains holds once the current URL contains substr.
func URLContains(substr string) Condition {
	return Condition{
		Description: fmt.Sprintf("url containing %q", substr),
		Check: func(ctx context.Context, s Session) (bool, error) {
			u, err := s.URL(ctx)
			if err != nil {
				return false, err
			}
			return strings.Contains(u, substr), nil
		},
	}
}

// PageContains holds once the page source contains substr.
func PageContains(substr string) Condition {
	return Condition{
		Description: fmt.Sprintf("page source containing %q", substr),
		Check: func(ctx context.Context, s Session) (bool, error) {
			src, err := s.PageSource(ctx)
			if err != nil {
				return false, err
			}
			return strings.Contains(src, substr), nil
		},
	}
}

// PageContainsFold is PageContains ignoring case.
func PageContainsFold(substr string) Condition {
	needle := strings.ToLower(substr)
	return Condition{
		Description: fmt.Sprintf("page source containing %q (any case)", substr),
		Check: func(ctx context.Context, s Session) (bool, error) {
			src, err := s.PageSource(ctx)
			if err != nil {
				return false, err
			}
			return strings.Contains(strings.ToLower(src), needle), nil
		},
	}
}

// AnyOf holds once any of conds holds. Errors from one branch do not mask
// another branch that holds.
func AnyOf(conds ...Condition) Condition {
	descs := make([]string, len(conds))
	for i, c := range conds {
		descs[i] = c.Description
	}
	return Condition{
		Description: strings.Join(descs, " or "),
		Check: func(ctx context.Context, s Session) (bool, error) {
			var firstErr error
			for _, c := range conds {
				ok, err := c.Check(ctx, s)
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				if ok {
					return true, nil
				}
			}
			return false, firstErr
		},
	}
}

// WaitUntil polls cond against s under policy.
func WaitUntil(ctx context.Context, s Session, policy wait.Policy, cond Condition) error {
	return wait.Until(ctx, policy, cond.Description, func(ctx context.Context) (bool, error) {
		return cond.Check(ctx, s)
	})
}
