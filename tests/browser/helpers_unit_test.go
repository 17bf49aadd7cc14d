package browser

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

type steppedClock struct {
	times []time.Time
	i     int
}

func (c *steppedClock) Now() time.Time {
	t := c.times[c.i]
	if c.i < len(c.times)-1 {
		c.i++
	}
	return t
}

func TestUsernameGenerator_SuffixesWithinOneSecond(t *testing.T) {
	base := time.Unix(1700000000, 0)
	clock := &steppedClock{times: []time.Time{
		base,
		base.Add(300 * time.Millisecond),
		base.Add(900 * time.Millisecond),
		base.Add(time.Second),
	}}
	g := NewUsernameGenerator("testuser_", clock.Now)

	assert.Equal(t, "testuser_1700000000", g.Next())
	assert.Equal(t, "testuser_1700000000_2", g.Next())
	assert.Equal(t, "testuser_1700000000_3", g.Next())
	assert.Equal(t, "testuser_1700000001", g.Next())
}

func testUsernameGenerator_NamesAreUniqueAndValid(t *rapid.T) {
	start := time.Unix(rapid.Int64Range(1, 1<<40).Draw(t, "start"), 0)
	steps := rapid.SliceOfN(rapid.IntRange(0, 1500), 1, 50).Draw(t, "stepsMillis")

	times := make([]time.Time, len(steps))
	now := start
	for i, ms := range steps {
		now = now.Add(time.Duration(ms) * time.Millisecond)
		times[i] = now
	}
	g := NewUsernameGenerator("testuser_", (&steppedClock{times: times}).Now)

	seen := make(map[string]bool, len(times))
	for range times {
		name := g.Next()
		if seen[name] {
			t.Fatalf("duplicate username %q", name)
		}
		seen[name] = true
		if !strings.HasPrefix(name, "testuser_") || len(name) > 64 {
			t.Fatalf("username %q violates the account rules", name)
		}
	}
}

func TestUsernameGenerator_NamesAreUniqueAndValid(t *testing.T) {
	rapid.Check(t, testUsernameGenerator_NamesAreUniqueAndValid)
}
