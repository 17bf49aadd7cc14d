package mlocid

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/mlocid-e2e/internal/errs"
)

const (
	MinPasswordLength = 6
	minUsernameLength = 3
	maxUsernameLength = 64
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Errors
var (
	ErrInvalidCredentials = errs.New(errs.Unauthenticated, "invalid username or password")
	ErrAccountExists      = errs.New(errs.FailedPrecondition, "username already exists")
	ErrSessionNotFound    = errs.New(errs.Unauthenticated, "not logged in")
	ErrCardNotFound       = errs.New(errs.NotFound, "card not found")
)

// User is a registered account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	CreatedAt    time.Time `json:"created_at"`
	passwordHash string
}

// Card is one flashcard with its review schedule.
type Card struct {
	ID          int64     `json:"id"`
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	AnswerHTML  string    `json:"answer_html"`
	EFactor     float64   `json:"efactor"`
	Interval    int       `json:"interval"`
	Repetitions int       `json:"repetitions"`
	NextReview  time.Time `json:"next_review"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	userID int64
}

func (c *Card) schedule() Schedule {
	return Schedule{EFactor: c.EFactor, Interval: c.Interval, Repetitions: c.Repetitions, NextReview: c.NextReview}
}

func (c *Card) setSchedule(s Schedule) {
	c.EFactor, c.Interval, c.Repetitions, c.NextReview = s.EFactor, s.Interval, s.Repetitions, s.NextReview
}

type session struct {
	userID    int64
	expiresAt time.Time
}

// Store keeps users, sessions and cards in memory. It is safe for
// concurrent use; the browser issues overlapping requests.
type Store struct {
	mu sync.Mutex

	hasher          PasswordHasher
	now             func() time.Time
	sessionDuration time.Duration

	users      map[string]*User
	usersByID  map[int64]*User
	sessions   map[string]session
	cards      map[int64]*Card
	nextUserID int64
	nextCardID int64
}

// NewStore returns an empty store.
func NewStore(hasher PasswordHasher, sessionDuration time.Duration, now func() time.Time) *Store {
	if hasher == nil {
		hasher = Argon2Hasher{}
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		hasher:          hasher,
		now:             now,
		sessionDuration: sessionDuration,
		users:           make(map[string]*User),
		usersByID:       make(map[int64]*User),
		sessions:        make(map[string]session),
		cards:           make(map[int64]*Card),
	}
}

// ValidateCredentials checks the registration rules for a username and password.
func ValidateCredentials(username, password string) error {
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return errs.New(errs.InvalidArgument, "username must be 3-64 characters")
	}
	if !usernamePattern.MatchString(username) {
		return errs.New(errs.InvalidArgument, "username may contain only letters, digits, '.', '_' and '-'")
	}
	if len(password) < MinPasswordLength {
		return errs.New(errs.InvalidArgument, "password must be at least 6 characters")
	}
	return nil
}

// Register creates an account.
func (s *Store) Register(_ context.Context, username, password string) (*User, error) {
	if err := ValidateCredentials(username, password); err != nil {
		return nil, err
	}
	// Hash outside the lock.
	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "hash password", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return nil, ErrAccountExists
	}
	s.nextUserID++
	u := &User{
		ID:           s.nextUserID,
		Username:     username,
		CreatedAt:    s.now(),
		passwordHash: hash,
	}
	s.users[username] = u
	s.usersByID[u.ID] = u
	return u, nil
}

// Authenticate verifies a username and password.
func (s *Store) Authenticate(_ context.Context, username, password string) (*User, error) {
	s.mu.Lock()
	u, ok := s.users[username]
	s.mu.Unlock()
	if !ok || !s.hasher.VerifyPassword(password, u.passwordHash) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// CreateSession starts a session for userID and returns its id.
func (s *Store) CreateSession(_ context.Context, userID int64) (string, time.Time) {
	id := uuid.NewString()
	expiresAt := s.now().Add(s.sessionDuration)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = session{userID: userID, expiresAt: expiresAt}
	return id, expiresAt
}

// SessionUser resolves a session id to its user. Expired sessions are removed.
func (s *Store) SessionUser(_ context.Context, sessionID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !s.now().Before(sess.expiresAt) {
		delete(s.sessions, sessionID)
		return nil, ErrSessionNotFound
	}
	u, ok := s.usersByID[sess.userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return u, nil
}

// DeleteSession ends a session. Unknown ids are ignored.
func (s *Store) DeleteSession(_ context.Context, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// ListCards returns a user's cards, oldest first.
func (s *Store) ListCards(_ context.Context, userID int64) []Card {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Card, 0)
	for _, c := range s.cards {
		if c.userID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) ownedCard(userID, cardID int64) (*Card, error) {
	c, ok := s.cards[cardID]
	if !ok || c.userID != userID {
		return nil, ErrCardNotFound
	}
	return c, nil
}

// GetCard returns one of the user's cards.
func (s *Store) GetCard(_ context.Context, userID, cardID int64) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.ownedCard(userID, cardID)
	if err != nil {
		return Card{}, err
	}
	return *c, nil
}

// CreateCards adds cards for a user atomically; new cards are due immediately.
func (s *Store) CreateCards(_ context.Context, userID int64, inputs []CardInput) ([]Card, error) {
	for i := range inputs {
		if err := inputs[i].Validate(); err != nil {
			return nil, err
		}
	}

	rendered := make([]string, len(inputs))
	for i, in := range inputs {
		rendered[i] = RenderMarkdown(in.Answer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]Card, 0, len(inputs))
	for i, in := range inputs {
		s.nextCardID++
		c := &Card{
			ID:         s.nextCardID,
			Question:   in.Question,
			Answer:     in.Answer,
			AnswerHTML: rendered[i],
			CreatedAt:  now,
			UpdatedAt:  now,
			userID:     userID,
		}
		c.setSchedule(NewSchedule(now))
		s.cards[c.ID] = c
		out = append(out, *c)
	}
	return out, nil
}

// UpdateCard replaces a card's question and answer, keeping its schedule.
func (s *Store) UpdateCard(_ context.Context, userID, cardID int64, in CardInput) (Card, error) {
	if err := in.Validate(); err != nil {
		return Card{}, err
	}
	answerHTML := RenderMarkdown(in.Answer)

	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.ownedCard(userID, cardID)
	if err != nil {
		return Card{}, err
	}
	c.Question = in.Question
	c.Answer = in.Answer
	c.AnswerHTML = answerHTML
	c.UpdatedAt = s.now()
	return *c, nil
}

// DeleteCard removes one of the user's cards.
func (s *Store) DeleteCard(_ context.Context, userID, cardID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.ownedCard(userID, cardID); err != nil {
		return err
	}
	delete(s.cards, cardID)
	return nil
}

// DueCards returns the user's cards whose next review is not in the future,
// most overdue first.
func (s *Store) DueCards(_ context.Context, userID int64) []Card {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]Card, 0)
	for _, c := range s.cards {
		if c.userID == userID && !c.NextReview.After(now) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextReview.Equal(out[j].NextReview) {
			return out[i].NextReview.Before(out[j].NextReview)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ReviewCard applies an SM-2 grade to one of the user's cards.
func (s *Store) ReviewCard(_ context.Context, userID, cardID int64, quality int) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.ownedCard(userID, cardID)
	if err != nil {
		return Card{}, err
	}
	now := s.now()
	next, err := Review(c.schedule(), quality, now)
	if err != nil {
		return Card{}, err
	}
	c.setSchedule(next)
	c.UpdatedAt = now
	return *c, nil
}
