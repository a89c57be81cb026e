package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/dgallion1/deckgen/internal/deck"
	"github.com/dgallion1/deckgen/internal/stream"
)

// SessionStatus is the state of one generation session. Apart from queued it
// mirrors the stream driver's states.
type SessionStatus string

const (
	StatusQueued     SessionStatus = "queued"
	StatusStreaming  SessionStatus = SessionStatus(stream.StateStreaming)
	StatusFinalizing SessionStatus = SessionStatus(stream.StateFinalizing)
	StatusDone       SessionStatus = SessionStatus(stream.StateDone)
	StatusCancelled  SessionStatus = SessionStatus(stream.StateCancelled)
	StatusFailed     SessionStatus = SessionStatus(stream.StateFailed)
)

// Terminal reports whether the session has stopped producing slides.
func (s SessionStatus) Terminal() bool {
	return stream.State(s).Terminal()
}

// Event types sent to subscribers.
const (
	EventUpdate = "update"
	EventImage  = "image"
)

// Event is one message for a session subscriber.
type Event struct {
	Type   string         `json:"type"`
	Update *stream.Update `json:"update,omitempty"`
	Image  *ImageEvent    `json:"image,omitempty"`
}

// ImageEvent reports a resolved root image.
type ImageEvent struct {
	SlideID string `json:"slide_id"`
	Query   string `json:"query"`
	URL     string `json:"url"`
}

const subscriberBuffer = 64

// Session tracks one presentation being generated from an outline.
type Session struct {
	mu sync.Mutex

	ID             string `json:"session_id"`
	PresentationID string `json:"presentation_id"`

	Title    string   `json:"title"`
	Outline  []string `json:"outline"`
	Language string   `json:"language"`
	Tone     string   `json:"tone"`
	Theme    string   `json:"theme"`

	Status SessionStatus `json:"status"`
	Error  string        `json:"error,omitempty"`
	Seq    int           `json:"seq"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	slides          []deck.Slide
	resolved        map[string]ImageEvent
	cancel          context.CancelFunc
	cancelRequested bool
	subs            map[int]chan Event
	nextSub         int
	closed          bool

	// persist serializes saving against image delivery so a resolved URL is
	// either in the saved copy or written after it. saved is guarded by it.
	persist sync.Mutex
	saved   bool
}

// NewSession creates a queued session with fresh session and presentation ids.
func NewSession(title string, outline []string, language, tone, theme string) *Session {
	now := time.Now()
	return &Session{
		ID:             generateULID(),
		PresentationID: generateULID(),
		Title:          title,
		Outline:        append([]string(nil), outline...),
		Language:       language,
		Tone:           tone,
		Theme:          theme,
		Status:         StatusQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
		slides:         []deck.Slide{},
		resolved:       make(map[string]ImageEvent),
		subs:           make(map[int]chan Event),
	}
}

// SetStatus updates the status and error message.
func (s *Session) SetStatus(status SessionStatus, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
	if errMsg != "" {
		s.Error = errMsg
	}
	s.UpdatedAt = time.Now()
}

// applyUpdate records a driver update and forwards it to subscribers.
// Image URLs already resolved for a slide survive re-emission. Terminal
// states are left to the worker, which sets them once results are saved.
func (s *Session) applyUpdate(u stream.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fillImagesLocked(u.Slides)
	s.fillImagesLocked(u.Changed)
	s.slides = u.Slides
	if st := SessionStatus(u.State); !st.Terminal() {
		s.Status = st
	}
	s.Seq = u.Seq
	if u.Error != "" {
		s.Error = u.Error
	}
	s.UpdatedAt = time.Now()
	s.broadcastLocked(Event{Type: EventUpdate, Update: &u})
}

func (s *Session) fillImagesLocked(slides []deck.Slide) {
	for i := range slides {
		img := slides[i].RootImage
		if img == nil {
			continue
		}
		if r, ok := s.resolved[slides[i].ID]; ok && r.Query == img.Query {
			img.URL = r.URL
		}
	}
}

// ApplyImage fills in a resolved root image. It reports false when the slide
// is gone or its query no longer matches.
func (s *Session) ApplyImage(slideID, query, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slides {
		sl := &s.slides[i]
		if sl.ID != slideID {
			continue
		}
		if sl.RootImage == nil || sl.RootImage.Query != query {
			return false
		}
		sl.RootImage.URL = url
		ev := ImageEvent{SlideID: slideID, Query: query, URL: url}
		s.resolved[slideID] = ev
		s.UpdatedAt = time.Now()
		s.broadcastLocked(Event{Type: EventImage, Image: &ev})
		return true
	}
	return false
}

// Slides returns a copy of the current slide list.
func (s *Session) Slides() []deck.Slide {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deck.Clone(s.slides)
}

// presentation builds the persisted form of the session.
func (s *Session) presentation() *deck.Presentation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &deck.Presentation{
		ID:        s.PresentationID,
		Title:     s.Title,
		Outline:   append([]string(nil), s.Outline...),
		Slides:    deck.Clone(s.slides),
		Theme:     s.Theme,
		Language:  s.Language,
		CreatedAt: s.CreatedAt.UTC(),
	}
}

// Subscribe returns a channel of events and a function to stop receiving.
// The channel is closed when the session finishes. A subscriber that falls
// behind misses events and should fall back to Snapshot.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) broadcastLocked(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// finish closes every subscriber channel.
func (s *Session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// start registers the cancel function of the running stream. It reports false
// if the session was cancelled while still queued.
func (s *Session) start(cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelRequested {
		return false
	}
	s.cancel = cancel
	return true
}

// Cancel stops the session. It reports false if it had already finished.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status.Terminal() {
		return false
	}
	s.cancelRequested = true
	if s.cancel != nil {
		s.cancel()
	}
	return true
}

// SessionSnapshot is a read-only, JSON-safe copy of session state.
type SessionSnapshot struct {
	ID             string        `json:"session_id"`
	PresentationID string        `json:"presentation_id"`
	Title          string        `json:"title"`
	Outline        []string      `json:"outline"`
	Status         SessionStatus `json:"status"`
	Error          string        `json:"error,omitempty"`
	Seq            int           `json:"seq"`
	Count          int           `json:"count"`
	Slides         []deck.Slide  `json:"slides"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the session state.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	outline := append([]string{}, s.Outline...)
	return SessionSnapshot{
		ID:             s.ID,
		PresentationID: s.PresentationID,
		Title:          s.Title,
		Outline:        outline,
		Status:         s.Status,
		Error:          s.Error,
		Seq:            s.Seq,
		Count:          len(s.slides),
		Slides:         deck.Clone(s.slides),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// SessionStore is a thread-safe in-memory session registry with TTL eviction.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

func (s *SessionStore) Put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *SessionStore) Get(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

// Len returns the number of tracked sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Cleanup removes finished sessions idle for longer than the TTL.
func (s *SessionStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, sess := range s.sessions {
		sess.mu.Lock()
		expired := sess.Status.Terminal() && now.Sub(sess.UpdatedAt) > s.ttl
		sess.mu.Unlock()
		if expired {
			delete(s.sessions, id)
		}
	}
}
