package demo

import (
	"errors"
	"sort"
	"sync"
	"time"

	"seren/internal/capture"
)

var (
	errSessionNotFound  = errors.New("Session not found")
	errSessionCompleted = errors.New("Session already completed")
	errModeNotSet       = errors.New("Capture mode not set")
)

// storedImage records an accepted upload. Image bytes are not retained.
type storedImage struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

type session struct {
	ID          string
	Resident    capture.ResidentInfo
	Mode        capture.Mode
	Captures    map[capture.CaptureType]storedImage
	CreatedAt   time.Time
	CompletedAt time.Time
}

func (s *session) status() string {
	switch {
	case !s.CompletedAt.IsZero():
		return "completed"
	case s.Mode == "":
		return "started"
	default:
		return "capturing"
	}
}

func (s *session) missing() []capture.CaptureType {
	var out []capture.CaptureType
	for _, t := range capture.RequiredCaptures(s.Mode) {
		if _, ok := s.Captures[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// store keeps demo sessions in memory.
type store struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newStore() *store {
	return &store{sessions: make(map[string]*session)}
}

func (st *store) create(id string, resident capture.ResidentInfo, now time.Time) *session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := &session{
		ID:        id,
		Resident:  resident,
		Captures:  make(map[capture.CaptureType]storedImage),
		CreatedAt: now,
	}
	st.sessions[id] = s
	return s
}

// update runs fn on the session while holding the store lock.
func (st *store) update(id string, fn func(*session) error) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return errSessionNotFound
	}
	return fn(s)
}

type stats struct {
	Sessions          int   `json:"sessions"`
	ActiveSessions    int   `json:"activeSessions"`
	CompletedSessions int   `json:"completedSessions"`
	TotalImages       int   `json:"totalImages"`
	TotalBytes        int64 `json:"totalBytes"`
}

func (st *store) stats() stats {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out stats
	for _, s := range st.sessions {
		out.Sessions++
		if s.CompletedAt.IsZero() {
			out.ActiveSessions++
		} else {
			out.CompletedSessions++
		}
		for _, img := range s.Captures {
			out.TotalImages++
			out.TotalBytes += img.Size
		}
	}
	return out
}

func sortedTypes(m map[capture.CaptureType]storedImage) []capture.CaptureType {
	out := make([]capture.CaptureType, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
