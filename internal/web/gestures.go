package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"teamcal/internal/gesture"
	appLog "teamcal/internal/log"
	"teamcal/internal/model"
	"teamcal/internal/store"
	"teamcal/internal/view"
)

// gestureIdle is how long an untouched drag-to-create session survives.
const gestureIdle = 30 * time.Minute

// maxGestureBody bounds pointer request bodies.
const maxGestureBody = 4 << 10

// gestureSessions holds one view.Session per open client view. Each session
// snaps with the configured gesture options and commits through the store.
type gestureSessions struct {
	mu       sync.Mutex
	sessions map[string]*gestureEntry
}

type gestureEntry struct {
	session  *view.Session
	lastUsed time.Time
}

func (g *gestureSessions) add(id string, s *view.Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessions == nil {
		g.sessions = make(map[string]*gestureEntry)
	}
	g.sessions[id] = &gestureEntry{session: s, lastUsed: time.Now()}
}

func (g *gestureSessions) get(id string) (*view.Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastUsed = time.Now()
	return e.session, true
}

func (g *gestureSessions) remove(id string) (*view.Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.sessions[id]
	if !ok {
		return nil, false
	}
	delete(g.sessions, id)
	return e.session, true
}

// prune drops sessions idle since before cutoff and returns them for Close.
func (g *gestureSessions) prune(cutoff time.Time) []*view.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*view.Session
	for id, e := range g.sessions {
		if e.lastUsed.Before(cutoff) {
			out = append(out, e.session)
			delete(g.sessions, id)
		}
	}
	return out
}

// drain removes every session.
func (g *gestureSessions) drain() []*view.Session {
	return g.prune(time.Now().Add(time.Hour))
}

type gestureSessionRequest struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

type pointerRequest struct {
	Date   string  `json:"date"`
	Column int     `json:"column"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button int     `json:"button"`
}

type ghostDTO struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Column *int      `json:"column,omitempty"`
}

type gestureStateDTO struct {
	Session string    `json:"session,omitempty"`
	Phase   string    `json:"phase"`
	Ghost   *ghostDTO `json:"ghost,omitempty"`
	// Draft is set on the pointer-up that promoted the ghost; it is being
	// persisted in the background.
	Draft *ghostDTO `json:"draft,omitempty"`
}

func (s *Server) newGestureSession(g view.Geometry) *view.Session {
	create := func(ctx context.Context, d model.Draft) (model.Event, error) {
		return store.CreateFromDraft(ctx, s.store, d)
	}
	return view.NewSession(s.composer, g, create, view.WithGestureOptions(s.gestureOpts...))
}

// handleOpenGesture starts a drag-to-create session for one rendered time
// grid.
//
// POST /api/gestures {"top": px, "height": px}
func (s *Server) handleOpenGesture(w http.ResponseWriter, r *http.Request) {
	var req gestureSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Height <= 0 {
		writeError(w, http.StatusBadRequest, "height must be positive")
		return
	}

	for _, stale := range s.gestures.prune(time.Now().Add(-gestureIdle)) {
		go stale.Close()
	}

	id := uuid.NewString()
	sess := s.newGestureSession(view.Geometry{Top: req.Top, Height: req.Height})
	s.gestures.add(id, sess)

	appLog.Debug("gesture session opened", "session", id)
	writeJSON(w, http.StatusCreated, gestureStateDTO{Session: id, Phase: sess.Phase().String()})
}

func (s *Server) handleGestureDown(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.gestureSession(w, r)
	if !ok {
		return
	}
	var req pointerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	day := s.today()
	if req.Date != "" {
		d, err := model.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		day = d
	}
	sess.PointerDown(req.Column, day, gesture.Pointer{X: req.X, Y: req.Y, Button: gesture.Button(req.Button)})
	writeJSON(w, http.StatusOK, s.gestureState(sess))
}

func (s *Server) handleGestureMove(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.gestureSession(w, r)
	if !ok {
		return
	}
	var req pointerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess.PointerMove(gesture.Pointer{X: req.X, Y: req.Y})
	writeJSON(w, http.StatusOK, s.gestureState(sess))
}

// handleGestureUp promotes the ghost. The event is created asynchronously,
// so a promoted draft answers 202.
func (s *Server) handleGestureUp(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.gestureSession(w, r)
	if !ok {
		return
	}
	draft, promoted := sess.PointerUp()
	state := s.gestureState(sess)
	if !promoted {
		writeJSON(w, http.StatusOK, state)
		return
	}
	state.Draft = s.toGhostDTO(draft.Start, draft.End, draft.DayColumnIndex)
	writeJSON(w, http.StatusAccepted, state)
}

func (s *Server) handleGestureEscape(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.gestureSession(w, r)
	if !ok {
		return
	}
	sess.Escape()
	writeJSON(w, http.StatusOK, s.gestureState(sess))
}

// handleCloseGesture discards the session after pending drafts are stored.
func (s *Server) handleCloseGesture(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.gestures.remove(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown gesture session")
		return
	}
	sess.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) gestureSession(w http.ResponseWriter, r *http.Request) (*view.Session, bool) {
	sess, ok := s.gestures.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown gesture session")
	}
	return sess, ok
}

func (s *Server) gestureState(sess *view.Session) gestureStateDTO {
	out := gestureStateDTO{Phase: sess.Phase().String()}
	if g, ok := sess.Ghost(); ok {
		out.Ghost = s.toGhostDTO(g.StartTime, g.EndTime, g.DayColumnIndex)
	}
	return out
}

func (s *Server) toGhostDTO(start, end time.Time, column *int) *ghostDTO {
	loc := s.location()
	return &ghostDTO{Start: start.In(loc), End: end.In(loc), Column: column}
}

// closeGestures closes every open session, waiting for pending drafts.
func (s *Server) closeGestures() {
	for _, sess := range s.gestures.drain() {
		sess.Close()
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGestureBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return false
	}
	return true
}
