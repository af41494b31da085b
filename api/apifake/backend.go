// Package apifake runs an in-memory backend over httptest for client tests.
package apifake

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matt-kaep/WI-frontend/models"
)

// Failure replaces the next Times responses of one route.
type Failure struct {
	Status      int
	ContentType string
	Body        string
	Times       int
}

// Request is one recorded call.
type Request struct {
	Method        string
	Path          string
	Query         string
	Authorization string
}

type Upload struct {
	SessionID   string
	LinkedInURL string
	FileName    string
	Content     string
}

type FakeBackend struct {
	URL string

	server *httptest.Server

	mu          sync.Mutex
	sessions    []models.WorkSession
	activeID    string
	stats       map[string]models.SessionStats
	statuses    map[string][]models.SessionStatus
	connections []models.Connection
	prospects   []models.Prospect
	saved       map[string][]models.Prospect
	scores      map[string]float64
	resumes     map[string]models.ProfileResume
	failures    map[string]*Failure
	requests    []Request
	uploads     []Upload
	filters     []models.ProspectFilter
	nextConnID  int64
}

func New() *FakeBackend {
	b := &FakeBackend{
		stats:      make(map[string]models.SessionStats),
		statuses:   make(map[string][]models.SessionStatus),
		saved:      make(map[string][]models.Prospect),
		scores:     make(map[string]float64),
		resumes:    make(map[string]models.ProfileResume),
		failures:   make(map[string]*Failure),
		nextConnID: 1000,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /session/all", b.listSessions)
	mux.HandleFunc("POST /session/create", b.createSession)
	mux.HandleFunc("GET /session/current", b.currentSession)
	mux.HandleFunc("GET /session/{id}/{action}", b.sessionGet)
	mux.HandleFunc("POST /session/{id}/activate", b.activateSession)
	mux.HandleFunc("POST /upload-connections/", b.uploadConnections)
	mux.HandleFunc("GET /user-connections", b.recomputeConnections)
	mux.HandleFunc("GET /connections/existing", b.existingConnections)
	mux.HandleFunc("GET /connections/favorites", b.favoriteConnections)
	mux.HandleFunc("PATCH /connections/{id}/toggle-favorite", b.toggleFavorite)
	mux.HandleFunc("POST /insert_new_connection", b.insertConnection)
	mux.HandleFunc("POST /find-prospects/", b.findProspects)
	mux.HandleFunc("POST /prospects-connections/", b.computeProspects)
	mux.HandleFunc("GET /profile_resume/", b.profileResume)
	mux.HandleFunc("GET /sessions/{id}/prospects", b.sessionProspects)

	b.server = httptest.NewServer(b.middleware(mux))
	b.URL = b.server.URL + "/"
	return b
}

func (b *FakeBackend) Close() {
	b.server.Close()
}

// Fail makes the next f.Times calls to "METHOD /path" answer with f.
// Times of zero means once.
func (b *FakeBackend) Fail(route string, f Failure) {
	if f.Times == 0 {
		f.Times = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = &f
}

// AddSession stores a session as if it had been created earlier.
func (b *FakeBackend) AddSession(s models.WorkSession) models.WorkSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = models.Timestamp{Time: time.Now().UTC()}
		s.UpdatedAt = s.CreatedAt
	}
	if s.IsActive {
		b.activeID = s.ID
	}
	b.sessions = append(b.sessions, s)
	return s
}

// SetActive marks id as the server-side active session.
func (b *FakeBackend) SetActive(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activeID = id
}

func (b *FakeBackend) ActiveID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeID
}

// SetCounts changes the server-owned counters of a session.
func (b *FakeBackend) SetCounts(id string, connections, profiles, prospects int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.sessions {
		if b.sessions[i].ID == id {
			b.sessions[i].ConnectionCount = connections
			b.sessions[i].ProfileCount = profiles
			b.sessions[i].ProspectCount = prospects
		}
	}
	b.stats[id] = models.SessionStats{ConnectionCount: connections, ProfileCount: profiles, ProspectCount: prospects}
}

// QueueStatuses sets the statuses returned by successive status calls.
// The last one repeats.
func (b *FakeBackend) QueueStatuses(id string, statuses ...models.SessionStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses[id] = statuses
}

func (b *FakeBackend) SetConnections(c []models.Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connections = append([]models.Connection(nil), c...)
}

// SetProspects sets what /find-prospects/ returns.
func (b *FakeBackend) SetProspects(p []models.Prospect) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prospects = append([]models.Prospect(nil), p...)
}

// SetScore sets the overall similarity /prospects-connections/ gives a profile.
func (b *FakeBackend) SetScore(profileID string, score float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scores[profileID] = score
}

func (b *FakeBackend) SetResume(profileID string, r models.ProfileResume) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resumes[profileID] = r
}

func (b *FakeBackend) SetSavedProspects(sessionID string, p []models.Prospect) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saved[sessionID] = p
}

// Requests returns every recorded call in order.
func (b *FakeBackend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Count returns how many calls were made to "METHOD /path".
func (b *FakeBackend) Count(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.requests {
		if r.Method+" "+r.Path == route {
			n++
		}
	}
	return n
}

func (b *FakeBackend) Uploads() []Upload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Upload(nil), b.uploads...)
}

func (b *FakeBackend) Filters() []models.ProspectFilter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.ProspectFilter(nil), b.filters...)
}

func (b *FakeBackend) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path

		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
		})
		f := b.failures[route]
		if f != nil {
			f.Times--
			if f.Times <= 0 {
				delete(b.failures, route)
			}
		}
		b.mu.Unlock()

		if f != nil {
			contentType := f.ContentType
			if contentType == "" {
				contentType = "application/json"
			}
			w.Header().Set("Content-Type", contentType)
			w.WriteHeader(f.Status)
			_, _ = io.WriteString(w, f.Body)
			return
		}

		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *FakeBackend) listSessions(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.WorkSession, len(b.sessions))
	for i, s := range b.sessions {
		s.IsActive = s.ID == b.activeID
		out[i] = s
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *FakeBackend) createSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []string{"body", "name"}, "msg": "Field required"}},
		})
		return
	}
	now := time.Now().UTC()
	s := models.WorkSession{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		UserID:      req.UserID,
		CreatedAt:   models.Timestamp{Time: now},
		UpdatedAt:   models.Timestamp{Time: now},
	}
	b.mu.Lock()
	b.sessions = append(b.sessions, s)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, s)
}

func (b *FakeBackend) currentSession(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.sessions {
		if s.ID == b.activeID {
			s.IsActive = true
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "No active session found")
}

// sessionGet serves /session/{id}/stats, /session/{id}/status and
// /session/delete/{id}, which share one pattern shape.
func (b *FakeBackend) sessionGet(w http.ResponseWriter, r *http.Request) {
	id, action := r.PathValue("id"), r.PathValue("action")
	if id == "delete" {
		b.deleteSession(w, action)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.indexOf(id) < 0 {
		writeDetail(w, http.StatusNotFound, "Session not found")
		return
	}
	switch action {
	case "stats":
		writeJSON(w, http.StatusOK, b.stats[id])
	case "status":
		queue := b.statuses[id]
		if len(queue) == 0 {
			writeJSON(w, http.StatusOK, models.SessionStatus{Status: models.StatusIdle})
			return
		}
		st := queue[0]
		if len(queue) > 1 {
			b.statuses[id] = queue[1:]
		}
		writeJSON(w, http.StatusOK, st)
	default:
		writeDetail(w, http.StatusNotFound, "Not Found")
	}
}

func (b *FakeBackend) deleteSession(w http.ResponseWriter, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(id)
	if i < 0 {
		writeDetail(w, http.StatusNotFound, "Session not found")
		return
	}
	b.sessions = append(b.sessions[:i], b.sessions[i+1:]...)
	delete(b.stats, id)
	delete(b.statuses, id)
	if b.activeID == id {
		b.activeID = ""
	}
	writeJSON(w, http.StatusOK, models.DeleteResult{Success: true, Message: "Session deleted"})
}

func (b *FakeBackend) activateSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.indexOf(id) < 0 {
		writeDetail(w, http.StatusNotFound, "Session not found")
		return
	}
	b.activeID = id
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (b *FakeBackend) uploadConnections(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	content, _ := io.ReadAll(file)

	up := Upload{
		SessionID:   r.FormValue("session_id"),
		LinkedInURL: r.FormValue("user_personal_linkedin_account_url"),
		FileName:    header.Filename,
		Content:     string(content),
	}
	rows := strings.Count(strings.TrimSpace(up.Content), "\n")

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.indexOf(up.SessionID) < 0 {
		writeDetail(w, http.StatusNotFound, "Session not found")
		return
	}
	b.uploads = append(b.uploads, up)
	b.stats[up.SessionID] = models.SessionStats{ConnectionCount: rows, ProfileCount: rows, FileName: up.FileName}
	if _, queued := b.statuses[up.SessionID]; !queued {
		b.statuses[up.SessionID] = []models.SessionStatus{{Status: models.StatusDone}}
	}
	writeJSON(w, http.StatusOK, models.UploadResult{ConnectionCount: rows, ProfileCount: rows, Message: "Upload received"})
}

func (b *FakeBackend) recomputeConnections(w http.ResponseWriter, r *http.Request) {
	minSimilarity, _ := strconv.ParseFloat(r.URL.Query().Get("min_similarity"), 64)
	maxResults, err := strconv.Atoi(r.URL.Query().Get("max_results"))

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil || maxResults <= 0 {
		maxResults = len(b.connections)
	}
	out := make([]models.Connection, 0, len(b.connections))
	for _, c := range b.connections {
		if c.OverallSimilarity >= minSimilarity {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OverallSimilarity > out[j].OverallSimilarity })
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": out})
}

func (b *FakeBackend) existingConnections(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"connections": b.connections})
}

func (b *FakeBackend) favoriteConnections(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []models.Connection{}
	for _, c := range b.connections {
		if c.IsFavorite {
			out = append(out, c)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *FakeBackend) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid connection id")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.connections {
		if b.connections[i].ID == id {
			b.connections[i].IsFavorite = !b.connections[i].IsFavorite
			writeJSON(w, http.StatusOK, models.FavoriteToggle{IsFavorite: b.connections[i].IsFavorite})
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Connection not found")
}

func (b *FakeBackend) insertConnection(w http.ResponseWriter, r *http.Request) {
	link := r.URL.Query().Get("linkedin_url")
	if !strings.Contains(link, "linkedin.com/") {
		writeDetail(w, http.StatusBadRequest, "Invalid LinkedIn URL")
		return
	}
	slug := strings.Trim(link[strings.LastIndex(strings.TrimRight(link, "/"), "/")+1:], "/")
	name := displayName(slug)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextConnID++
	b.connections = append(b.connections, models.Connection{
		ID:         b.nextConnID,
		ProfileID:  slug,
		Name:       name,
		ProfileURL: link,
	})
	writeJSON(w, http.StatusOK, models.NewConnectionResult{
		Message:           "Connection added",
		ConnectionDetails: models.ConnectionDetails{Name: name, ProfileID: slug, ProfileURL: link},
	})
}

func (b *FakeBackend) findProspects(w http.ResponseWriter, r *http.Request) {
	var filter models.ProspectFilter
	if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters = append(b.filters, filter)
	out := []models.Prospect{}
	for _, p := range b.prospects {
		for _, id := range filter.SelectedConnectionIDs {
			if p.FocusProfileID == id {
				out = append(out, p)
				break
			}
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *FakeBackend) computeProspects(w http.ResponseWriter, r *http.Request) {
	var in []models.Prospect
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range in {
		if score, ok := b.scores[in[i].ProfileID]; ok {
			in[i].OverallSimilarity = score
		}
	}
	if in == nil {
		in = []models.Prospect{}
	}
	writeJSON(w, http.StatusOK, in)
}

func (b *FakeBackend) profileResume(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("profile_id")
	b.mu.Lock()
	defer b.mu.Unlock()
	resume, ok := b.resumes[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Profile %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, resume)
}

func (b *FakeBackend) sessionProspects(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.saved[r.PathValue("id")]
	if out == nil {
		out = []models.Prospect{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *FakeBackend) indexOf(id string) int {
	for i, s := range b.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// displayName turns a profile slug like "ada-lovelace" into "Ada Lovelace".
func displayName(slug string) string {
	words := strings.Fields(strings.ReplaceAll(slug, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
