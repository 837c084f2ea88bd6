// Package testserver provides a fake authorization and resource server for tests. It issues
// rotating token pairs on /oauth/token, serves public fixtures on /users, /posts and
// /posts/:id/comments and guards /secure-data with bearer tokens.
package testserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
)

// TokenPath is the refresh endpoint path.
const TokenPath = "/oauth/token"

// ScriptedResponse replaces the next response of an endpoint.
type ScriptedResponse struct {
	Status      int
	ContentType string
	Body        string
}

type user struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type post struct {
	ID     int    `json:"id"`
	UserID int    `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

type comment struct {
	ID     int    `json:"id"`
	PostID int    `json:"postId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Body   string `json:"body"`
}

var (
	users = []user{
		{ID: 1, Name: "Leanne Graham", Username: "Bret", Email: "Sincere@april.biz"},
		{ID: 2, Name: "Ervin Howell", Username: "Antonette", Email: "Shanna@melissa.tv"},
	}
	posts = []post{
		{ID: 1, UserID: 1, Title: "sunt aut facere", Body: "quia et suscipit"},
		{ID: 2, UserID: 1, Title: "qui est esse", Body: "est rerum tempore vitae"},
	}
)

// Server is a fake api. All methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	refreshCalls atomic.Int32
	secureCalls  atomic.Int32
	publicCalls  atomic.Int32

	mu                sync.Mutex
	issued            int
	tokenTTL          time.Duration
	refreshDelay      time.Duration
	validAccess       map[string]bool
	validRefresh      map[string]bool
	refreshTokensSeen []string
	authHeadersSeen   []string
	refreshScript     []ScriptedResponse
	secureScript      []ScriptedResponse
}

// New starts a server. Close it when done.
func New() *Server {
	router := httprouter.New()
	s := &Server{
		tokenTTL:     time.Hour,
		validAccess:  make(map[string]bool),
		validRefresh: make(map[string]bool),
	}

	router.POST(TokenPath, s.handleToken)
	router.GET("/users", s.public(func() any { return users }))
	router.GET("/posts", s.public(func() any { return posts }))
	router.GET("/posts/:id/comments", s.handleComments)
	router.GET("/secure-data", s.handleSecureData)

	s.Server = httptest.NewServer(router)
	return s
}

// TokenURL is the absolute refresh endpoint URL.
func (s *Server) TokenURL() string {
	return s.URL + TokenPath
}

// IssueTokens registers a valid access/refresh pair, as a login would.
func (s *Server) IssueTokens(accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if accessToken != "" {
		s.validAccess[accessToken] = true
	}
	if refreshToken != "" {
		s.validRefresh[refreshToken] = true
	}
}

// RevokeAccessToken makes the server answer 401 for accessToken.
func (s *Server) RevokeAccessToken(accessToken string) {
	s.mu.Lock()
	delete(s.validAccess, accessToken)
	s.mu.Unlock()
}

// SetTokenTTL sets the expires_in of issued tokens.
func (s *Server) SetTokenTTL(ttl time.Duration) {
	s.mu.Lock()
	s.tokenTTL = ttl
	s.mu.Unlock()
}

// SetRefreshDelay makes every token exchange sleep before answering.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	s.refreshDelay = d
	s.mu.Unlock()
}

// QueueRefreshResponse scripts the next token endpoint responses, in order.
func (s *Server) QueueRefreshResponse(responses ...ScriptedResponse) {
	s.mu.Lock()
	s.refreshScript = append(s.refreshScript, responses...)
	s.mu.Unlock()
}

// QueueSecureResponse scripts the next /secure-data responses, in order.
func (s *Server) QueueSecureResponse(responses ...ScriptedResponse) {
	s.mu.Lock()
	s.secureScript = append(s.secureScript, responses...)
	s.mu.Unlock()
}

// RefreshCalls returns the number of token exchanges received.
func (s *Server) RefreshCalls() int { return int(s.refreshCalls.Load()) }

// SecureCalls returns the number of /secure-data requests received.
func (s *Server) SecureCalls() int { return int(s.secureCalls.Load()) }

// PublicCalls returns the number of public resource requests received.
func (s *Server) PublicCalls() int { return int(s.publicCalls.Load()) }

// RefreshTokensSeen returns the refresh tokens presented, oldest first.
func (s *Server) RefreshTokensSeen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.refreshTokensSeen...)
}

// AuthorizationHeadersSeen returns the Authorization header of every resource request, oldest first.
func (s *Server) AuthorizationHeadersSeen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authHeadersSeen...)
}

func (s *Server) handleToken(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.refreshCalls.Add(1)

	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if r.Header.Get("Content-Type") != "application/json" {
		writeJSON(rw, http.StatusUnsupportedMediaType, map[string]string{"error": "unsupported_media_type"})
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	s.mu.Lock()
	delay := s.refreshDelay
	s.refreshTokensSeen = append(s.refreshTokensSeen, payload.RefreshToken)
	scripted, ok := pop(&s.refreshScript)
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if ok {
		writeScripted(rw, scripted)
		return
	}

	s.mu.Lock()
	if !s.validRefresh[payload.RefreshToken] {
		s.mu.Unlock()
		writeJSON(rw, http.StatusUnauthorized, map[string]string{"error": "invalid_grant", "error_description": "refresh token is invalid or expired"})
		return
	}
	delete(s.validRefresh, payload.RefreshToken)
	s.issued++
	access := fmt.Sprintf("a%d", s.issued+1)
	refresh := fmt.Sprintf("r%d", s.issued+1)
	s.validAccess[access] = true
	s.validRefresh[refresh] = true
	ttl := s.tokenTTL
	s.mu.Unlock()

	writeJSON(rw, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"expires_in":    int(ttl / time.Second),
	})
}

func (s *Server) public(fixture func() any) httprouter.Handle {
	return func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.publicCalls.Add(1)
		s.recordAuthorization(r)
		writeJSON(rw, http.StatusOK, fixture())
	}
}

func (s *Server) handleComments(rw http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.publicCalls.Add(1)
	s.recordAuthorization(r)

	postID, err := strconv.Atoi(ps.ByName("id"))
	if err != nil {
		writeJSON(rw, http.StatusNotFound, map[string]string{"message": "post not found"})
		return
	}
	writeJSON(rw, http.StatusOK, []comment{
		{ID: postID*10 + 1, PostID: postID, Name: "id labore ex et quam laborum", Email: "Eliseo@gardner.biz", Body: "laudantium enim quasi"},
		{ID: postID*10 + 2, PostID: postID, Name: "quo vero reiciendis velit", Email: "Jayne_Kuhic@sydney.com", Body: "est natus enim nihil"},
	})
}

func (s *Server) handleSecureData(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.secureCalls.Add(1)
	s.recordAuthorization(r)

	s.mu.Lock()
	scripted, ok := pop(&s.secureScript)
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	valid := s.validAccess[token]
	s.mu.Unlock()

	if ok {
		writeScripted(rw, scripted)
		return
	}
	if !valid {
		writeJSON(rw, http.StatusUnauthorized, map[string]string{"message": "invalid access token"})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"id":      1,
		"owner":   token,
		"payload": "classified",
	})
}

func (s *Server) recordAuthorization(r *http.Request) {
	s.mu.Lock()
	s.authHeadersSeen = append(s.authHeadersSeen, r.Header.Get("Authorization"))
	s.mu.Unlock()
}

func pop(queue *[]ScriptedResponse) (ScriptedResponse, bool) {
	if len(*queue) == 0 {
		return ScriptedResponse{}, false
	}
	next := (*queue)[0]
	*queue = (*queue)[1:]
	return next, true
}

func writeScripted(rw http.ResponseWriter, resp ScriptedResponse) {
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	rw.Header().Set("Content-Type", contentType)
	rw.WriteHeader(resp.Status)
	_, _ = rw.Write([]byte(resp.Body))
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
