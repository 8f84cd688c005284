package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/cohortchat/internal/auth"
	"github.com/lalith-99/cohortchat/internal/models"
	"github.com/lalith-99/cohortchat/internal/realtime"
	"github.com/lalith-99/cohortchat/internal/repository/memory"
	"github.com/lalith-99/cohortchat/internal/service"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func newTestServer(t *testing.T, health func(context.Context) error) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	logger := zap.NewNop()
	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(realtime.LocalPublisher{Registry: registry})
	messages := service.NewMessageService(store, dispatcher, logger)

	r := NewRouter(RouterDeps{
		Chats:    service.NewChatService(store, dispatcher, logger),
		Messages: messages,
		Users:    service.NewUserService(store, "uni.example.edu", logger),
		Groups:   service.NewGroupService(store, dispatcher, logger),
		Google:   auth.NewGoogleProvider("", "", ""),
		Gateway:  realtime.NewGateway(registry, store, messages, testSecret, nil, logger),
		Auth: AuthConfig{
			JWTSecret:   testSecret,
			TokenTTL:    time.Hour,
			FrontendURL: "http://front.example",
		},
		Health: health,
		Logger: logger,
	})
	return &testServer{t: t, router: r}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type account struct {
	ID    uuid.UUID
	Token string
}

func (s *testServer) signup(email string) account {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": "correct-horse", "first_name": strings.Split(email, "@")[0],
	})
	if w.Code != http.StatusCreated {
		s.t.Fatalf("signup(%s) status = %d body = %s", email, w.Code, w.Body)
	}
	var resp authResponse
	decode(s.t, w, &resp)
	return account{ID: resp.User.ID, Token: resp.Token}
}

func (s *testServer) createGroupChat(owner account, members ...account) uuid.UUID {
	s.t.Helper()
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID.String())
	}
	w := s.do(http.MethodPost, "/api/chats", owner.Token, map[string]any{"type": "group", "name": "team", "users": ids})
	if w.Code != http.StatusCreated {
		s.t.Fatalf("create chat status = %d body = %s", w.Code, w.Body)
	}
	var d chatDetail
	decode(s.t, w, &d)
	return d.ID
}

func (s *testServer) send(from account, chatID uuid.UUID, text string) models.Message {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/messages", from.Token, map[string]string{"chat_id": chatID.String(), "text": text})
	if w.Code != http.StatusCreated {
		s.t.Fatalf("send status = %d body = %s", w.Code, w.Body)
	}
	var m models.Message
	decode(s.t, w, &m)
	return m
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body, err)
	}
}

func TestAuth_SignupAndLogin(t *testing.T) {
	s := newTestServer(t, nil)
	a := s.signup("a@example.com")
	if a.Token == "" {
		t.Fatal("signup returned no token")
	}

	if w := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "a@example.com", "password": "another-pass", "first_name": "a",
	}); w.Code != http.StatusBadRequest {
		t.Errorf("duplicate signup status = %d, want 400", w.Code)
	}

	tests := []struct {
		name     string
		password string
		want     int
	}{
		{"right password", "correct-horse", http.StatusOK},
		{"wrong password", "wrong-horse", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@example.com", "password": tt.password})
			if w.Code != tt.want {
				t.Errorf("login status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	w := s.do(http.MethodGet, "/api/users/me", a.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "correct-horse") || strings.Contains(w.Body.String(), "password") {
		t.Errorf("me leaks password data: %s", w.Body)
	}
}

func TestAuth_TeacherDomain(t *testing.T) {
	s := newTestServer(t, nil)
	teacher := s.signup("prof@uni.example.edu")
	var u models.User
	decode(t, s.do(http.MethodGet, "/api/users/me", teacher.Token, nil), &u)
	if !u.Profile.IsTeacher {
		t.Error("user on teacher domain is not a teacher")
	}
}

func TestAPI_RequiresToken(t *testing.T) {
	s := newTestServer(t, nil)
	for _, path := range []string{"/api/chats", "/api/users/me", "/api/messages?chat_id=" + uuid.NewString()} {
		if w := s.do(http.MethodGet, path, "", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", path, w.Code)
		}
	}
}

func TestChats_PrivateDuplicateForbidden(t *testing.T) {
	s := newTestServer(t, nil)
	a, b := s.signup("a@example.com"), s.signup("b@example.com")

	body := map[string]any{"type": "private", "users": []string{b.ID.String()}}
	if w := s.do(http.MethodPost, "/api/chats", a.Token, body); w.Code != http.StatusCreated {
		t.Fatalf("first private chat status = %d body = %s", w.Code, w.Body)
	}

	reverse := map[string]any{"type": "private", "users": []string{a.ID.String()}}
	w := s.do(http.MethodPost, "/api/chats", b.Token, reverse)
	if w.Code != http.StatusForbidden {
		t.Fatalf("duplicate private chat status = %d, want 403", w.Code)
	}
	if !strings.Contains(w.Body.String(), "This chat already exists") {
		t.Errorf("duplicate body = %s", w.Body)
	}

	var exists struct{ Exists bool }
	decode(t, s.do(http.MethodGet, "/api/chats/private_chat_exists?user_id="+a.ID.String(), b.Token, nil), &exists)
	if !exists.Exists {
		t.Error("private_chat_exists = false after creating the chat")
	}
}

func TestChats_CreateValidation(t *testing.T) {
	s := newTestServer(t, nil)
	a := s.signup("a@example.com")

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"unknown type", map[string]any{"type": "channel", "name": "x"}, http.StatusBadRequest},
		{"diploma", map[string]any{"type": "diploma", "name": "x"}, http.StatusForbidden},
		{"group without name", map[string]any{"type": "group"}, http.StatusBadRequest},
		{"bad user id", map[string]any{"type": "group", "name": "x", "users": []string{"nope"}}, http.StatusBadRequest},
		{"unknown user", map[string]any{"type": "group", "name": "x", "users": []string{uuid.NewString()}}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := s.do(http.MethodPost, "/api/chats", a.Token, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestChats_ListAndDetail(t *testing.T) {
	s := newTestServer(t, nil)
	a, b, outsider := s.signup("a@example.com"), s.signup("b@example.com"), s.signup("o@example.com")
	chatID := s.createGroupChat(a, b)
	s.send(b, chatID, "hello")

	var items []chatListItem
	decode(t, s.do(http.MethodGet, "/api/chats", a.Token, nil), &items)
	if len(items) != 1 || items[0].ID != chatID {
		t.Fatalf("list = %+v, want the one chat", items)
	}
	if items[0].LastMessage == nil || items[0].LastMessage.Text != "hello" {
		t.Errorf("last_message = %+v, want hello", items[0].LastMessage)
	}

	var d chatDetail
	decode(t, s.do(http.MethodGet, "/api/chats/"+chatID.String(), b.Token, nil), &d)
	if len(d.Users) != 2 {
		t.Errorf("detail users = %d, want 2", len(d.Users))
	}

	if w := s.do(http.MethodGet, "/api/chats/"+chatID.String(), outsider.Token, nil); w.Code != http.StatusNotFound {
		t.Errorf("outsider detail status = %d, want 404", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/chats/not-a-uuid", a.Token, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
}

func TestChats_MembershipPolicy(t *testing.T) {
	s := newTestServer(t, nil)
	a, b, c := s.signup("a@example.com"), s.signup("b@example.com"), s.signup("c@example.com")
	chatID := s.createGroupChat(a, b)
	path := "/api/chats/" + chatID.String()

	if w := s.do(http.MethodPost, path+"/add_users", b.Token, map[string]any{"users": []string{c.ID.String()}}); w.Code != http.StatusForbidden {
		t.Errorf("non-creator add_users = %d, want 403", w.Code)
	}
	if w := s.do(http.MethodPost, path+"/add_users", a.Token, map[string]any{"users": []string{c.ID.String()}}); w.Code != http.StatusOK {
		t.Fatalf("creator add_users = %d body = %s", w.Code, w.Body)
	}
	if w := s.do(http.MethodPost, path+"/remove_users", a.Token, map[string]any{"users": []string{a.ID.String()}}); w.Code != http.StatusForbidden {
		t.Errorf("creator removing self = %d, want 403", w.Code)
	}
	if w := s.do(http.MethodPost, path+"/leave_chat", a.Token, nil); w.Code != http.StatusForbidden {
		t.Errorf("creator leave = %d, want 403", w.Code)
	}
	if w := s.do(http.MethodPost, path+"/leave_chat", c.Token, nil); w.Code != http.StatusOK {
		t.Errorf("member leave = %d, want 200", w.Code)
	}
	if w := s.do(http.MethodPatch, path, b.Token, map[string]string{"name": "renamed"}); w.Code != http.StatusForbidden {
		t.Errorf("non-creator rename = %d, want 403", w.Code)
	}
	if w := s.do(http.MethodPatch, path, a.Token, map[string]string{"name": "renamed"}); w.Code != http.StatusOK {
		t.Errorf("creator rename = %d, want 200", w.Code)
	}
	if w := s.do(http.MethodDelete, path, b.Token, nil); w.Code != http.StatusForbidden {
		t.Errorf("non-creator delete = %d, want 403", w.Code)
	}
	if w := s.do(http.MethodDelete, path, a.Token, nil); w.Code != http.StatusNoContent {
		t.Errorf("creator delete = %d, want 204", w.Code)
	}
	if w := s.do(http.MethodGet, path, a.Token, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestMessages_ListPaging(t *testing.T) {
	s := newTestServer(t, nil)
	a, outsider := s.signup("a@example.com"), s.signup("o@example.com")
	chatID := s.createGroupChat(a)
	for i := 0; i < 5; i++ {
		s.send(a, chatID, "m")
	}

	var page messagePage
	decode(t, s.do(http.MethodGet, "/api/messages?chat_id="+chatID.String()+"&limit=2", a.Token, nil), &page)
	if len(page.Results) != 2 || page.Results[0].Number != 4 || page.Results[1].Number != 3 {
		t.Fatalf("first page = %+v, want numbers 4,3", page.Results)
	}
	if page.NextStartingNumber == nil || *page.NextStartingNumber != 2 {
		t.Fatalf("next_starting_number = %v, want 2", page.NextStartingNumber)
	}

	decode(t, s.do(http.MethodGet, "/api/messages?chat_id="+chatID.String()+"&starting_number=2", a.Token, nil), &page)
	if len(page.Results) != 3 || page.Results[0].Number != 2 || page.NextStartingNumber != nil {
		t.Errorf("second page = %+v next=%v, want 2,1,0 and no next", page.Results, page.NextStartingNumber)
	}

	if w := s.do(http.MethodGet, "/api/messages?chat_id="+chatID.String(), outsider.Token, nil); w.Code != http.StatusNotFound {
		t.Errorf("outsider list = %d, want 404", w.Code)
	}
	for _, q := range []string{"chat_id=nope", "chat_id=" + chatID.String() + "&starting_number=x", "chat_id=" + chatID.String() + "&pinned=maybe"} {
		if w := s.do(http.MethodGet, "/api/messages?"+q, a.Token, nil); w.Code != http.StatusBadRequest {
			t.Errorf("list ?%s = %d, want 400", q, w.Code)
		}
	}
}

func TestMessages_SendValidation(t *testing.T) {
	s := newTestServer(t, nil)
	a, outsider := s.signup("a@example.com"), s.signup("o@example.com")
	chatID := s.createGroupChat(a)

	tests := []struct {
		name  string
		token string
		body  map[string]string
		want  int
	}{
		{"text and file", a.Token, map[string]string{"chat_id": chatID.String(), "text": "x", "file": "f.png"}, http.StatusBadRequest},
		{"empty", a.Token, map[string]string{"chat_id": chatID.String()}, http.StatusBadRequest},
		{"blank text with file", a.Token, map[string]string{"chat_id": chatID.String(), "text": "  ", "file": "f.png"}, http.StatusBadRequest},
		{"unknown chat", a.Token, map[string]string{"chat_id": uuid.NewString(), "text": "x"}, http.StatusNotFound},
		{"not a member", outsider.Token, map[string]string{"chat_id": chatID.String(), "text": "x"}, http.StatusForbidden},
		{"file only", a.Token, map[string]string{"chat_id": chatID.String(), "file": "f.png"}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := s.do(http.MethodPost, "/api/messages", tt.token, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestMessages_PinPolicy(t *testing.T) {
	s := newTestServer(t, nil)
	a, b := s.signup("a@example.com"), s.signup("b@example.com")
	chatID := s.createGroupChat(a, b)
	m := s.send(b, chatID, "pin me")
	pin := "/api/messages/" + itoa(m.ID) + "/pin_message"

	if w := s.do(http.MethodPost, pin, b.Token, nil); w.Code != http.StatusForbidden {
		t.Errorf("non-creator pin = %d, want 403", w.Code)
	}
	w := s.do(http.MethodPost, pin, a.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("creator pin = %d body = %s", w.Code, w.Body)
	}

	var page messagePage
	decode(t, s.do(http.MethodGet, "/api/messages?pinned=1&chat_id="+chatID.String(), b.Token, nil), &page)
	if len(page.Results) != 1 || !page.Results[0].Pinned {
		t.Errorf("pinned list = %+v, want the pinned message", page.Results)
	}

	if w := s.do(http.MethodPost, "/api/messages/"+itoa(m.ID)+"/unpin_message", a.Token, nil); w.Code != http.StatusOK {
		t.Errorf("creator unpin = %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/api/messages/999999/pin_message", a.Token, nil); w.Code != http.StatusNotFound {
		t.Errorf("pin unknown = %d, want 404", w.Code)
	}
	if w := s.do(http.MethodPost, "/api/messages/abc/pin_message", a.Token, nil); w.Code != http.StatusBadRequest {
		t.Errorf("pin bad id = %d, want 400", w.Code)
	}
}

func TestGroups_CreateAndJoin(t *testing.T) {
	s := newTestServer(t, nil)
	teacher, student := s.signup("prof@uni.example.edu"), s.signup("s@example.com")

	body := map[string]any{"name": "CS-41", "code": "cs41", "study_year": 4}
	if w := s.do(http.MethodPost, "/api/groups", student.Token, body); w.Code != http.StatusForbidden {
		t.Errorf("student create group = %d, want 403", w.Code)
	}
	w := s.do(http.MethodPost, "/api/groups", teacher.Token, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("teacher create group = %d body = %s", w.Code, w.Body)
	}
	var created groupResponse
	decode(t, w, &created)
	if created.DiplomaChat == nil || created.DiplomaChat.Type != models.ChatDiploma {
		t.Fatalf("diploma chat = %+v", created.DiplomaChat)
	}

	if w := s.do(http.MethodPost, "/api/users/change_group", student.Token, map[string]string{"code": "nope"}); w.Code != http.StatusBadRequest {
		t.Errorf("join with bad code = %d, want 400", w.Code)
	}
	if w := s.do(http.MethodPost, "/api/users/change_group", student.Token, map[string]string{"code": "cs41"}); w.Code != http.StatusOK {
		t.Fatalf("join = %d body = %s", w.Code, w.Body)
	}

	var items []chatListItem
	decode(t, s.do(http.MethodGet, "/api/chats", student.Token, nil), &items)
	if len(items) != 1 || items[0].ID != created.DiplomaChat.ID {
		t.Errorf("student chats = %+v, want the diploma chat", items)
	}
	if w := s.do(http.MethodPost, "/api/chats/"+created.DiplomaChat.ID.String()+"/leave_chat", student.Token, nil); w.Code != http.StatusForbidden {
		t.Errorf("student leaving diploma chat = %d, want 403", w.Code)
	}
}

func TestUsers_SearchAndUpdate(t *testing.T) {
	s := newTestServer(t, nil)
	a := s.signup("alice@example.com")
	s.signup("bob@example.com")

	var found []chatMember
	decode(t, s.do(http.MethodGet, "/api/users?search=ali", a.Token, nil), &found)
	if len(found) != 1 || found[0].ID != a.ID {
		t.Errorf("search = %+v, want alice", found)
	}

	w := s.do(http.MethodPatch, "/api/users/me", a.Token, map[string]string{"bio": "hi there"})
	if w.Code != http.StatusOK {
		t.Fatalf("update me = %d", w.Code)
	}
	var u models.User
	decode(t, w, &u)
	if u.Profile.Bio != "hi there" {
		t.Errorf("bio = %q", u.Profile.Bio)
	}
}

func TestGoogle_NotConfigured(t *testing.T) {
	s := newTestServer(t, nil)
	if w := s.do(http.MethodGet, "/api/auth/google/login", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("google login without credentials = %d, want 404", w.Code)
	}
}

func TestGoogle_CallbackRejectsBadState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := memory.New()
	h := NewAuthHandler(
		service.NewUserService(store, "", zap.NewNop()),
		auth.NewGoogleProvider("id", "secret", "http://localhost/cb"),
		AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour, FrontendURL: "http://front.example/"},
		zap.NewNop(),
	)
	r := gin.New()
	r.GET("/cb", h.GoogleCallback)

	tests := []struct {
		name  string
		query string
	}{
		{"provider error", "?error=access_denied"},
		{"missing code", "?state=x"},
		{"state without cookie", "?code=c&state=x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cb"+tt.query, nil))
			if w.Code != http.StatusFound {
				t.Fatalf("status = %d, want 302", w.Code)
			}
			if loc := w.Header().Get("Location"); !strings.HasPrefix(loc, "http://front.example/login?error=") {
				t.Errorf("Location = %q", loc)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	ok := newTestServer(t, func(context.Context) error { return nil })
	if w := ok.do(http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", w.Code)
	}
	if w := ok.do(http.MethodGet, "/v1/health", "", nil); w.Code != http.StatusOK {
		t.Errorf("v1/health = %d, want 200", w.Code)
	}

	down := newTestServer(t, func(context.Context) error { return errors.New("db down") })
	if w := down.do(http.MethodGet, "/healthz", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("healthz with failing storage = %d, want 503", w.Code)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
