package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"emsi-preparator/internal/app"
	"emsi-preparator/internal/gateway"
	"emsi-preparator/internal/infra/memory"
	"emsi-preparator/internal/report"
	"github.com/sirupsen/logrus"
)

// fakeRemote stands in for the quiz API.
type fakeRemote struct {
	mu        sync.Mutex
	stored    int
	submitted []url.Values
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/quiz/generate":
		_, _ = io.WriteString(w, `{"questions":[
			{"id":"q1","question":"What is 1 + 1?","options":{"A":"2","B":"3"}},
			{"id":"q2","question":"What is 2 * 3?","options":{"A":"5","B":"6"}}
		]}`)
	case "/quiz/submit":
		f.mu.Lock()
		f.submitted = append(f.submitted, r.URL.Query())
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"scorePercentage":50,"corrections":[{"questionId":"q2","question":"What is 2 * 3?","yourAnswer":"A","correctAnswer":"B"}]}`)
	case "/quiz/store":
		f.mu.Lock()
		f.stored++
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"message":"Quiz stored successfully!"}`)
	case "/quiz/history":
		_, _ = io.WriteString(w, `[{"id":"a1","programmingLanguage":"Python","date":"2024-12-01","score":66.6},
			{"id":"a2","programmingLanguage":"Go","date":"2024-11-03","score":90}]`)
	case "/quiz/details":
		if r.URL.Query().Get("quizId") != "a1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `[{"question":"What is 1 + 1?","correctAnswer":"A","userResponse":"A"},
			{"question":"What is 2 * 3?","correctAnswer":"B","userResponse":""}]`)
	case "/user/login":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"Invalid email or password"}`)
			return
		}
		_, _ = io.WriteString(w, `{"userId":7,"email":"sara@emsi.ma","fullName":"Sara B","phone":"0600"}`)
	case "/user/register":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] == "taken@emsi.ma" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeRemote) submissions() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.submitted...)
}

func (f *fakeRemote) storedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored
}

type testShell struct {
	server     *httptest.Server
	remote     *fakeRemote
	identities *memory.IdentityStore
}

func newTestShell(t *testing.T) *testShell {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	remote := &fakeRemote{}
	remoteSrv := httptest.NewServer(remote)
	t.Cleanup(remoteSrv.Close)

	client := gateway.NewClient(remoteSrv.URL, 2*time.Second, log)
	identities := memory.NewIdentityStore()
	history := memory.NewHistoryRepository(client, time.Minute)

	ws := NewWSHandler(identities, client, func(identity *app.IdentityProvider) *app.Session {
		return app.NewSession(client, identity, log, app.WithHistory(history))
	}, log)
	api := NewAPIHandler(identities, client, app.NewHistoryService(history, log), report.Options{Uncompressed: true}, log)

	srv := httptest.NewServer(NewRouter(ws, api, log))
	t.Cleanup(srv.Close)
	return &testShell{server: srv, remote: remote, identities: identities}
}
