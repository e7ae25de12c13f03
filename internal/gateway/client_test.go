package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"emsi-preparator/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewClient(srv.URL+"/", 2*time.Second, log)
}

func TestGenerateQuizSendsTopicAndKeepsOptionOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/quiz/generate", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Go", body["programmingLanguage"])
		assert.Equal(t, "Hard", body["difficulty"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"questions":[{"id":7,"question":"Pick one","options":{"C":"three","A":"one","B":"two"}}]}`)
	})

	questions, err := c.GenerateQuiz(context.Background(), domain.QuizConfiguration{Topic: "Go", Difficulty: domain.DifficultyHard})
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, domain.ID("7"), questions[0].ID)
	assert.Equal(t, []string{"C", "A", "B"}, questions[0].Options.Keys())
}

func TestSubmitForGradingEncodesAnswersAsQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quiz/submit", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "u1", q.Get("id"))
		assert.Equal(t, "B", q.Get("q1"))
		assert.Equal(t, "A", q.Get("q2"))
		_, _ = io.WriteString(w, `{"scorePercentage":50,"corrections":[{"questionId":"q2","question":"Second?","yourAnswer":"A","correctAnswer":"C"}]}`)
	})

	result, err := c.SubmitForGrading(context.Background(), "u1", []domain.Answer{
		{QuestionID: "q1", Key: "B"},
		{QuestionID: "q2", Key: "A"},
	})
	require.NoError(t, err)
	assert.Equal(t, 50, result.DisplayScore())
	require.Len(t, result.Corrections, 1)
	assert.Equal(t, "C", result.Corrections[0].CorrectAnswer)
}

func TestStoreAttemptReadsAcknowledgment(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "json message", body: `{"message":"Saved"}`, want: "Saved"},
		{name: "plain text", body: "Quiz saved", want: "Quiz saved"},
		{name: "empty", body: "", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "u1", r.URL.Query().Get("userId"))
				assert.Equal(t, "Python", r.URL.Query().Get("programmingLanguage"))
				var records []domain.StoredQuestion
				require.NoError(t, json.NewDecoder(r.Body).Decode(&records))
				assert.Len(t, records, 1)
				_, _ = io.WriteString(w, tc.body)
			})
			ack, err := c.StoreAttempt(context.Background(), domain.StoreRequest{
				UserID:  "u1",
				Topic:   "Python",
				Records: []domain.StoredQuestion{{ID: "q1", Question: "Q?", CorrectAnswer: "A"}},
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, ack.Message)
		})
	}
}

func TestServiceErrorCarriesServerMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"Invalid credentials"}`)
	})

	_, err := c.Login(context.Background(), domain.Credentials{Email: "a@b.c", Password: "secret"})
	var svcErr *domain.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, http.StatusBadRequest, svcErr.StatusCode)
	assert.Equal(t, "Invalid credentials", domain.MessageOr(err, "fallback"))
}

func TestTransportErrorWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	log := logrus.New()
	log.SetOutput(io.Discard)
	c := NewClient(srv.URL, time.Second, log)

	_, err := c.FetchHistory(context.Background(), "u1")
	var trErr *domain.TransportError
	require.True(t, errors.As(err, &trErr))
	assert.Equal(t, "Failed to fetch quiz history.", domain.MessageOr(err, "Failed to fetch quiz history."))
}

func TestMalformedBodyIsServiceError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>maintenance</html>`)
	})

	_, err := c.FetchHistory(context.Background(), "u1")
	var svcErr *domain.ServiceError
	require.True(t, errors.As(err, &svcErr), "got %v", err)
	assert.Equal(t, http.StatusOK, svcErr.StatusCode)
	var trErr *domain.TransportError
	assert.False(t, errors.As(err, &trErr))
	assert.Equal(t, "Failed to fetch quiz history.", domain.MessageOr(err, "Failed to fetch quiz history."))
}

func TestLoginMapsIdentity(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/login", r.URL.Path)
		_, _ = io.WriteString(w, `{"userId":42,"email":"sara@emsi.ma","fullName":"Sara B","phone":"0600","profileImage":"avatars/sara.png"}`)
	})

	user, err := c.Login(context.Background(), domain.Credentials{Email: "sara@emsi.ma", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, domain.UserIdentity{
		ID:        "42",
		FullName:  "Sara B",
		Email:     "sara@emsi.ma",
		Phone:     "0600",
		AvatarRef: "avatars/sara.png",
	}, user)
}

func TestRegisterConflictIsEmailInUse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	err := c.Register(context.Background(), domain.Registration{FullName: "A", Email: "a@b.c", Password: "secret1"})
	assert.ErrorIs(t, err, domain.ErrEmailInUse)
}

func TestHistoryAndDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quiz/history":
			assert.Equal(t, "u1", r.URL.Query().Get("userId"))
			_, _ = io.WriteString(w, `[{"id":"a1","programmingLanguage":"Java","date":"2024-12-01","score":66.6}]`)
		case "/quiz/details":
			if r.URL.Query().Get("quizId") != "a1" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = io.WriteString(w, `[{"question":"Q?","correctAnswer":"B","userResponse":"A"}]`)
		}
	})

	history, err := c.FetchHistory(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Java", history[0].Topic)

	detail, err := c.FetchAttemptDetail(context.Background(), "a1", "u1")
	require.NoError(t, err)
	require.Len(t, detail, 1)
	assert.Equal(t, "A", detail[0].UserResponse)

	_, err = c.FetchAttemptDetail(context.Background(), "missing", "u1")
	assert.ErrorIs(t, err, domain.ErrAttemptNotFound)
}
