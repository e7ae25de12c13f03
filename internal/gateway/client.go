// Package gateway talks to the remote quiz API.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"emsi-preparator/internal/domain"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout = 30 * time.Second
	// maxLoggedBody caps how much of a response body goes into logs and errors.
	maxLoggedBody = 300
)

// Client implements app.QuizAPI, app.AuthAPI and app.HistoryLoader over HTTP.
type Client struct {
	http *resty.Client
	log  logrus.FieldLogger
}

// NewClient builds a client for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, log logrus.FieldLogger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{log: log.WithField("component", "gateway")}
	c.http = resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			r.SetHeader("X-Request-ID", uuid.NewString())
			return nil
		}).
		OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
			c.log.WithFields(logrus.Fields{
				"method":     r.Request.Method,
				"url":        r.Request.URL,
				"status":     r.StatusCode(),
				"duration":   r.Time(),
				"request_id": r.Request.Header.Get("X-Request-ID"),
			}).Debug("api call")
			return nil
		})
	return c
}

type generateRequest struct {
	ProgrammingLanguage string            `json:"programmingLanguage"`
	Difficulty          domain.Difficulty `json:"difficulty"`
}

type generateResponse struct {
	Questions []domain.Question `json:"questions"`
}

// GenerateQuiz asks the API for a new set of questions.
func (c *Client) GenerateQuiz(ctx context.Context, cfg domain.QuizConfiguration) ([]domain.Question, error) {
	const op = "generate quiz"
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(generateRequest{ProgrammingLanguage: cfg.Topic, Difficulty: cfg.Difficulty}).
		Post("/quiz/generate")
	if err := c.check(op, resp, err); err != nil {
		return nil, err
	}
	var out generateResponse
	if err := decode(op, resp, &out); err != nil {
		return nil, err
	}
	return out.Questions, nil
}

// SubmitForGrading sends the answers as query parameters, one per question,
// next to the user id, which is the shape the grading endpoint accepts.
func (c *Client) SubmitForGrading(ctx context.Context, userID domain.ID, answers []domain.Answer) (domain.GradingResult, error) {
	const op = "submit quiz"
	params := url.Values{}
	params.Set("id", userID.String())
	for _, a := range answers {
		if a.QuestionID == "id" {
			return domain.GradingResult{}, fmt.Errorf("%s: question id %q collides with the user id parameter", op, a.QuestionID)
		}
		params.Set(a.QuestionID.String(), a.Key)
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Post("/quiz/submit")
	if err := c.check(op, resp, err); err != nil {
		return domain.GradingResult{}, err
	}
	var out domain.GradingResult
	if err := decode(op, resp, &out); err != nil {
		return domain.GradingResult{}, err
	}
	return out, nil
}

// StoreAttempt saves a graded attempt for the user's history.
func (c *Client) StoreAttempt(ctx context.Context, req domain.StoreRequest) (domain.Acknowledgment, error) {
	const op = "store quiz"
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"userId":              req.UserID.String(),
			"programmingLanguage": req.Topic,
		}).
		SetBody(req.Records).
		Post("/quiz/store")
	if err := c.check(op, resp, err); err != nil {
		return domain.Acknowledgment{}, err
	}
	return domain.Acknowledgment{Message: errorMessage(resp.Body())}, nil
}

// FetchHistory lists the user's stored attempts.
func (c *Client) FetchHistory(ctx context.Context, userID domain.ID) ([]domain.HistoryEntry, error) {
	const op = "fetch history"
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("userId", userID.String()).
		Get("/quiz/history")
	if err := c.check(op, resp, err); err != nil {
		return nil, err
	}
	out := []domain.HistoryEntry{}
	if err := decode(op, resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchAttemptDetail returns the per-question lines of one stored attempt.
func (c *Client) FetchAttemptDetail(ctx context.Context, attemptID, userID domain.ID) ([]domain.DetailEntry, error) {
	const op = "fetch quiz details"
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"quizId": attemptID.String(),
			"userId": userID.String(),
		}).
		Get("/quiz/details")
	if resp != nil && resp.StatusCode() == http.StatusNotFound {
		return nil, domain.ErrAttemptNotFound
	}
	if err := c.check(op, resp, err); err != nil {
		return nil, err
	}
	out := []domain.DetailEntry{}
	if err := decode(op, resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type loginResponse struct {
	UserID       domain.ID `json:"userId"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Phone        string    `json:"phone"`
	ProfileImage string    `json:"profileImage"`
}

// Login exchanges credentials for the user's identity.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (domain.UserIdentity, error) {
	const op = "login"
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(creds).
		Post("/user/login")
	if err := c.check(op, resp, err); err != nil {
		return domain.UserIdentity{}, err
	}
	var out loginResponse
	if err := decode(op, resp, &out); err != nil {
		return domain.UserIdentity{}, err
	}
	return domain.UserIdentity{
		ID:        out.UserID,
		FullName:  out.FullName,
		Email:     out.Email,
		Phone:     out.Phone,
		AvatarRef: out.ProfileImage,
	}, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, reg domain.Registration) error {
	const op = "register"
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(reg).
		Post("/user/register")
	if resp != nil && resp.StatusCode() == http.StatusConflict {
		return domain.ErrEmailInUse
	}
	return c.check(op, resp, err)
}

// check maps a resty outcome onto the transport/service error taxonomy.
func (c *Client) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		c.log.WithError(err).WithField("op", op).Warn("api unreachable")
		return &domain.TransportError{Op: op, Err: err}
	}
	if resp.IsError() || resp.StatusCode() >= http.StatusMultipleChoices {
		c.log.WithFields(logrus.Fields{
			"op":     op,
			"status": resp.StatusCode(),
			"body":   truncate(resp.String()),
		}).Warn("api returned error")
		return &domain.ServiceError{
			Op:         op,
			StatusCode: resp.StatusCode(),
			Message:    errorMessage(resp.Body()),
		}
	}
	return nil
}

func decode(op string, resp *resty.Response, dst any) error {
	body := resp.Body()
	if len(strings.TrimSpace(string(body))) == 0 {
		return &domain.ServiceError{Op: op, StatusCode: resp.StatusCode(), Message: ""}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &domain.ServiceError{Op: op, StatusCode: resp.StatusCode(), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// errorMessage extracts a server-supplied message: the "message" field of a
// JSON body, a JSON string, or a short plain-text body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		return payload.Error
	}
	var text string
	if err := json.Unmarshal(body, &text); err == nil {
		return text
	}
	s := strings.TrimSpace(string(body))
	if s == "" || len(s) > maxLoggedBody || strings.HasPrefix(s, "<") {
		return ""
	}
	return s
}

func truncate(s string) string {
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody] + "..."
	}
	return s
}
