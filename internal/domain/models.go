package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ID is an opaque identifier issued by the quiz API. The API is not
// consistent about quoting, so both JSON strings and numbers are accepted.
type ID string

func (id ID) String() string { return string(id) }

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Difficulty is the level requested when generating a quiz.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Difficulties lists the accepted levels in display order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// ParseDifficulty matches a level case-insensitively.
func ParseDifficulty(raw string) (Difficulty, bool) {
	for _, d := range Difficulties {
		if strings.EqualFold(string(d), strings.TrimSpace(raw)) {
			return d, true
		}
	}
	return "", false
}

var validate = validator.New()

// QuizConfiguration is what the user picks before a quiz is generated.
type QuizConfiguration struct {
	Topic      string     `json:"topic" validate:"required"`
	Difficulty Difficulty `json:"difficulty" validate:"required,oneof=Easy Medium Hard"`
}

// Validate returns a *ConfigurationError describing the first invalid field.
func (c QuizConfiguration) Validate() error {
	if strings.TrimSpace(c.Topic) == "" {
		return &ConfigurationError{Field: "topic", Reason: "topic is required"}
	}
	if err := ValidateStruct(c); err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) && cfgErr.Field == "difficulty" {
			cfgErr.Reason = "difficulty must be one of Easy, Medium or Hard"
		}
		return err
	}
	return nil
}

// Credentials are submitted on login.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Registration is submitted when creating an account.
type Registration struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// ValidateStruct runs tag validation and reports the first failing field.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := lowerFirst(fe.Field())
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("%s failed %q validation", field, fe.Tag())}
	}
	return &ConfigurationError{Reason: err.Error()}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// Option is one selectable answer of a question.
type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Options keeps the order in which the API listed the answer keys. On the
// wire it is a JSON object such as {"A": "...", "B": "..."}.
type Options []Option

// Has reports whether key is one of the option keys.
func (o Options) Has(key string) bool {
	for _, opt := range o {
		if opt.Key == key {
			return true
		}
	}
	return false
}

// Text returns the label for key, or "" when the key is unknown.
func (o Options) Text(key string) string {
	for _, opt := range o {
		if opt.Key == key {
			return opt.Text
		}
	}
	return ""
}

// Keys returns the option keys in presentation order.
func (o Options) Keys() []string {
	keys := make([]string, 0, len(o))
	for _, opt := range o {
		keys = append(keys, opt.Key)
	}
	return keys
}

func (o Options) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, opt := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(opt.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(opt.Text)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Options) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*o = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("options: expected object, got %v", tok)
	}
	out := Options{}
	seen := make(map[string]struct{})
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("options: unexpected key %v", keyTok)
		}
		var text string
		if err := dec.Decode(&text); err != nil {
			return fmt.Errorf("options: value for %q: %w", key, err)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("options: duplicate key %q", key)
		}
		seen[key] = struct{}{}
		out = append(out, Option{Key: key, Text: text})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = out
	return nil
}

// Question is a generated multiple-choice question. CorrectAnswer stays empty
// until the attempt has been graded.
type Question struct {
	ID            ID      `json:"id"`
	Prompt        string  `json:"question"`
	Options       Options `json:"options"`
	CorrectAnswer string  `json:"correctAnswer,omitempty"`
}

// Answer is one recorded selection, in question order.
type Answer struct {
	QuestionID ID
	Key        string
}

// Status is the lifecycle position of a quiz attempt.
type Status int

const (
	StatusConfiguring Status = iota
	StatusInProgress
	StatusAwaitingGrading
	StatusGraded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConfiguring:
		return "configuring"
	case StatusInProgress:
		return "in_progress"
	case StatusAwaitingGrading:
		return "awaiting_grading"
	case StatusGraded:
		return "graded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Correction is the grader's verdict on one question.
type Correction struct {
	QuestionID    ID     `json:"questionId,omitempty"`
	Question      string `json:"question"`
	YourAnswer    string `json:"yourAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
}

// GradingResult is returned once per attempt by the grading call.
type GradingResult struct {
	ScorePercentage float64      `json:"scorePercentage"`
	Corrections     []Correction `json:"corrections"`
}

// DisplayScore is the score as shown to users.
func (g GradingResult) DisplayScore() int {
	return RoundScore(g.ScorePercentage)
}

// RoundScore rounds a percentage to the nearest integer within [0, 100].
func RoundScore(score float64) int {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(math.Round(score))
}

// UserIdentity is the authenticated user as returned by login.
type UserIdentity struct {
	ID        ID     `json:"id"`
	FullName  string `json:"fullName"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	AvatarRef string `json:"avatarRef,omitempty"`
}

// StoredQuestion is the per-question record sent when an attempt is stored.
// A nil UserResponse marks a question that was never answered.
type StoredQuestion struct {
	ID            ID      `json:"id"`
	Question      string  `json:"question"`
	Options       Options `json:"options"`
	CorrectAnswer string  `json:"correctAnswer"`
	UserResponse  *string `json:"userResponse"`
}

// StoreRequest carries a graded attempt to the store endpoint.
type StoreRequest struct {
	UserID  ID
	Topic   string
	Records []StoredQuestion
}

// Acknowledgment is returned by a successful store.
type Acknowledgment struct {
	Message string `json:"message"`
}

// ArchivedAttempt is the local copy of a stored attempt.
type ArchivedAttempt struct {
	ID         ID
	UserID     ID
	Topic      string
	Difficulty Difficulty
	Score      float64
	CreatedAt  time.Time
	Records    []StoredQuestion
}

// HistoryEntry summarizes one stored attempt.
type HistoryEntry struct {
	ID    ID      `json:"id"`
	Topic string  `json:"topic"`
	Date  string  `json:"date"`
	Score float64 `json:"score"`
}

// UnmarshalJSON also accepts the API's "programmingLanguage" field for the topic.
func (h *HistoryEntry) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID                  ID      `json:"id"`
		Topic               string  `json:"topic"`
		ProgrammingLanguage string  `json:"programmingLanguage"`
		Date                string  `json:"date"`
		Score               float64 `json:"score"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	h.ID = wire.ID
	h.Topic = wire.Topic
	if h.Topic == "" {
		h.Topic = wire.ProgrammingLanguage
	}
	h.Date = wire.Date
	h.Score = wire.Score
	return nil
}

// DetailEntry is one question of a stored attempt.
type DetailEntry struct {
	Question      string `json:"question"`
	CorrectAnswer string `json:"correctAnswer"`
	UserResponse  string `json:"userResponse"`
}

// NotAvailable is displayed in place of a missing answer.
const NotAvailable = "N/A"

// ReportLine is one row of an attempt report.
type ReportLine struct {
	Question      string `json:"question"`
	YourAnswer    string `json:"yourAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
}

// Correct reports whether the user's answer matched.
func (l ReportLine) Correct() bool {
	return l.YourAnswer != NotAvailable && l.YourAnswer == l.CorrectAnswer
}

// AttemptReport is everything needed to render one attempt for the user.
type AttemptReport struct {
	AttemptID ID           `json:"attemptId"`
	User      UserIdentity `json:"user"`
	Topic     string       `json:"topic"`
	Date      string       `json:"date"`
	Score     int          `json:"score"`
	Lines     []ReportLine `json:"lines"`
}
