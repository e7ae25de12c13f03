package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"emsi-preparator/internal/app"
	"emsi-preparator/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// SessionFactory builds the quiz session driven by one websocket connection.
type SessionFactory func(identity *app.IdentityProvider) *app.Session

type WSHandler struct {
	identities app.IdentityStore
	auth       app.AuthAPI
	newSession SessionFactory
	log        logrus.FieldLogger
	upgrader   websocket.Upgrader
}

func NewWSHandler(identities app.IdentityStore, auth app.AuthAPI, newSession SessionFactory, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		identities: identities,
		auth:       auth,
		newSession: newSession,
		log:        log.WithField("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type generatePayload struct {
	Topic      string            `json:"topic"`
	Difficulty domain.Difficulty `json:"difficulty"`
}

// answerPayload names the question being answered; an empty QuestionID
// answers whichever question is current.
type answerPayload struct {
	QuestionID domain.ID `json:"questionId"`
	Key        string    `json:"key"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and drives one quiz session
// per connection for the logged-in user of the request's session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := SessionID(r)
	if sessionID == "" {
		http.Error(w, "missing session", http.StatusBadRequest)
		return
	}
	identity := app.NewIdentityProvider(sessionID, h.identities, h.auth, h.log)
	if _, err := identity.Restore(r.Context()); err != nil {
		if errors.Is(err, domain.ErrNoIdentity) {
			http.Error(w, "not logged in", http.StatusUnauthorized)
			return
		}
		http.Error(w, "identity unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	session := h.newSession(identity)
	log := h.log.WithFields(logrus.Fields{"session": sessionID, "quiz_session": session.ID()})
	updates, unsubscribe := session.Subscribe()

	ctx, cancelOps := context.WithCancel(r.Context())
	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write error")
				// keep draining so emitters never block on a dead connection
				for range send {
				}
				return
			}
		}
	}()

	emit := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-closeSignals:
		}
	}
	emitError := func(msg string) {
		emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}})
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case view, ok := <-updates:
				if !ok {
					return
				}
				emit(outboundMessage[any]{Type: "state", Payload: view})
			case <-closeSignals:
				return
			}
		}
	}()

	// Operations run one at a time, in arrival order, on a worker so the read
	// loop keeps draining the connection while a remote call is outstanding.
	jobs := make(chan func(), 32)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for job := range jobs {
			job()
		}
	}()
	enqueue := func(op func() error) {
		jobs <- func() {
			if err := op(); err != nil && rejected(err) {
				emitError(domain.MessageOr(err, rejectionMessage(err)))
			}
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "state":
			enqueue(func() error {
				emit(outboundMessage[any]{Type: "state", Payload: session.Snapshot()})
				return nil
			})
		case "generate":
			var payload generatePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emitError("invalid generate payload")
				continue
			}
			enqueue(func() error {
				return session.Generate(ctx, domain.QuizConfiguration{Topic: payload.Topic, Difficulty: payload.Difficulty})
			})
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emitError("invalid answer payload")
				continue
			}
			enqueue(func() error { return session.AnswerQuestion(ctx, payload.QuestionID, payload.Key) })
		case "persist":
			enqueue(func() error {
				ack, err := session.Persist(ctx)
				if err == nil {
					emit(outboundMessage[any]{Type: "persisted", Payload: ack})
				}
				return err
			})
		case "discard":
			enqueue(session.Discard)
		case "dismiss":
			enqueue(func() error {
				session.DismissError()
				return nil
			})
		default:
			emitError("unsupported message type")
		}
	}

	cancelOps()
	close(jobs)
	<-workerDone
	unsubscribe()
	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// rejected reports errors the session refused without changing its view;
// every other failure already reaches the client as part of a state message.
func rejected(err error) bool {
	return errors.Is(err, domain.ErrOperationPending) ||
		errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrStaleAnswer) ||
		errors.Is(err, domain.ErrNotGraded)
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotGraded):
		return "Only a graded quiz can be stored."
	case errors.Is(err, domain.ErrInvalidTransition):
		return "That action is not available right now."
	}
	return err.Error()
}
