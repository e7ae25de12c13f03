package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"emsi-preparator/internal/app"
	"emsi-preparator/internal/domain"
	"github.com/spf13/cobra"
)

type quizFlags struct {
	topic      string
	difficulty string
	store      bool
	creds      credentialFlags
}

// NewQuizCmd takes a quiz interactively in the terminal.
func NewQuizCmd(opts *globalOptions) *cobra.Command {
	flags := &quizFlags{}
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Generate a quiz and answer it in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer d.Close()

			p := newPrompter(cmd)
			identity := d.identity(opts.session)
			if _, err := requireUser(cmd.Context(), identity, p, &flags.creds); err != nil {
				return err
			}
			session := app.NewSession(d.client, identity, d.log, d.sessionOptions()...)
			return runQuiz(cmd.Context(), session, p, flags)
		},
	}
	cmd.Flags().StringVar(&flags.topic, "topic", "", "quiz topic, e.g. Python")
	cmd.Flags().StringVar(&flags.difficulty, "difficulty", "", "Easy, Medium or Hard")
	cmd.Flags().BoolVar(&flags.store, "store", false, "store the graded attempt without asking")
	flags.creds.bind(cmd)
	return cmd
}

func runQuiz(ctx context.Context, session *app.Session, p *prompter, flags *quizFlags) error {
	cfg, err := askConfiguration(p, flags)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.out, "Generating a %s quiz on %s...\n", cfg.Difficulty, cfg.Topic)
	if err := session.Generate(ctx, cfg); err != nil {
		return errors.New(session.Snapshot().Error)
	}

	for {
		current, ok := session.State().(app.InProgress)
		if !ok {
			break
		}
		view := session.Snapshot()
		q := current.Current()
		fmt.Fprintf(p.out, "\nQuestion %d of %d (%.0f%%)\n%s\n", view.QuestionNumber, view.TotalQuestions, view.Progress*100, q.Prompt)
		for _, opt := range q.Options {
			fmt.Fprintf(p.out, "  %s) %s\n", opt.Key, opt.Text)
		}
		raw, err := p.ask("Your answer: ")
		if err != nil {
			return err
		}
		key := matchKey(q.Options, raw)
		if err := session.Answer(ctx, key); err != nil {
			if errors.Is(err, domain.ErrUnknownOption) {
				fmt.Fprintln(p.out, domain.MessageOr(err, ""))
				session.DismissError()
				continue
			}
			break
		}
	}

	switch st := session.State().(type) {
	case app.Failed:
		return errors.New(session.Snapshot().Error)
	case app.Graded:
		printResult(p, st)
	default:
		return fmt.Errorf("quiz ended in unexpected state %s", st.Status())
	}

	store := flags.store
	if !store {
		if store, err = p.confirm("Store this attempt in your history?"); err != nil {
			return err
		}
	}
	for store {
		ack, err := session.Persist(ctx)
		if err == nil {
			fmt.Fprintln(p.out, ack.Message)
			return nil
		}
		fmt.Fprintln(p.out, session.Snapshot().Error)
		if store, err = p.confirm("Try again?"); err != nil {
			return err
		}
	}
	return nil
}

func askConfiguration(p *prompter, flags *quizFlags) (domain.QuizConfiguration, error) {
	cfg := domain.QuizConfiguration{Topic: strings.TrimSpace(flags.topic)}
	for cfg.Topic == "" {
		topic, err := p.ask("Topic (e.g. Python, Java, SQL): ")
		if err != nil {
			return cfg, err
		}
		cfg.Topic = topic
	}
	raw := flags.difficulty
	for {
		if raw == "" {
			var err error
			if raw, err = p.ask("Difficulty (Easy/Medium/Hard): "); err != nil {
				return cfg, err
			}
		}
		if d, ok := domain.ParseDifficulty(raw); ok {
			cfg.Difficulty = d
			return cfg, nil
		}
		fmt.Fprintln(p.out, "Please choose Easy, Medium or Hard.")
		raw = ""
	}
}

// matchKey accepts option keys case-insensitively.
func matchKey(options domain.Options, raw string) string {
	raw = strings.TrimSpace(raw)
	for _, opt := range options {
		if strings.EqualFold(opt.Key, raw) {
			return opt.Key
		}
	}
	return raw
}

func printResult(p *prompter, graded app.Graded) {
	fmt.Fprintf(p.out, "\nYour score: %d%%\n", graded.Result.DisplayScore())
	if len(graded.Result.Corrections) == 0 {
		fmt.Fprintln(p.out, "All answers correct!")
		return
	}
	fmt.Fprintln(p.out, "Corrections:")
	for _, c := range graded.Result.Corrections {
		fmt.Fprintf(p.out, "- %s\n  your answer: %s, correct answer: %s\n", c.Question, orNA(c.YourAnswer), orNA(c.CorrectAnswer))
	}
}

func orNA(s string) string {
	if s == "" {
		return domain.NotAvailable
	}
	return s
}
