package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"emsi-preparator/internal/app"
	"emsi-preparator/internal/domain"
	"emsi-preparator/internal/report"
	"github.com/spf13/cobra"
)

// NewHistoryCmd lists the stored attempts of the logged-in user.
func NewHistoryCmd(opts *globalOptions) *cobra.Command {
	creds := &credentialFlags{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List your stored quiz attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer d.Close()

			p := newPrompter(cmd)
			user, err := requireUser(cmd.Context(), d.identity(opts.session), p, creds)
			if err != nil {
				return err
			}
			rows, err := app.NewHistoryService(d.history, d.log).List(cmd.Context(), user)
			if err != nil {
				return errors.New(app.HistoryMessage(err))
			}
			if len(rows) == 0 {
				fmt.Fprintln(p.out, "No quizzes taken yet.")
				return nil
			}
			tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTOPIC\tDATE\tSCORE")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\n", r.ID, r.Topic, r.Date, r.DisplayScore)
			}
			return tw.Flush()
		},
	}
	creds.bind(cmd)
	return cmd
}

// NewReportCmd shows one attempt and optionally exports it as PDF.
func NewReportCmd(opts *globalOptions) *cobra.Command {
	var output string
	creds := &credentialFlags{}
	cmd := &cobra.Command{
		Use:   "report <attempt-id>",
		Short: "Show the details of a stored attempt, or export them as PDF with -o",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer d.Close()

			p := newPrompter(cmd)
			user, err := requireUser(cmd.Context(), d.identity(opts.session), p, creds)
			if err != nil {
				return err
			}
			rep, err := app.NewHistoryService(d.history, d.log).Report(cmd.Context(), user, domain.ID(args[0]))
			if err != nil {
				return errors.New(app.DetailMessage(err))
			}

			if output == "" {
				fmt.Fprintf(p.out, "%s | %s | %d%%\n", rep.Topic, rep.Date, rep.Score)
				tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "QUESTION\tYOUR ANSWER\tCORRECT ANSWER\t")
				for _, l := range rep.Lines {
					mark := "x"
					if l.Correct() {
						mark = "ok"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.Question, l.YourAnswer, l.CorrectAnswer, mark)
				}
				return tw.Flush()
			}

			if output == "-" {
				output = report.Filename(rep)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := report.Render(f, rep, d.reportOpts); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(p.out, "Report written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the PDF report to this file (\"-\" picks a name)")
	creds.bind(cmd)
	return cmd
}

// NewDashboardCmd prints the aggregate view of the user's history.
func NewDashboardCmd(opts *globalOptions) *cobra.Command {
	creds := &credentialFlags{}
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Summarise your quiz history",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer d.Close()

			p := newPrompter(cmd)
			user, err := requireUser(cmd.Context(), d.identity(opts.session), p, creds)
			if err != nil {
				return err
			}
			dash, err := app.NewHistoryService(d.history, d.log).Dashboard(cmd.Context(), user)
			if err != nil {
				return errors.New(app.HistoryMessage(err))
			}
			printDashboard(p, user, dash)
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

func printDashboard(p *prompter, user domain.UserIdentity, dash app.Dashboard) {
	fmt.Fprintf(p.out, "Hello, %s!\n", displayName(user))
	fmt.Fprintf(p.out, "Quizzes taken: %d\n", dash.TotalAttempts)
	if dash.TotalAttempts == 0 {
		return
	}
	fmt.Fprintf(p.out, "Average score: %d%%\nBest score: %d%%\n", dash.AverageScore, dash.BestScore)

	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nTOPIC\tATTEMPTS\tAVERAGE")
	for _, t := range dash.Topics {
		fmt.Fprintf(tw, "%s\t%d\t%d%%\n", t.Topic, t.Attempts, t.AverageScore)
	}
	fmt.Fprintln(tw, "\nMONTH\tQUIZZES\t")
	for _, m := range dash.Monthly {
		fmt.Fprintf(tw, "%s\t%d\t\n", m.Month, m.Count)
	}
	_ = tw.Flush()
}
