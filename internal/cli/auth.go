package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"emsi-preparator/internal/app"
	"emsi-preparator/internal/domain"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type credentialFlags struct {
	email    string
	password string
}

func (c *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.email, "email", "", "account email")
	cmd.Flags().StringVar(&c.password, "password", "", "account password (prompted when omitted)")
}

// NewLoginCmd logs in and stores the identity under the session key.
func NewLoginCmd(opts *globalOptions) *cobra.Command {
	creds := &credentialFlags{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the identity for this session",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer d.Close()

			p := newPrompter(cmd)
			user, err := login(cmd.Context(), d.identity(opts.session), p, creds)
			if err != nil {
				return err
			}
			fmt.Fprintf(p.out, "Welcome, %s!\n", displayName(user))
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

// NewLogoutCmd forgets the identity of the session.
func NewLogoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the logged-in identity of this session",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.identity(opts.session).Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

// NewRegisterCmd creates an account.
func NewRegisterCmd(opts *globalOptions) *cobra.Command {
	var fullName string
	creds := &credentialFlags{}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer d.Close()

			p := newPrompter(cmd)
			reg := domain.Registration{FullName: fullName, Email: creds.email, Password: creds.password}
			if reg.FullName == "" {
				if reg.FullName, err = p.ask("Full name: "); err != nil {
					return err
				}
			}
			if reg.Email == "" {
				if reg.Email, err = p.ask("Email: "); err != nil {
					return err
				}
			}
			if reg.Password == "" {
				if reg.Password, err = p.secret("Password: "); err != nil {
					return err
				}
			}
			if err := d.identity(opts.session).Register(cmd.Context(), reg); err != nil {
				return errors.New(domain.MessageOr(err, "Registration failed. Please try again."))
			}
			fmt.Fprintln(p.out, "Registration successful. You can now log in.")
			return nil
		},
	}
	cmd.Flags().StringVar(&fullName, "name", "", "full name")
	creds.bind(cmd)
	return cmd
}

// requireUser restores the session identity or, failing that, logs in
// interactively.
func requireUser(ctx context.Context, identity *app.IdentityProvider, p *prompter, creds *credentialFlags) (domain.UserIdentity, error) {
	user, err := identity.Restore(ctx)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNoIdentity) {
		return domain.UserIdentity{}, err
	}
	return login(ctx, identity, p, creds)
}

func login(ctx context.Context, identity *app.IdentityProvider, p *prompter, creds *credentialFlags) (domain.UserIdentity, error) {
	c := domain.Credentials{Email: creds.email, Password: creds.password}
	var err error
	if c.Email == "" {
		if c.Email, err = p.ask("Email: "); err != nil {
			return domain.UserIdentity{}, err
		}
	}
	if c.Password == "" {
		if c.Password, err = p.secret("Password: "); err != nil {
			return domain.UserIdentity{}, err
		}
	}
	user, err := identity.Login(ctx, c)
	if err != nil {
		return domain.UserIdentity{}, errors.New(domain.MessageOr(err, "Login failed. Please check your credentials."))
	}
	return user, nil
}

func displayName(user domain.UserIdentity) string {
	if user.FullName != "" {
		return user.FullName
	}
	return user.Email
}

// prompter reads answers line by line from the command's input.
type prompter struct {
	in    *bufio.Reader
	out   io.Writer
	stdin io.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{
		in:    bufio.NewReader(cmd.InOrStdin()),
		out:   cmd.OutOrStdout(),
		stdin: cmd.InOrStdin(),
	}
}

func (p *prompter) ask(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", errors.New("input closed")
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// secret reads a password without echo when the input is a terminal.
func (p *prompter) secret(label string) (string, error) {
	if f, ok := p.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(p.out, label)
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	return p.ask(label)
}

func (p *prompter) confirm(label string) (bool, error) {
	answer, err := p.ask(label + " [y/N]: ")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}
