package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/MrEthical07/authflow"
)

// errLeave ends the current flow and returns to the command prompt.
var errLeave = errors.New("left flow")

// Inside a flow every prompt accepts these.
const (
	cmdLeave  = ":q"
	cmdBack   = ":back"
	cmdResend = ":resend"
)

// shell reads one answer per line from in. Change notifications arrive from
// timer goroutines, so every write to out goes through mu.
type shell struct {
	client *authflow.Client
	in     *bufio.Scanner
	out    io.Writer
	mu     sync.Mutex
}

func newShell(client *authflow.Client, in io.Reader, out io.Writer) *shell {
	return &shell{client: client, in: bufio.NewScanner(in), out: out}
}

func (s *shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

// ask prints label and reads one line. def is shown and returned for an
// empty answer. io.EOF ends the session; cmdLeave returns errLeave.
func (s *shell) ask(label, def string) (string, error) {
	if def != "" {
		s.printf("%s [%s]: ", label, def)
	} else {
		s.printf("%s: ", label)
	}
	if !s.in.Scan() {
		if err := s.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	line := strings.TrimSpace(s.in.Text())
	if line == cmdLeave {
		return "", errLeave
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

// run serves commands until quit or end of input.
func (s *shell) run(ctx context.Context) error {
	s.help()
	for {
		line, err := s.ask("authflow>", "")
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, errLeave):
			continue
		case err != nil:
			return err
		}

		switch strings.ToLower(line) {
		case "":
		case "register":
			err = s.register(ctx)
		case "recover":
			err = s.recover(ctx)
		case "login":
			err = s.login(ctx)
		case "help", "?":
			s.help()
		case "quit", "exit":
			return nil
		default:
			s.printf("unknown command %q, try help\n", line)
		}

		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, errLeave):
			s.printf("left flow\n")
		case err != nil:
			return err
		}
	}
}

func (s *shell) help() {
	s.printf("commands: register, recover, login, help, quit\n")
	s.printf("inside a flow: %s leaves, %s returns to the previous step, %s sends a new code\n", cmdLeave, cmdBack, cmdResend)
}

// watch prints step changes and the end of each cooldown.
func (s *shell) watch(onChange func(func(authflow.Snapshot)), initial authflow.Step) {
	var mu sync.Mutex
	step := initial
	cooling := false
	onChange(func(snap authflow.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if snap.Step != step {
			step = snap.Step
			s.printf("-> %s\n", step)
		}
		switch {
		case snap.CooldownRemaining > 0 && !cooling:
			cooling = true
			s.printf("   code sent, resend available in %ds\n", snap.CooldownRemaining)
		case snap.CooldownRemaining == 0 && cooling:
			cooling = false
			s.printf("   resend available (%s)\n", cmdResend)
		}
	})
}

// report prints the field errors of a failed action, or err itself when the
// failure has no field to attach to.
func (s *shell) report(err error, fields authflow.FieldErrors) {
	if len(fields) == 0 {
		s.printf("   error: %v\n", err)
		return
	}
	for _, k := range fields.Keys() {
		s.printf("   %s: %s\n", k, fields[k])
	}
}

func (s *shell) register(ctx context.Context) error {
	flow := s.client.NewRegistrationFlow()
	defer flow.Close()
	s.watch(flow.OnChange, flow.Step())

	for {
		switch flow.Step() {
		case authflow.StepForm:
			username, email := flow.FormPrefill()
			var form authflow.RegistrationForm
			var err error
			if form.Username, err = s.ask("username", username); err != nil {
				return err
			}
			if form.Email, err = s.ask("email", email); err != nil {
				return err
			}
			if form.Password, err = s.ask("password", ""); err != nil {
				return err
			}
			if form.ConfirmPassword, err = s.ask("confirm password", ""); err != nil {
				return err
			}
			if err := flow.SubmitForm(ctx, form); err != nil {
				s.report(err, flow.Errors())
			}

		case authflow.StepVerification:
			line, err := s.askCode(flow.Cooldown())
			if err != nil {
				return err
			}
			switch line {
			case cmdBack:
				if err := flow.Back(); err != nil {
					return err
				}
			case cmdResend:
				s.resend(flow.Resend(ctx), flow.Cooldown())
			default:
				if err := flow.SetCode(line); err != nil {
					return err
				}
				err := flow.SubmitVerification(ctx)
				if errors.Is(err, authflow.ErrSubmitDisabled) {
					s.printf("   the code has %d digits\n", s.client.Config().Validation.CodeLength)
				} else if err != nil {
					s.report(err, flow.Errors())
				}
			}

		case authflow.StepSuccess:
			if user, ok := flow.Registered(); ok {
				s.printf("registered %s <%s> id=%s verified=%t\n", user.Username, user.Email, user.ID, user.EmailVerified || user.IsPrivileged)
			}
			return nil

		default:
			return fmt.Errorf("registration reached unexpected step %q", flow.Step())
		}
	}
}

func (s *shell) recover(ctx context.Context) error {
	flow := s.client.NewRecoveryFlow()
	defer flow.Close()
	s.watch(flow.OnChange, flow.Step())

	for {
		switch flow.Step() {
		case authflow.StepIdentify:
			email, err := s.ask("email", flow.Prefill())
			if err != nil {
				return err
			}
			if err := flow.SubmitIdentify(ctx, email); err != nil {
				s.report(err, flow.Errors())
			}

		case authflow.StepReset:
			line, err := s.askCode(flow.Cooldown())
			if err != nil {
				return err
			}
			switch line {
			case cmdBack:
				if err := flow.Back(); err != nil {
					return err
				}
				continue
			case cmdResend:
				s.resend(flow.Resend(ctx), flow.Cooldown())
				continue
			}
			if err := flow.SetCode(line); err != nil {
				return err
			}
			secret, err := s.ask("new password", "")
			if err != nil {
				return err
			}
			confirm, err := s.ask("confirm password", "")
			if err != nil {
				return err
			}
			if err := flow.SetNewPassword(secret); err != nil {
				return err
			}
			if err := flow.SetConfirmPassword(confirm); err != nil {
				return err
			}
			if err := flow.SubmitReset(ctx); err != nil {
				s.report(err, flow.Errors())
			}

		case authflow.StepSuccess:
			s.printf("password reset, log in with the new password\n")
			return nil

		default:
			return fmt.Errorf("recovery reached unexpected step %q", flow.Step())
		}
	}
}

func (s *shell) login(ctx context.Context) error {
	flow := s.client.NewLoginFlow()
	defer flow.Close()

	var form authflow.LoginForm
	keep := false
	for {
		if !keep {
			var err error
			if form.Username, err = s.ask("username", form.Username); err != nil {
				return err
			}
			if form.Password, err = s.ask("password", ""); err != nil {
				return err
			}
		}
		keep = false

		form.ChallengeAnswer = ""
		if flow.ChallengeRequired() {
			ch, ok := flow.Challenge()
			if !ok {
				var err error
				if ch, err = flow.RefreshChallenge(ctx); err != nil {
					s.printf("   error: %v\n", err)
					continue
				}
			}
			answer, err := s.ask("captcha "+ch.Question, "")
			if err != nil {
				return err
			}
			form.ChallengeAnswer = answer
		}

		tok, err := flow.Submit(ctx, form)
		if err == nil {
			s.printf("logged in: %s token, expires in %s\n", tok.TokenType, tok.ExpiresIn)
			s.printf("%s\n", tok.AccessToken)
			return nil
		}
		if errors.Is(err, authflow.ErrChallengeRequired) {
			// The fetched challenge is shown on the next pass with the
			// same username and password.
			s.printf("   the service asks for a captcha\n")
			keep = true
			continue
		}
		s.report(err, flow.Errors())
	}
}

// askCode reads the code-entry line, showing the cooldown in the prompt.
func (s *shell) askCode(cooldown int) (string, error) {
	label := fmt.Sprintf("code (%s, %s)", cmdResend, cmdBack)
	if cooldown > 0 {
		label = fmt.Sprintf("code (%s in %ds, %s)", cmdResend, cooldown, cmdBack)
	}
	return s.ask(label, "")
}

func (s *shell) resend(err error, cooldown int) {
	switch {
	case errors.Is(err, authflow.ErrResendCooldown):
		s.printf("   wait %ds before resending\n", cooldown)
	case err != nil:
		s.printf("   resend failed: %v\n", err)
	}
}
