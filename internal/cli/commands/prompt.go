package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

// errNonInteractive is returned when a value is missing and there is no
// terminal to ask on.
var errNonInteractive = errors.New("missing input in non-interactive mode")

func (a *App) interactive() (*os.File, bool) {
	f, ok := a.In.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil, false
	}
	return f, true
}

// ask fills *value from the terminal when it is empty. flag names the flag
// that supplies the value non-interactively.
func (a *App) ask(label, flag string, value *string) error {
	if *value != "" {
		return nil
	}
	in, ok := a.interactive()
	if !ok {
		return fmt.Errorf("%w: %s is required (use --%s)", errNonInteractive, strings.ToLower(label), flag)
	}

	prompt := promptui.Prompt{
		Label: label,
		Stdin: in,
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("required")
			}
			return nil
		},
	}
	result, err := prompt.Run()
	if err != nil {
		return fmt.Errorf("input cancelled: %w", err)
	}
	*value = strings.TrimSpace(result)
	return nil
}

// askPassword reads a password without echo when *value is empty.
func (a *App) askPassword(label, flag string, value *string) error {
	if *value != "" {
		return nil
	}
	in, ok := a.interactive()
	if !ok {
		return fmt.Errorf("%w: %s is required (use --%s)", errNonInteractive, strings.ToLower(label), flag)
	}

	fmt.Fprintf(a.Out, "%s: ", label)
	b, err := term.ReadPassword(int(in.Fd()))
	fmt.Fprintln(a.Out)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	*value = string(b)
	return nil
}

// confirm asks a yes/no question. Without a terminal the answer is no
// unless assumeYes is set.
func (a *App) confirm(label string, assumeYes bool) bool {
	if assumeYes {
		return true
	}
	in, ok := a.interactive()
	if !ok {
		return false
	}
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     in,
		Stdout:    nopWriteCloser{a.Out},
	}
	_, err := prompt.Run()
	return err == nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
