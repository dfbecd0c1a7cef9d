package cliutil

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user aborts a prompt (Ctrl+C).
var ErrAborted = errors.New("aborted")

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) {
		return ErrAborted
	}
	return err
}

func inputOptional(label string) (string, error) {
	result, err := (&promptui.Prompt{Label: label + " (optional)"}).Run()
	return result, wrapError(err)
}

func inputRequired(label string) (string, error) {
	prompt := promptui.Prompt{
		Label: label,
		Validate: func(s string) error {
			if s == "" {
				return fmt.Errorf("required")
			}
			return nil
		},
	}
	result, err := prompt.Run()
	return result, wrapError(err)
}

// HookWizardAnswers is the free text a user supplies when authoring a hook
// descriptor interactively; Descriptor assembles it into a descriptor string
// that the caller then parses.
type HookWizardAnswers struct {
	StartSystem, StartEvent, StartMatch, StartPid string
	EndSystem, EndEvent, EndMatch, EndFlags       string
}

// RunHookWizard interactively collects the fields of a hook descriptor,
// producing the same shape hooks.Parse would extract from a hand-typed
// string. Ctrl+C at any step returns ErrAborted.
func RunHookWizard() (HookWizardAnswers, error) {
	var a HookWizardAnswers
	var err error

	if a.StartSystem, err = inputOptional("Start subsystem"); err != nil {
		return a, err
	}
	if a.StartEvent, err = inputRequired("Start event"); err != nil {
		return a, err
	}
	if a.StartMatch, err = inputRequired("Start match expression"); err != nil {
		return a, err
	}
	if a.StartPid, err = inputOptional("Start pid filter"); err != nil {
		return a, err
	}
	if a.EndSystem, err = inputOptional("End subsystem"); err != nil {
		return a, err
	}
	if a.EndEvent, err = inputRequired("End event"); err != nil {
		return a, err
	}
	if a.EndMatch, err = inputRequired("End match expression"); err != nil {
		return a, err
	}
	if a.EndFlags, err = inputOptional("Flags (p=no-migrate, g=global, s=stack)"); err != nil {
		return a, err
	}
	return a, nil
}

// Descriptor renders the wizard answers back into the canonical
// "[sys:]ev,match[,pid]/[sys:]ev,match[,flags]" hook descriptor string.
func (a HookWizardAnswers) Descriptor() string {
	start := a.StartEvent + "," + a.StartMatch
	if a.StartSystem != "" {
		start = a.StartSystem + ":" + start
	}
	if a.StartPid != "" {
		start += "," + a.StartPid
	}

	end := a.EndEvent + "," + a.EndMatch
	if a.EndSystem != "" {
		end = a.EndSystem + ":" + end
	}
	if a.EndFlags != "" {
		end += "," + a.EndFlags
	}

	return start + "/" + end
}
