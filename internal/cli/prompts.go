package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"

	"github.com/dyike/GemScreener/models"
)

// choosePlaceholder heads a select that has no default, so Enter alone does
// not pick the first real option.
const choosePlaceholder = "(choose one)"

// PromptForChoice asks for one of options. With no default the user must
// pick explicitly.
func PromptForChoice(message, help string, options []string, def string) (string, error) {
	var choice string
	prompt := &survey.Select{
		Message: message,
		Options: choiceOptions(options, def),
		Help:    help,
	}
	if def != "" {
		prompt.Default = def
	}
	if err := survey.AskOne(prompt, &choice, survey.WithValidator(survey.ComposeValidators(survey.Required, rejectPlaceholder))); err != nil {
		return "", err
	}
	return choice, nil
}

func choiceOptions(options []string, def string) []string {
	if def != "" {
		return options
	}
	return append([]string{choosePlaceholder}, options...)
}

func rejectPlaceholder(val interface{}) error {
	var picked string
	switch v := val.(type) {
	case survey.OptionAnswer:
		picked = v.Value
	case string:
		picked = v
	}
	if picked == choosePlaceholder {
		return errors.New("pick one of the listed options")
	}
	return nil
}

// PromptForDate prompts for an as-of or entry date.
func PromptForDate(message string, def time.Time) (time.Time, error) {
	var dateStr string
	prompt := &survey.Input{
		Message: message,
		Help:    "Format: YYYY-MM-DD (e.g., 2024-01-15).",
		Default: def.Format(models.DateLayout),
	}

	err := survey.AskOne(prompt, &dateStr, survey.WithValidator(func(val interface{}) error {
		parsed, err := models.ParseDate(val.(string))
		if err != nil {
			return fmt.Errorf("invalid date format, use YYYY-MM-DD")
		}
		if parsed.After(time.Now()) {
			return fmt.Errorf("date cannot be in the future")
		}
		return nil
	}))
	if err != nil {
		return time.Time{}, err
	}
	return models.ParseDate(dateStr)
}

// PromptForInt prompts for a non-negative integer.
func PromptForInt(message string, def int) (int, error) {
	var s string
	prompt := &survey.Input{
		Message: message,
		Default: strconv.Itoa(def),
	}
	err := survey.AskOne(prompt, &s, survey.WithValidator(func(val interface{}) error {
		n, err := strconv.Atoi(strings.TrimSpace(val.(string)))
		if err != nil || n < 0 {
			return fmt.Errorf("enter a whole number of 0 or more")
		}
		return nil
	}))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(s))
}

// PromptForConfirm asks a yes/no question.
func PromptForConfirm(message string, def bool) (bool, error) {
	var ok bool
	prompt := &survey.Confirm{
		Message: message,
		Default: def,
	}
	if err := survey.AskOne(prompt, &ok); err != nil {
		return false, err
	}
	return ok, nil
}
