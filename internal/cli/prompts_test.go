package cli

import (
	"testing"

	"github.com/AlecAivazis/survey/v2"
	"github.com/stretchr/testify/assert"
)

func TestChoiceWithoutDefaultLeadsWithPlaceholder(t *testing.T) {
	profiles := []string{"backtest_v6", "phase4", "v4final", "v6"}

	opts := choiceOptions(profiles, "")
	assert.Equal(t, choosePlaceholder, opts[0])
	assert.Equal(t, profiles, opts[1:])

	assert.Equal(t, profiles, choiceOptions(profiles, "v6"))
}

func TestRejectPlaceholder(t *testing.T) {
	assert.Error(t, rejectPlaceholder(survey.OptionAnswer{Value: choosePlaceholder, Index: 0}))
	assert.Error(t, rejectPlaceholder(choosePlaceholder))
	assert.NoError(t, rejectPlaceholder(survey.OptionAnswer{Value: "v6", Index: 4}))
}
