package pipeline

import (
	"errors"
	"fmt"

	"github.com/dyike/GemScreener/models"
)

// Stage is where a ticker sits in a run.
type Stage string

const (
	StageUniverse   Stage = "UNIVERSE"
	StageFiltered   Stage = "FILTERED"
	StageScored     Stage = "SCORED"
	StageSelected   Stage = "SELECTED"
	StageTracked    Stage = "TRACKED"
	StageClassified Stage = "CLASSIFIED"
	StageRejected   Stage = "REJECTED"
)

var ErrIllegalTransition = errors.New("illegal stage transition")

var transitions = map[Stage][]Stage{
	StageUniverse: {StageFiltered, StageRejected},
	StageFiltered: {StageScored, StageRejected},
	StageScored:   {StageSelected},
	StageSelected: {StageTracked},
	StageTracked:  {StageClassified},
}

// CanTransition reports whether next may follow s.
func (s Stage) CanTransition(next Stage) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no stage may follow s.
func (s Stage) Terminal() bool {
	return len(transitions[s]) == 0
}

// Item tracks one ticker through the stages.
type Item struct {
	Ticker  models.Ticker
	Stage   Stage
	History []Stage
}

func NewItem(t models.Ticker) *Item {
	return &Item{Ticker: t, Stage: StageUniverse, History: []Stage{StageUniverse}}
}

// Advance moves the item to next, refusing moves outside the transition table.
func (it *Item) Advance(next Stage) error {
	if !it.Stage.CanTransition(next) {
		return fmt.Errorf("%s: %s -> %s: %w", it.Ticker.Symbol, it.Stage, next, ErrIllegalTransition)
	}
	it.Stage = next
	it.History = append(it.History, next)
	return nil
}

// AdvanceAll applies a sequence of moves, stopping at the first illegal one.
func (it *Item) AdvanceAll(stages ...Stage) error {
	for _, s := range stages {
		if err := it.Advance(s); err != nil {
			return err
		}
	}
	return nil
}
