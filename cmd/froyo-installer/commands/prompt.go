package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
)

const (
	answerYes     = "yes"
	answerNo      = "no"
	answerExplain = "explain"
)

// choose asks the user to pick one of answers. Tests replace it.
var choose = func(title string, answers []string) (string, error) {
	var choice string
	options := make([]huh.Option[string], 0, len(answers))
	for _, a := range answers {
		options = append(options, huh.NewOption(label(a), a))
	}

	err := huh.NewSelect[string]().
		Title(title).
		Options(options...).
		Value(&choice).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return answerNo, nil
	}
	return choice, err
}

func label(answer string) string {
	switch answer {
	case answerYes:
		return "Yes"
	case answerNo:
		return "No"
	case answerExplain:
		return "Explain"
	default:
		return answer
	}
}

// confirmPlan prints the plan description and asks whether to proceed.
// Explain reprints it with every setting and step detail.
func confirmPlan(w io.Writer, describe func(explain bool) (string, error), explain bool, question string) (bool, error) {
	for {
		text, err := describe(explain)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(w, text)

		answers := []string{answerYes, answerNo}
		if !explain {
			answers = append(answers, answerExplain)
		}
		choice, err := choose(question, answers)
		if err != nil {
			return false, err
		}

		switch choice {
		case answerYes:
			return true, nil
		case answerExplain:
			explain = true
		default:
			return false, nil
		}
	}
}

// confirm asks a yes or no question.
func confirm(question string) (bool, error) {
	choice, err := choose(question, []string{answerYes, answerNo})
	if err != nil {
		return false, err
	}
	return choice == answerYes, nil
}
