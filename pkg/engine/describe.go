package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/openfroyo/installer/pkg/action"
)

// DescribeInstall renders the pending install steps for a confirmation
// prompt. With explain, every setting and each step's explanation lines are
// included; otherwise only settings that differ from the defaults.
func (p *InstallPlan) DescribeInstall(explain bool) (string, error) {
	var descs []action.Description
	for _, step := range p.Actions {
		descs = append(descs, step.DescribeExecute()...)
	}
	return p.describe("install", explain, descs)
}

// DescribeUninstall renders the pending revert steps in the order they will
// run.
func (p *InstallPlan) DescribeUninstall(explain bool) (string, error) {
	var descs []action.Description
	for i := len(p.Actions) - 1; i >= 0; i-- {
		descs = append(descs, p.Actions[i].DescribeRevert()...)
	}
	return p.describe("uninstall", explain, descs)
}

func (p *InstallPlan) describe(stage string, explain bool, descs []action.Description) (string, error) {
	var (
		settings map[string]any
		err      error
	)
	if explain {
		settings, err = p.Planner.Settings()
	} else {
		settings, err = p.Planner.ConfiguredSettings()
	}
	if err != nil {
		return "", NewError(ErrorKindPlanner, "failed to read planner settings", err)
	}

	lines, err := settingLines(settings)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Nix %s plan (v%s)\n", stage, p.Version)
	fmt.Fprintf(&b, "Planner: %s", p.plannerTag())
	if len(lines) == 0 {
		b.WriteString(" (with default settings)")
	}
	b.WriteString("\n\n")

	if len(lines) > 0 {
		if explain {
			b.WriteString("Planner settings:\n")
		} else {
			b.WriteString("Configured settings:\n")
		}
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n\n")
	}

	b.WriteString("Planned actions:\n")
	for _, d := range descs {
		fmt.Fprintf(&b, "* %s\n", d.Headline)
		if explain {
			for _, line := range d.Explanation {
				fmt.Fprintf(&b, "  %s\n", line)
			}
		}
	}
	return b.String(), nil
}

// settingLines formats settings as sorted "* key: value" lines with bold keys.
func settingLines(settings map[string]any) ([]string, error) {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	bold := color.New(color.Bold)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := json.Marshal(settings[k])
		if err != nil {
			return nil, fmt.Errorf("failed to render setting %s: %w", k, err)
		}
		lines = append(lines, fmt.Sprintf("* %s: %s", bold.Sprint(k), v))
	}
	return lines, nil
}
