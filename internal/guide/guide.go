// Package guide turns a mission's free-text verification guide into an
// ordered list of proof steps.
package guide

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	stepLineRe = regexp.MustCompile(`^(\d+)단계:\s*(.+)$`)
	minCountRe = regexp.MustCompile(`(\d+)개\s*이상`)
)

type Step struct {
	Index       int
	Title       string
	Description string
}

// Parse extracts the required proof steps from a guide text.
//
// Lines of the form "N단계: <description>" become one step each. If no such
// line exists but the text mentions "N개 이상", N synthetic steps are produced
// that all carry the full guide text as description. Any other text (or an
// empty guide) yields a single catch-all step.
func Parse(text string) []Step {
	var steps []Step

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := stepLineRe.FindStringSubmatch(line); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 {
				continue
			}

			steps = append(steps, Step{
				Index:       n - 1,
				Title:       fmt.Sprintf("%d단계", n),
				Description: m[2],
			})
		}
	}

	if len(steps) == 0 {
		if m := minCountRe.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				for i := 0; i < n; i++ {
					steps = append(steps, Step{
						Index:       i,
						Title:       fmt.Sprintf("%d번째 인증", i+1),
						Description: text,
					})
				}
			}
		}
	}

	if len(steps) == 0 {
		steps = append(steps, Step{Index: 0, Title: "미션 인증", Description: text})
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Index < steps[j].Index })

	return steps
}
