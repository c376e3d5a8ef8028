package content

import (
	"fmt"
	"strings"

	"github.com/pocketcoach/converse/pkg/domain"
)

var knownTypes = map[string]struct{}{
	domain.TypeNone: {}, domain.TypeTextbox: {}, domain.TypeOpenText: {},
	domain.TypeSingleSelect: {}, domain.TypeMultiSelect: {}, domain.TypeSkillSelect: {},
	domain.TypeSlider: {}, domain.TypeCalendar: {}, domain.TypeLikertScale: {},
	domain.TypeRadioButton: {}, domain.TypeAudio: {}, domain.TypeVideo: {},
	domain.TypeImage: {}, domain.TypeFullscreen: {}, domain.TypeContinue: {},
	domain.TypeSubmit: {}, domain.TypeGoto: {}, domain.TypeWait: {},
}

// Validate checks a script for authoring mistakes: duplicate line IDs,
// unknown types, goto lines without a resolvable target. It returns one
// message per problem, empty when the script is clean.
func Validate(script *domain.Script) []string {
	var problems []string
	seen := make(map[string]int)

	for i, line := range script.Lines() {
		where := fmt.Sprintf("line %d (%s)", i, line.ID)

		if line.ID == "" {
			problems = append(problems, fmt.Sprintf("line %d: missing ID", i))
		} else {
			key := strings.ToLower(line.ID)
			if prev, dup := seen[key]; dup {
				problems = append(problems, fmt.Sprintf("%s: duplicate of line %d", where, prev))
			} else {
				seen[key] = i
			}
		}

		if _, ok := knownTypes[line.Kind()]; !ok {
			problems = append(problems, fmt.Sprintf("%s: unknown type %q", where, line.Type))
		}

		if line.Kind() == domain.TypeGoto {
			if line.Target == "" {
				problems = append(problems, fmt.Sprintf("%s: goto without a target", where))
			} else if _, err := script.Position(line.Target); err != nil {
				problems = append(problems, fmt.Sprintf("%s: goto target %q not found", where, line.Target))
			}
		}
	}
	return problems
}
