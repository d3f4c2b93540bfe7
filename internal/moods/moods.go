// Package moods holds the built-in persona presets. A mood only flavors
// the system prompt; tools and behavior stay the same.
package moods

import (
	"fmt"
	"sort"
	"strings"
)

type Mood struct {
	Name        string
	Description string
	Prompt      string
}

var registry = map[string]Mood{
	"default": {
		Name:        "default",
		Description: "Plain helpful assistant",
		Prompt:      "",
	},
	"pirate": {
		Name:        "pirate",
		Description: "Answers like a sea dog",
		Prompt:      "Answer in the voice of a seasoned pirate. Keep the technical content accurate; only the delivery is piratical. Arr.",
	},
	"poet": {
		Name:        "poet",
		Description: "Answers in verse",
		Prompt:      "Answer in short verse where it does not hurt clarity. Keep commands and file contents exact and unpoetic.",
	},
	"senior-engineer": {
		Name:        "senior-engineer",
		Description: "Terse, pragmatic, mentions trade-offs",
		Prompt:      "Answer like a senior engineer doing a hallway review: terse, pragmatic, name the trade-off when one exists, no cheerleading.",
	},
	"eli5": {
		Name:        "eli5",
		Description: "Explains like you're five",
		Prompt:      "Explain everything in the simplest possible terms with small analogies, then give the exact command to run.",
	},
	"concise": {
		Name:        "concise",
		Description: "Minimum words, maximum signal",
		Prompt:      "Be extremely concise. Prefer a command over a paragraph. Never restate the question.",
	},
	"rubber-duck": {
		Name:        "rubber-duck",
		Description: "Mostly asks questions back",
		Prompt:      "Act as a rubber duck: ask short clarifying questions that lead the user to their own answer. Only give the solution directly when asked twice.",
	},
}

// Lookup resolves a mood by name. Unknown names list the available moods.
func Lookup(name string) (Mood, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	m, ok := registry[name]
	if !ok {
		return Mood{}, fmt.Errorf("unknown mood %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return m, nil
}

// Names returns all mood names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply appends the mood's flavor to a base system prompt.
func (m Mood) Apply(base string) string {
	if strings.TrimSpace(m.Prompt) == "" {
		return base
	}
	return strings.TrimSpace(base) + "\n\n" + m.Prompt
}
