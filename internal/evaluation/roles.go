package evaluation

import "github.com/hazyhaar/factlens/internal/config"

// Role parameterizes a RoleEvaluator.
type Role struct {
	Name         string
	Perspective  string
	System       string
	Instructions []string // numbered task list rendered into the prompt
	Tools        []string // retrieval tool names
}

// BuiltinRoles returns the four standard perspectives in registration order.
func BuiltinRoles() []Role {
	return []Role{
		{
			Name:        "fact_checker",
			Perspective: "Professional fact-checker validating against verified sources",
			System: "You are a professional fact-checker whose only goal is to validate statements against verified data. " +
				"Always cite which fact-checking organization or authoritative source provided the information. " +
				"If no direct match is found, look for similar claims or patterns.",
			Instructions: []string{
				"Break the statement down into individual verifiable claims",
				"Check each claim against authoritative sources and prior fact-checks",
				"Identify any factual errors or misrepresentations",
				"Verify dates, names, numbers and specific claims",
				"Note any claims that cannot be verified with available data",
			},
			Tools: []string{"factcheck_search"},
		},
		{
			Name:        "conspirator",
			Perspective: "Critical analyst uncovering manipulation and hidden agendas",
			System: "You are a critical analyst who uncovers manipulation tactics and hidden agendas in political statements. " +
				"Be skeptical but fair, and keep to evidence-based analysis.",
			Instructions: []string{
				"Identify manipulation tactics such as emotional appeals, logical fallacies and misdirection",
				"Uncover possible hidden agendas or ulterior motives",
				"Analyze who benefits from this statement and how",
				"Look for what is not being said or is deliberately omitted",
				"Examine timing and context for strategic purposes",
			},
		},
		{
			Name:        "simple_joe",
			Perspective: "Regular person using common sense",
			System: "You are Joe, a regular person who looks for the most obvious and simple explanations. " +
				"Use plain language, as if explaining to a friend.",
			Instructions: []string{
				"Consider the most straightforward explanation for why this statement was made",
				"Think about how this affects regular people's daily lives",
				"Look for common sense red flags or things that don't add up",
				"Consider whether the speaker has obvious personal reasons for saying it",
				"Apply practical wisdom to judge how believable it is",
			},
		},
		{
			Name:        "nerd",
			Perspective: "Data scientist examining statistics and methodology",
			System: "You are a data scientist and methodology expert. Only trust peer-reviewed sources and official statistics. " +
				"Be precise with numbers.",
			Instructions: []string{
				"Identify and verify every numerical claim, statistic and data point",
				"Check the methodology behind any studies or reports referenced",
				"Look for cherry-picked time periods, sample size issues and correlation versus causation errors",
				"Analyze economic implications and financial motivations",
				"Check for peer review, replication and expert consensus",
			},
			Tools: []string{"academic_search", "web_search"},
		},
	}
}

// RolesFromConfig appends configured custom roles after the built-ins.
func RolesFromConfig(custom []config.CustomAgent) []Role {
	roles := BuiltinRoles()
	for _, c := range custom {
		r := Role{
			Name:        c.Name,
			Perspective: c.Perspective,
			System:      c.System,
			Tools:       c.Tools,
		}
		if r.Perspective == "" {
			r.Perspective = c.Name + " perspective"
		}
		if c.Task != "" {
			r.Instructions = []string{c.Task}
		}
		roles = append(roles, r)
	}
	return roles
}

// FilterRoles keeps the named roles in the order given. Unknown names are
// returned separately and duplicates are skipped. An empty names list keeps
// every role.
func FilterRoles(roles []Role, names []string) (kept []Role, unknown []string) {
	if len(names) == 0 {
		return roles, nil
	}
	byName := make(map[string]Role, len(roles))
	for _, r := range roles {
		byName[r.Name] = r
	}
	seen := map[string]bool{}
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		r, ok := byName[n]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		kept = append(kept, r)
	}
	return kept, unknown
}
