package permission

// DefaultBuildRuleset is the ruleset active in build mode: reads are allowed
// anywhere in the workspace, writes are allowed, shell commands ask unless a
// more specific rule applies.
func DefaultBuildRuleset() Ruleset {
	return Ruleset{
		Mode: ModeBuild,
		Rules: []Rule{
			{Permission: "read", Pattern: "*", Action: ActionAllow},
			{Permission: "glob", Pattern: "*", Action: ActionAllow},
			{Permission: "grep", Pattern: "*", Action: ActionAllow},
			{Permission: "write", Pattern: "*", Action: ActionAllow},
			{Permission: "edit", Pattern: "*", Action: ActionAllow},
			{Permission: "shell", Pattern: "*", Action: ActionAsk},
			{Permission: "task", Pattern: "*", Action: ActionAllow},
		},
	}
}

// DefaultPlanRuleset is the ruleset active in plan mode. The evaluator's
// read-only hard block runs before these rules; they only govern the tools
// that survive it.
func DefaultPlanRuleset() Ruleset {
	return Ruleset{
		Mode: ModePlan,
		Rules: []Rule{
			{Permission: "read", Pattern: "*", Action: ActionAllow},
			{Permission: "glob", Pattern: "*", Action: ActionAllow},
			{Permission: "grep", Pattern: "*", Action: ActionAllow},
			{Permission: "task", Pattern: "*", Action: ActionAllow},
			{Permission: "shell", Pattern: "*", Action: ActionDeny},
		},
	}
}

// RulesetFor returns the default ruleset for a mode.
func RulesetFor(mode Mode) Ruleset {
	if mode == ModePlan {
		return DefaultPlanRuleset()
	}
	return DefaultBuildRuleset()
}
