package builtin

import (
	"context"
	"fmt"

	"github.com/strandworks/strand/internal/tools"
	"github.com/strandworks/strand/pkg/models"
)

type planArgs struct {
	Plan string `json:"plan" jsonschema:"description=The current plan text"`
}

// UpdatePlanTool records the in-progress plan on the session. It is one of
// the two mode-control tools callable in plan mode despite not being
// read-only.
type UpdatePlanTool struct{}

func (t *UpdatePlanTool) Definition() *models.ToolDefinition {
	return &models.ToolDefinition{
		ID:          "update_plan",
		Name:        "update_plan",
		Description: "Replace the pending plan with updated text.",
		Parameters:  schemaFor(&planArgs{}),
		Category:    "plan",
		Permission:  "update_plan",
	}
}

func (t *UpdatePlanTool) Execute(ctx context.Context, ec *tools.ExecContext, args map[string]any) (*models.ToolResult, error) {
	plan, _ := args["plan"].(string)
	if plan == "" {
		return nil, fmt.Errorf("plan is required")
	}
	if ec.Session != nil {
		ec.Session.PendingPlan = plan
	}
	return models.OKResult("", "plan updated"), nil
}

// ExitPlanModeTool finalizes the pending plan and asks the host to leave
// plan mode. The mode switch itself is the host's decision.
type ExitPlanModeTool struct{}

func (t *ExitPlanModeTool) Definition() *models.ToolDefinition {
	return &models.ToolDefinition{
		ID:          "exit_plan_mode",
		Name:        "exit_plan_mode",
		Description: "Present the final plan and request to leave plan mode.",
		Parameters:  schemaFor(&planArgs{}),
		Category:    "plan",
		Permission:  "exit_plan_mode",
	}
}

func (t *ExitPlanModeTool) Execute(ctx context.Context, ec *tools.ExecContext, args map[string]any) (*models.ToolResult, error) {
	plan, _ := args["plan"].(string)
	if ec.Session != nil && plan != "" {
		ec.Session.PendingPlan = plan
	}
	return models.OKResult("", "plan recorded; awaiting mode switch"), nil
}
