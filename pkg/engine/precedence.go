package engine

import (
	"fmt"
	"strings"
	"time"
)

// StageGroups splits a plan's stages into precedence groups.
// A stage marked Parallel joins the group of the stage before it. Every
// stage of a group depends on every stage of the previous group.
func StageGroups(plan *ProductionPlan) [][]int {
	var groups [][]int
	for i, st := range plan.Stages {
		if i == 0 || !st.Parallel {
			groups = append(groups, []int{i})
			continue
		}
		last := len(groups) - 1
		groups[last] = append(groups[last], i)
	}
	return groups
}

// predecessors returns the indexes of the stages that gate stage i.
func predecessors(plan *ProductionPlan, i int) []int {
	g := i
	for g > 0 && plan.Stages[g].Parallel {
		g--
	}
	if g == 0 {
		return nil
	}

	end := g - 1
	start := end
	for start > 0 && plan.Stages[start].Parallel {
		start--
	}

	idx := make([]int, 0, end-start+1)
	for n := start; n <= end; n++ {
		idx = append(idx, n)
	}
	return idx
}

// isSuperseded reports whether a rework stage for the given stage exists in the plan.
func isSuperseded(plan *ProductionPlan, stageID string) bool {
	for _, st := range plan.Stages {
		if st.ReworkOf == stageID {
			return true
		}
	}
	return false
}

// stageDone reports whether a stage no longer gates its successors.
// A failed stage is done once a rework stage has taken its place.
func stageDone(plan *ProductionPlan, st *ProductionStage) bool {
	switch st.Status {
	case StageStatusCompleted:
		return true
	case StageStatusFailed:
		return isSuperseded(plan, st.ID)
	default:
		return false
	}
}

// predecessorsDone reports whether every predecessor of stage i is done.
func predecessorsDone(plan *ProductionPlan, i int) bool {
	for _, p := range predecessors(plan, i) {
		if !stageDone(plan, plan.Stages[p]) {
			return false
		}
	}
	return true
}

// readyAt returns the earliest instant stage i may start given its predecessors.
func readyAt(plan *ProductionPlan, i int) time.Time {
	var ready time.Time
	for _, p := range predecessors(plan, i) {
		pred := plan.Stages[p]
		if pred.ScheduledEnd.After(ready) {
			ready = pred.ScheduledEnd
		}
		if pred.CompletedAt.After(ready) {
			ready = pred.CompletedAt
		}
	}
	return ready
}

// ValidatePlan checks the structural rules of a plan before ingestion.
func ValidatePlan(plan *ProductionPlan) error {
	if plan == nil {
		return NewPermanentError("plan is nil", nil).WithCode(ErrCodeValidation)
	}
	if plan.ID == "" {
		return NewPermanentError("plan has empty ID", nil).WithCode(ErrCodeValidation)
	}
	if plan.OrderID == "" {
		return invalid("plan has no order", plan.ID)
	}
	if len(plan.Stages) == 0 {
		return invalid("plan has no stages", plan.ID)
	}

	seen := make(map[string]bool, len(plan.Stages))
	for i, st := range plan.Stages {
		if st == nil {
			return invalid(fmt.Sprintf("stage %d is nil", i), plan.ID)
		}
		if st.ID == "" {
			return invalid(fmt.Sprintf("stage %d has empty ID", i), plan.ID)
		}
		if seen[st.ID] {
			return invalid("duplicate stage ID in plan", st.ID).WithDetail("plan_id", plan.ID)
		}
		seen[st.ID] = true

		if st.EquipmentType == "" {
			return invalid("stage has no equipment type", st.ID)
		}
		if st.Duration <= 0 {
			return invalid("stage duration must be positive", st.ID)
		}
		if i == 0 && st.Parallel {
			return invalid("first stage of a plan cannot be parallel", st.ID)
		}
		for _, r := range st.Requirements {
			if r.MaterialID == "" {
				return invalid("requirement has no material", st.ID)
			}
			if !r.Quantity.IsPositive() {
				return invalid("requirement quantity must be positive", st.ID).
					WithDetail("material_id", r.MaterialID)
			}
		}
	}
	return nil
}

// PlanToDOT renders the precedence groups of a plan in Graphviz DOT format.
func PlanToDOT(plan *ProductionPlan) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("digraph \"%s\" {\n", plan.ID))
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	groups := StageGroups(plan)
	for g, idx := range groups {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_group_%d {\n", g))
		sb.WriteString(fmt.Sprintf("    label=\"Group %d\";\n", g))
		sb.WriteString("    style=dashed;\n")
		for _, i := range idx {
			st := plan.Stages[i]
			label := fmt.Sprintf("%s\\n%s", st.Name, st.Status)
			sb.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
				st.ID, label, stageColor(st.Status)))
		}
		sb.WriteString("  }\n\n")
	}

	for g := 1; g < len(groups); g++ {
		for _, from := range groups[g-1] {
			for _, to := range groups[g] {
				sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\";\n",
					plan.Stages[from].ID, plan.Stages[to].ID))
			}
		}
	}
	for _, st := range plan.Stages {
		if st.ReworkOf != "" {
			sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [style=dashed, color=red];\n", st.ReworkOf, st.ID))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// stageColor returns a color for visualizing stage statuses.
func stageColor(status StageStatus) string {
	switch status {
	case StageStatusCompleted:
		return "lightgreen"
	case StageStatusScheduled, StageStatusInProgress:
		return "lightblue"
	case StageStatusBlocked:
		return "khaki"
	case StageStatusFailed, StageStatusCancelled:
		return "lightcoral"
	default:
		return "white"
	}
}
