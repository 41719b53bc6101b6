package milestone

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/gemboard/sys"
)

var ErrUnsortedTable = errors.New("milestone thresholds must be positive and strictly increasing")

// Milestone grants RoleID once a member reaches Threshold gems.
type Milestone struct {
	Threshold int
	RoleID    snowflake.ID
}

// Table is an ordered list of milestones, lowest threshold first.
type Table struct {
	steps []Milestone
}

func NewTable(steps []sys.Milestone) (Table, error) {
	out := make([]Milestone, 0, len(steps))
	for i, s := range steps {
		if s.Threshold <= 0 || (i > 0 && s.Threshold <= steps[i-1].Threshold) {
			return Table{}, fmt.Errorf("%w: %d", ErrUnsortedTable, s.Threshold)
		}
		out = append(out, Milestone{Threshold: s.Threshold, RoleID: s.RoleID})
	}
	return Table{steps: out}, nil
}

// Eligible returns the highest milestone whose threshold is at most gems.
func (t Table) Eligible(gems int) (Milestone, bool) {
	for i := len(t.steps) - 1; i >= 0; i-- {
		if t.steps[i].Threshold <= gems {
			return t.steps[i], true
		}
	}
	return Milestone{}, false
}

// Roles is the guild role capability the reconciler acts through.
type Roles interface {
	MemberRoles(ctx context.Context, userID snowflake.ID) ([]snowflake.ID, error)
	AddRole(ctx context.Context, userID, roleID snowflake.ID) error
	RemoveRole(ctx context.Context, userID, roleID snowflake.ID) error
}

// Notifier delivers failure reports. Delivery is best-effort.
type Notifier func(ctx context.Context, message string)

// Outcome describes what a reconcile run did.
type Outcome struct {
	Eligible   *Milestone
	Held       bool
	Added      bool
	Removed    []snowflake.ID
	AddErr     error
	RemoveErrs map[snowflake.ID]error
	FetchErr   error
}

// Reconciler brings a member's milestone roles in line with their gem count.
type Reconciler struct {
	Table  Table
	Notify Notifier
}

// Reconcile grants the eligible role and, only once that succeeds, strips
// lower milestone roles. Members below every threshold are left untouched.
func (r *Reconciler) Reconcile(ctx context.Context, roles Roles, userID snowflake.ID, gems int) Outcome {
	var out Outcome

	eligible, ok := r.Table.Eligible(gems)
	if !ok {
		sys.LogMilestone(sys.MsgMilestoneBelow, userID, gems)
		return out
	}
	out.Eligible = &eligible

	held, err := roles.MemberRoles(ctx, userID)
	if err != nil {
		sys.LogMilestone(sys.MsgMilestoneFetchFail, userID, err)
		out.FetchErr = err
		return out
	}
	holds := make(map[snowflake.ID]struct{}, len(held))
	for _, id := range held {
		holds[id] = struct{}{}
	}

	if _, ok := holds[eligible.RoleID]; ok {
		sys.LogMilestone(sys.MsgMilestoneHeld, userID, eligible.RoleID, gems)
		out.Held = true
		return out
	}

	if err := roles.AddRole(ctx, userID, eligible.RoleID); err != nil {
		sys.LogMilestone(sys.MsgMilestoneAssignFail, eligible.RoleID, userID, err)
		out.AddErr = err
		r.report(ctx, fmt.Sprintf(sys.MsgMilestoneReportAdd, eligible.RoleID, userID, err))
		return out
	}
	out.Added = true
	sys.LogMilestone(sys.MsgMilestoneAssigned, eligible.RoleID, userID, gems)

	for _, m := range r.Table.steps {
		if m.RoleID == eligible.RoleID || m.Threshold >= gems {
			continue
		}
		if _, ok := holds[m.RoleID]; !ok {
			continue
		}
		if err := roles.RemoveRole(ctx, userID, m.RoleID); err != nil {
			sys.LogMilestone(sys.MsgMilestoneRemoveFail, m.RoleID, userID, err)
			if out.RemoveErrs == nil {
				out.RemoveErrs = make(map[snowflake.ID]error)
			}
			out.RemoveErrs[m.RoleID] = err
			r.report(ctx, fmt.Sprintf(sys.MsgMilestoneReportDrop, m.RoleID, userID, err))
			continue
		}
		out.Removed = append(out.Removed, m.RoleID)
		sys.LogMilestone(sys.MsgMilestoneRemoved, m.RoleID, userID)
	}
	return out
}

func (r *Reconciler) report(ctx context.Context, msg string) {
	if r.Notify == nil {
		sys.LogWarn(sys.MsgNotifyNoOperator, msg)
		return
	}
	r.Notify(ctx, msg)
}
