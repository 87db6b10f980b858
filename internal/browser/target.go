package browser

import "context"

// Target picks the extension session and tab an evaluation runs in.
// The zero value means the active session and its current tab.
type Target struct {
	SessionID string
	TabID     int
}

func (t Target) IsZero() bool {
	return t.SessionID == "" && t.TabID == 0
}

type targetKey struct{}

func WithTarget(ctx context.Context, target Target) context.Context {
	if target.IsZero() {
		return ctx
	}
	return context.WithValue(ctx, targetKey{}, target)
}

func TargetFromContext(ctx context.Context) (Target, bool) {
	target, ok := ctx.Value(targetKey{}).(Target)
	return target, ok
}

// PickTab returns the tab with id, or the active tab when id is zero.
func PickTab(tabs []TabInfo, id int) (TabInfo, bool) {
	for _, t := range tabs {
		if (id != 0 && t.ID == id) || (id == 0 && t.Active) {
			return t, true
		}
	}
	return TabInfo{}, false
}
