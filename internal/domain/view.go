package domain

// View represents the current active view
type View int

const (
	ViewLogin View = iota
	ViewWizard
)

// String returns the display name of the view
func (v View) String() string {
	switch v {
	case ViewLogin:
		return "Login"
	case ViewWizard:
		return "New Prescription"
	default:
		return "Unknown"
	}
}

// RequiresAuth returns true if the view is only reachable after login
func (v View) RequiresAuth() bool {
	return v != ViewLogin
}
