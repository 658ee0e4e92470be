package guard

// DecisionType tags a navigation decision.
type DecisionType string

const (
	DecisionAllow    DecisionType = "allow"
	DecisionLogin    DecisionType = "login"
	DecisionRedirect DecisionType = "redirect"
)

// Decision is the outcome of one navigation check. It marshals to
// {"type":"allow"}, {"type":"login","loginUrl":...} or {"type":"redirect","to":...}.
type Decision struct {
	Type     DecisionType `json:"type"`
	LoginURL string       `json:"loginUrl,omitempty"`
	To       string       `json:"to,omitempty"`
}

func Allow() Decision {
	return Decision{Type: DecisionAllow}
}

func Login(loginURL string) Decision {
	return Decision{Type: DecisionLogin, LoginURL: loginURL}
}

func Redirect(to string) Decision {
	return Decision{Type: DecisionRedirect, To: to}
}

// Target is where the caller should navigate, or "" for allow.
func (d Decision) Target() string {
	switch d.Type {
	case DecisionLogin:
		return d.LoginURL
	case DecisionRedirect:
		return d.To
	default:
		return ""
	}
}

// Applies reports whether the caller should act on d while at currentPath.
// A redirect to the page the user is already on would loop and is ignored.
func (d Decision) Applies(currentPath string) bool {
	target := d.Target()
	return target != "" && target != currentPath
}

func (d Decision) String() string {
	if t := d.Target(); t != "" {
		return string(d.Type) + " " + t
	}
	return string(d.Type)
}
