package workflow

// State is the classification of one step's outcome.
type State int

const (
	Succeeded State = iota
	URLRedirect
	NetworkError
	Maintenance
	Blocked
	AuthExpired
	WrongAnswer
	NotYetDone
	CheckinFailed
)

var stateNames = map[State]string{
	Succeeded:     "SUCCEEDED",
	URLRedirect:   "URL_REDIRECT",
	NetworkError:  "NETWORK_ERROR",
	Maintenance:   "MAINTENANCE",
	Blocked:       "BLOCKED",
	AuthExpired:   "AUTH_EXPIRED",
	WrongAnswer:   "WRONG_ANSWER",
	NotYetDone:    "NOT_YET_DONE",
	CheckinFailed: "CHECKIN_FAILED",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// ParseState maps a config name (case-insensitive, "_" optional) to a State.
func ParseState(name string) (State, bool) {
	norm := normalizeStateName(name)
	for s, n := range stateNames {
		if normalizeStateName(n) == norm {
			return s, true
		}
	}
	return Succeeded, false
}

func normalizeStateName(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_' || c == '-' || c == ' ':
			continue
		case c >= 'a' && c <= 'z':
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
