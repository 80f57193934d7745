package model

// Role determines whether a participant's vote counts toward the reveal rule.
type Role string

const (
	RoleVoter    Role = "voter"
	RoleObserver Role = "observer"
)

// ParseRole validates a caller-supplied role string. An empty string defaults
// to voter, matching the join contract.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return RoleVoter, nil
	case RoleVoter:
		return RoleVoter, nil
	case RoleObserver:
		return RoleObserver, nil
	default:
		return "", ErrInvalidRole
	}
}

// VoteScale is the fixed ordered set of allowed estimate values.
var VoteScale = []int{0, 1, 2, 3, 5, 8, 13, 21}

// ValidVote reports whether v is on the estimation scale.
func ValidVote(v int) bool {
	for _, s := range VoteScale {
		if v == s {
			return true
		}
	}
	return false
}

// Participant is one connected identity within a room.
type Participant struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Snapshot is an immutable copy of a room's full state, taken after a
// completed mutation. Vote values are nil while unset; clients are expected
// to mask other participants' values until ShowResults is true.
type Snapshot struct {
	Participants map[string]Participant `json:"participants"`
	Votes        map[string]*int        `json:"votes"`
	ShowResults  bool                   `json:"showResults"`
}
