package batch

// State is the position of a Reader within a batch stream.
//
// Transitions:
//
//	Initial         boundary, plain part       -> Operation
//	Initial         boundary, changeset part   -> ChangesetStart
//	Initial         end boundary or no boundary -> Completed
//	Operation       plain part                 -> Operation
//	Operation       changeset part             -> ChangesetStart
//	Operation       end boundary               -> Completed, or ChangesetEnd inside a changeset
//	ChangesetStart  part                       -> Operation
//	ChangesetStart  end boundary               -> ChangesetEnd
//	ChangesetEnd    part                       -> Operation or ChangesetStart
//	ChangesetEnd    end boundary               -> Completed
//
// Any error moves the reader to Exception.
type State int

const (
	StateInitial State = iota
	StateOperation
	StateChangesetStart
	StateChangesetEnd
	StateCompleted
	StateException
)

var stateNames = map[State]string{
	StateInitial:        "Initial",
	StateOperation:      "Operation",
	StateChangesetStart: "ChangesetStart",
	StateChangesetEnd:   "ChangesetEnd",
	StateCompleted:      "Completed",
	StateException:      "Exception",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return "Unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateException
}

// resolveEndBoundary returns the state entered when the innermost active
// boundary closes. inChangeset tells whether that boundary belongs to a
// changeset.
func resolveEndBoundary(current State, inChangeset bool) (State, bool) {
	switch current {
	case StateInitial:
		return StateCompleted, true
	case StateOperation:
		if inChangeset {
			return StateChangesetEnd, true
		}

		return StateCompleted, true
	case StateChangesetStart:
		return StateChangesetEnd, true
	case StateChangesetEnd:
		return StateCompleted, true
	default:
		return StateException, false
	}
}
