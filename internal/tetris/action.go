package tetris

// Action is one player input for a single step.
type Action int

const (
	None Action = iota
	Left
	Right
	SoftDrop
	HardDrop
	RotateCW
	RotateCCW
	Hold
)

var actionNames = map[string]Action{
	"None":      None,
	"Left":      Left,
	"Right":     Right,
	"SoftDrop":  SoftDrop,
	"HardDrop":  HardDrop,
	"RotateCW":  RotateCW,
	"RotateCCW": RotateCCW,
	"Hold":      Hold,
}

// ParseAction maps an in-match action name to an Action.
func ParseAction(name string) (Action, bool) {
	a, ok := actionNames[name]
	return a, ok
}

func (a Action) String() string {
	for name, v := range actionNames {
		if v == a {
			return name
		}
	}
	return "Unknown"
}
