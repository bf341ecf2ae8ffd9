package fit

import (
	"fmt"
	"strings"
)

// Strategy selects how the per-model least-squares problem is solved
type Strategy int

const (
	// Generic appends an intercept column and solves with a dense QR
	// factorisation. Works for any number of conditions.
	Generic Strategy = iota

	// Specialized de-means data and models and uses closed-form solutions
	// for one or two conditions.
	Specialized
)

func (s Strategy) String() string {
	switch s {
	case Generic:
		return "generic"
	case Specialized:
		return "specialized"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy converts a configuration string into a Strategy.
// The pyprf names "numpy" and "cython" are accepted as aliases.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "generic", "numpy":
		return Generic, nil
	case "specialized", "specialised", "cython":
		return Specialized, nil
	default:
		return Generic, fmt.Errorf("unknown fitting strategy %q", name)
	}
}

// solverKind is the concrete solver chosen once per invocation
type solverKind int

const (
	solverGeneric solverKind = iota
	solverOne
	solverTwo
)

// selectSolver picks the solver for the requested strategy and condition
// count. downgraded reports a Specialized request that has to run Generic.
func selectSolver(s Strategy, numConditions int) (kind solverKind, downgraded bool) {
	if s != Specialized {
		return solverGeneric, false
	}
	switch numConditions {
	case 1:
		return solverOne, false
	case 2:
		return solverTwo, false
	default:
		return solverGeneric, true
	}
}

// demeaned reports whether the solver works on mean-centred data
func (k solverKind) demeaned() bool {
	return k != solverGeneric
}
