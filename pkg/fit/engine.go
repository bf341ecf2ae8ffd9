// Package fit implements the exhaustive pRF model search: every candidate
// (x, y, size) model of a model bank is fitted to a batch of voxel time
// courses by linear least squares, and the best model per voxel is kept.
package fit

import (
	"math"

	"github.com/sgostarter/i/l"

	"prfmapper/internal/models"
)

// DefaultProgressSteps is the number of progress milestones per invocation
const DefaultProgressSteps = 20

// ProgressFunc receives progress milestones. percent runs from 0 to 100,
// done and total count model evaluations.
type ProgressFunc func(percent, done, total int)

// Input is everything one fitting invocation reads
type Input struct {
	// PartitionID is copied to the result so slices can be put back in order
	PartitionID int

	Axes   models.ParameterAxes
	Voxels *models.VoxelBatch
	Bank   *models.ModelBank
}

// Options controls how an invocation runs. The zero value uses the
// generic strategy with no logging and no progress.
type Options struct {
	Strategy Strategy

	// Logger receives the strategy downgrade note and a summary line
	Logger l.Wrapper

	// Progress is called at ProgressSteps evenly spaced milestones
	Progress      ProgressFunc
	ProgressSteps int
}

// FindPRF searches the full model grid for the best fitting model of every
// voxel in the batch. It is single-threaded and runs to completion; shape
// errors are reported before any model is evaluated.
func FindPRF(in Input, opts Options) (*models.FitResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = l.NewNopLoggerWrapper()
	}

	numCon := 0
	if in.Bank != nil {
		numCon = in.Bank.NumConditions
	}
	kind, downgraded := selectSolver(opts.Strategy, numCon)
	if err := validate(in, kind); err != nil {
		return nil, err
	}
	if downgraded {
		logger.WithFields(l.IntField("conditions", numCon)).Info(
			"specialized fitting supports one or two conditions only, using generic solver")
	}

	bank := in.Bank
	usable, skipped := screenModels(bank)

	data := timeMajor(in.Voxels, kind.demeaned())
	s := newSolver(kind, data, numCon)
	best := models.NewFitResult(in.PartitionID, in.Voxels.NumVoxels, numCon)

	courses := make([][]float64, numCon)
	for c := range courses {
		courses[c] = make([]float64, bank.NumVolumes)
	}

	progress := newProgressTracker(opts.Progress, opts.ProgressSteps, len(usable))
	progress.start()

	singular := 0
	idx := 0
	for x := 0; x < bank.NumX; x++ {
		for y := 0; y < bank.NumY; y++ {
			for sz := 0; sz < bank.NumSizes; sz++ {
				if usable[idx] {
					loadCourses(courses, bank, x, y, sz, kind.demeaned())
					if s.solve(courses) {
						updateBest(best, in.Axes.X[x], in.Axes.Y[y], in.Axes.Sizes[sz], s.residuals, s.estimates)
					} else {
						singular++
					}
				}
				idx++
				progress.step()
			}
		}
	}

	finalize(best, in.Voxels)

	logger.WithFields(
		l.IntField("partition", in.PartitionID),
		l.IntField("voxels", in.Voxels.NumVoxels),
		l.IntField("models", len(usable)),
		l.IntField("screenedOut", skipped),
		l.IntField("singular", singular),
		l.StringField("solver", kind.String()),
	).Debug("model search finished")

	return best, nil
}

func (k solverKind) String() string {
	switch k {
	case solverOne:
		return "closed-form/1"
	case solverTwo:
		return "closed-form/2"
	default:
		return "qr"
	}
}

// progressTracker reports fixed percentage milestones over a known total
type progressTracker struct {
	fn    ProgressFunc
	steps int
	total int
	done  int
	next  int
}

func newProgressTracker(fn ProgressFunc, steps, total int) *progressTracker {
	if steps <= 0 {
		steps = DefaultProgressSteps
	}
	return &progressTracker{fn: fn, steps: steps, total: total}
}

// milestone returns the evaluation count at which milestone k is reached
func (p *progressTracker) milestone(k int) int {
	return int(math.Ceil(float64(k) * float64(p.total) / float64(p.steps)))
}

func (p *progressTracker) start() {
	p.report()
}

func (p *progressTracker) step() {
	p.done++
	p.report()
}

func (p *progressTracker) report() {
	if p.fn == nil {
		return
	}
	for p.next <= p.steps && p.done >= p.milestone(p.next) {
		percent := int(math.Ceil(float64(p.next) * 100 / float64(p.steps)))
		p.fn(percent, p.milestone(p.next), p.total)
		p.next++
	}
}
