package mapping

import (
	"fmt"
	"runtime"

	"github.com/sgostarter/i/l"

	"prfmapper/internal/models"
	"prfmapper/pkg/fit"
)

// FitOptions controls a partitioned fit
type FitOptions struct {
	Strategy fit.Strategy

	// NumWorkers is the number of partitions fitted concurrently.
	// Zero or less means one per CPU.
	NumWorkers int

	// Logger and Progress are only handed to partition 0
	Logger        l.Wrapper
	Progress      fit.ProgressFunc
	ProgressSteps int
}

// partition is a contiguous voxel range [lo, hi)
type partition struct {
	id     int
	lo, hi int
}

// splitRanges divides n voxels into at most parts contiguous, non-empty
// ranges whose sizes differ by at most one. Larger ranges come first.
func splitRanges(n, parts int) []partition {
	if parts > n {
		parts = n
	}
	if parts < 1 {
		return nil
	}

	out := make([]partition, parts)
	base, extra := n/parts, n%parts
	lo := 0
	for i := range out {
		size := base
		if i < extra {
			size++
		}
		out[i] = partition{id: i, lo: lo, hi: lo + size}
		lo += size
	}
	return out
}

func workerCount(numWorkers int) int {
	if numWorkers <= 0 {
		return runtime.NumCPU()
	}
	return numWorkers
}

// PartitionCount returns the number of partitions FitPartitions uses for
// numVoxels voxels and the given worker setting
func PartitionCount(numVoxels, numWorkers int) int {
	return len(splitRanges(numVoxels, workerCount(numWorkers)))
}

// SplitVoxels divides the batch into at most parts slices that share the
// batch storage
func SplitVoxels(batch *models.VoxelBatch, parts int) []*models.VoxelBatch {
	ranges := splitRanges(batch.NumVoxels, parts)
	out := make([]*models.VoxelBatch, len(ranges))
	for i, r := range ranges {
		out[i] = batch.Slice(r.lo, r.hi)
	}
	return out
}

// FitPartitions splits the voxel batch, fits every partition in its own
// goroutine and concatenates the results in voxel order. Inputs are shared
// read-only between partitions.
func FitPartitions(axes models.ParameterAxes, batch *models.VoxelBatch, bank *models.ModelBank, opts FitOptions) (*models.FitResult, error) {
	if batch == nil || batch.NumVoxels == 0 || batch.NumVolumes == 0 {
		return nil, fmt.Errorf("%w: no voxels to fit", fit.ErrEmptyInput)
	}
	if batch.NumVoxels < 0 || batch.NumVolumes < 0 || len(batch.Data) != batch.NumVoxels*batch.NumVolumes {
		return nil, fmt.Errorf("%w: voxel batch holds %d values for shape %dx%d",
			fit.ErrShapeMismatch, len(batch.Data), batch.NumVoxels, batch.NumVolumes)
	}

	logger := opts.Logger
	if logger == nil {
		logger = l.NewNopLoggerWrapper()
	}
	ranges := splitRanges(batch.NumVoxels, workerCount(opts.NumWorkers))

	logger.WithFields(
		l.IntField("voxels", batch.NumVoxels),
		l.IntField("partitions", len(ranges)),
		l.IntField("models", axes.NumModels()),
		l.StringField("strategy", opts.Strategy.String()),
	).Info("starting pRF model search")

	type partitionResult struct {
		id  int
		res *models.FitResult
		err error
	}
	resultChan := make(chan partitionResult, len(ranges))

	for _, r := range ranges {
		// Only the first partition logs and reports progress
		fitOpts := fit.Options{Strategy: opts.Strategy, Logger: l.NewNopLoggerWrapper()}
		if r.id == 0 {
			fitOpts.Logger = logger
			fitOpts.Progress = opts.Progress
			fitOpts.ProgressSteps = opts.ProgressSteps
		}

		go func(r partition, fitOpts fit.Options) {
			res, err := fit.FindPRF(fit.Input{
				PartitionID: r.id,
				Axes:        axes,
				Voxels:      batch.Slice(r.lo, r.hi),
				Bank:        bank,
			}, fitOpts)
			resultChan <- partitionResult{id: r.id, res: res, err: err}
		}(r, fitOpts)
	}

	// Wait for every partition before reporting the first error
	results := make([]*models.FitResult, len(ranges))
	var firstErr error
	for range ranges {
		pr := <-resultChan
		if pr.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("partition %d: %w", pr.id, pr.err)
			}
			continue
		}
		results[pr.id] = pr.res
	}
	if firstErr != nil {
		return nil, firstErr
	}

	merged, err := models.ConcatResults(results)
	if err != nil {
		return nil, fmt.Errorf("merging partition results: %w", err)
	}
	return merged, nil
}
