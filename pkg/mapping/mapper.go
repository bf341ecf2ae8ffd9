// Package mapping runs the complete pRF mapping pipeline: loading voxel and
// model data, fitting voxel partitions in parallel, and saving results and
// parameter maps.
package mapping

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/sgostarter/i/l"

	"prfmapper/internal/models"
	"prfmapper/pkg/config"
	"prfmapper/pkg/fit"
	"prfmapper/pkg/prfio"
	"prfmapper/pkg/visualization"
)

// Mapper handles one pRF mapping run.
//
// The run consists of several steps:
// 1. Loading the voxel time courses and the model bank
// 2. Building the parameter axes from the grid configuration
// 3. Fitting voxel partitions in parallel
// 4. Saving the result file
// 5. Rendering parameter maps when a volume shape is configured
type Mapper struct {
	cfg    *config.Config
	logger l.Wrapper

	// progress is forwarded to the first partition
	progress fit.ProgressFunc

	axes   models.ParameterAxes
	voxels *models.VoxelBatch
	bank   *models.ModelBank

	result     *models.FitResult
	partitions int
	elapsed    time.Duration
}

// NewMapper creates a mapper for the given configuration. A nil logger
// discards all log output.
func NewMapper(cfg *config.Config, logger l.Wrapper) *Mapper {
	if logger == nil {
		logger = l.NewNopLoggerWrapper()
	}
	return &Mapper{cfg: cfg, logger: logger}
}

// SetProgressCallback sets a callback receiving fitting milestones
func (m *Mapper) SetProgressCallback(fn fit.ProgressFunc) {
	m.progress = fn
}

// Process runs the complete mapping pipeline
func (m *Mapper) Process() error {
	if err := m.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	strategy, err := m.cfg.Strategy()
	if err != nil {
		return err
	}

	if err := m.load(); err != nil {
		return err
	}

	m.partitions = PartitionCount(m.voxels.NumVoxels, m.cfg.Fitting.NumWorkers)
	start := time.Now()
	m.result, err = FitPartitions(m.axes, m.voxels, m.bank, FitOptions{
		Strategy:      strategy,
		NumWorkers:    m.cfg.Fitting.NumWorkers,
		Logger:        m.logger,
		Progress:      m.progress,
		ProgressSteps: m.cfg.Fitting.ProgressSteps,
	})
	if err != nil {
		return fmt.Errorf("model fitting failed: %w", err)
	}
	m.elapsed = time.Since(start)

	out := m.cfg.Output
	if err := prfio.SaveResult(out.ResultFile, m.result, out.Compress); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	m.logger.WithFields(l.StringField("file", out.ResultFile)).Info("results saved")

	if out.MapDir != "" && len(out.MapShape) == 3 {
		if err := m.saveMaps(); err != nil {
			return fmt.Errorf("failed to save parameter maps: %w", err)
		}
	}
	return nil
}

// load reads the input files and builds the axes
func (m *Mapper) load() error {
	in := m.cfg.Input
	var err error

	m.voxels, err = prfio.LoadVoxelBatch(in.VoxelFile)
	if err != nil {
		return fmt.Errorf("failed to load voxel data: %w", err)
	}
	m.bank, err = prfio.LoadModelBank(in.ModelFile)
	if err != nil {
		return fmt.Errorf("failed to load model time courses: %w", err)
	}
	m.axes = m.cfg.Axes()

	m.logger.WithFields(
		l.IntField("voxels", m.voxels.NumVoxels),
		l.IntField("volumes", m.voxels.NumVolumes),
		l.StringField("bank", fmt.Sprint(m.bank.Shape())),
	).Info("inputs loaded")
	return nil
}

// saveMaps renders each result parameter as a volume of JPEG slices
func (m *Mapper) saveMaps() error {
	shape := m.cfg.Output.MapShape
	width, height, depth := shape[0], shape[1], shape[2]
	if width*height*depth != m.result.NumVoxels() {
		return fmt.Errorf("map shape %v holds %d voxels, result has %d",
			shape, width*height*depth, m.result.NumVoxels())
	}

	maps := []struct {
		name   string
		values []float64
	}{
		{"r2", m.result.R2},
		{"x", m.result.XPos},
		{"y", m.result.YPos},
		{"size", m.result.Size},
	}
	for _, pm := range maps {
		viewer := visualization.NewViewer(pm.values, width, height, depth)
		dir := filepath.Join(m.cfg.Output.MapDir, pm.name)
		if err := viewer.SaveSliceSequence("z", dir); err != nil {
			return fmt.Errorf("%s map: %w", pm.name, err)
		}
	}
	m.logger.WithFields(l.StringField("dir", m.cfg.Output.MapDir)).Info("parameter maps saved")
	return nil
}

// Result returns the merged fit result of the last run
func (m *Mapper) Result() *models.FitResult {
	return m.result
}

// Partitions returns the number of voxel partitions fitted in the last run
func (m *Mapper) Partitions() int {
	return m.partitions
}

// Elapsed returns the time spent fitting in the last run
func (m *Mapper) Elapsed() time.Duration {
	return m.elapsed
}
