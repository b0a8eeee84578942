package analyzer

import (
	"context"
	"fmt"

	"github.com/andresmejia3/moodscan/internal/facial"
	"github.com/andresmejia3/moodscan/internal/worker"
)

// PythonDetectors starts engines Python face-emotion workers per analysis.
func PythonDetectors(cfg worker.Config, engines int) DetectorFactory {
	if engines < 1 {
		engines = 1
	}
	return func(ctx context.Context) ([]facial.Detector, func(), error) {
		workers := make([]*worker.PythonWorker, 0, engines)
		release := func() {
			for _, w := range workers {
				w.Close()
			}
		}
		for i := 0; i < engines; i++ {
			w, err := worker.NewPythonWorker(ctx, i, cfg)
			if err != nil {
				release()
				return nil, nil, fmt.Errorf("%w: %v", facial.ErrDetectorUnavailable, err)
			}
			workers = append(workers, w)
		}

		detectors := make([]facial.Detector, len(workers))
		for i, w := range workers {
			detectors[i] = w
		}
		return detectors, release, nil
	}
}
