package simulator

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/ocppbridge/core/logger"
)

// GenerateFleet creates cfg.Count charge points with ids <prefix>0001..
// sharing one answer strategy.
func GenerateFleet(cfg Config, strat AnswerStrategy, log logger.Logger) []*ChargePoint {
	if cfg.Count <= 0 {
		return nil
	}
	cps := make([]*ChargePoint, cfg.Count)
	for i := range cps {
		cps[i] = NewChargePoint(fmt.Sprintf("%s%04d", cfg.IDPrefix, i+1), cfg, strat, log)
	}
	return cps
}

// Run starts the fleet described by cfg and blocks until ctx is done or
// every charge point stopped.
func Run(ctx context.Context, cfg Config, log logger.Logger) error {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	var strat AnswerStrategy = AutoAnswer{Delay: cfg.AnswerDelay}
	if cfg.DropRate > 0 {
		strat = NewRandomAnswer(cfg.AnswerDelay, cfg.DropRate)
	}
	var wg sync.WaitGroup
	for _, cp := range GenerateFleet(cfg, strat, log) {
		wg.Add(1)
		go func(cp *ChargePoint) {
			defer wg.Done()
			if err := cp.Run(ctx, cfg.AutoStart); err != nil {
				log.Errorf("%s: %v", cp.ID, err)
			}
		}(cp)
	}
	wg.Wait()
	return nil
}
