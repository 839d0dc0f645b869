package monitor

import "context"

// DrainDispatch, DrainUpdate, DrainRelay, and DrainProcess are Terminal:
// they exist so every channel produced in the graph has exactly one
// consumer, closing off a branch that doesn't feed a further join stage.
func DrainDispatch(ctx context.Context, in DispatchChan) error {
	for {
		select {
		case _, ok := <-in:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func DrainUpdate(ctx context.Context, in UpdateChan) error {
	for {
		select {
		case _, ok := <-in:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func DrainRelay(ctx context.Context, in RelayChan) error {
	for {
		select {
		case _, ok := <-in:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func DrainProcess(ctx context.Context, in ProcessChan) error {
	for {
		select {
		case _, ok := <-in:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
