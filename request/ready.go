package request

import "context"

const ReadyPriority = 100000

// Ready cancels an invocation silently when Config().Ready reports false.
func Ready() Middleware {
	return Middleware{
		Name:     "builtin.ready",
		Priority: ReadyPriority,
		Setup: func(bc *BasicContext) {
			bc.Hooks().Hook(HookPreface, func(ctx context.Context, p *HookPayload) error {
				ready := p.Context.Config().Ready
				if ready == nil {
					return nil
				}
				ok, err := ready(ctx, p.Params)
				if err != nil {
					return err
				}
				if !ok {
					p.Context.Cancel(true)
				}
				return nil
			})
		},
	}
}
