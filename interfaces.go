package xplan

import (
	"context"

	"github.com/ashita-ai/xplan/internal/policy"
	"github.com/ashita-ai/xplan/internal/xmdp"
)

// Solver computes a policy for an XMDP, typically by handing it to an
// external probabilistic model checker. Implementations must not mutate x.
type Solver interface {
	Solve(ctx context.Context, x *xmdp.XMDP) (*policy.Policy, error)
}

// Verbalizer turns an explanation report into prose for a human reader.
type Verbalizer interface {
	Verbalize(ctx context.Context, x *xmdp.XMDP, report Report) (string, error)
}
