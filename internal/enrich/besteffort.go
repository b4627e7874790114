package enrich

import "go.uber.org/zap"

// bestEffort runs a side-effect that must never fail the enclosing item,
// logging instead of propagating. Alias writes and audit emits go through
// here.
func bestEffort(name string, fn func() error) {
	if err := fn(); err != nil {
		zap.L().Warn("enrich: best-effort step failed",
			zap.String("step", name),
			zap.Error(err),
		)
	}
}
