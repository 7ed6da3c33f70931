package reward

// Option configures an Engine.
type Option func(*Engine)

// WithMultiplier sets the collaborator that scales experience bonuses.
func WithMultiplier(m Multiplier) Option {
	return func(e *Engine) {
		if m != nil {
			e.multiplier = m
		}
	}
}
