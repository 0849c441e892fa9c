package render

type config struct {
	Force bool
}

type Option interface {
	apply(*config)
}

type Options []Option

func (s Options) config() config {
	cfg := config{}
	for _, opt := range s {
		opt.apply(&cfg)
	}
	return cfg
}

// OptionForce bypasses the render cache.
type OptionForce bool

func (opt OptionForce) apply(cfg *config) {
	cfg.Force = bool(opt)
}
