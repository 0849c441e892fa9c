package screencap

// CustomOption is an extra encoder option passed as "-key value".
type CustomOption struct {
	Key   string `json:"key"             yaml:"key"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

type CustomOptions []CustomOption

func (opts CustomOptions) Get(key string) (string, bool) {
	for _, opt := range opts {
		if opt.Key == key {
			return opt.Value, true
		}
	}
	return "", false
}

func (opts CustomOptions) Args() []string {
	result := make([]string, 0, len(opts)*2)
	for _, opt := range opts {
		result = append(result, "-"+opt.Key)
		if opt.Value != "" {
			result = append(result, opt.Value)
		}
	}
	return result
}
