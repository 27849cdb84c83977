package job

// ListOptions controls how jobs are selected when querying the store.
type ListOptions struct {
	Limit    int
	Statuses []Status
}

func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Statuses != nil {
		valid := opts.Statuses[:0:0]
		seen := make(map[Status]struct{}, len(opts.Statuses))
		for _, s := range opts.Statuses {
			if !IsValidStatus(s) {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			valid = append(valid, s)
		}
		opts.Statuses = valid
	}
}

func (opts ListOptions) matches(j *Job) bool {
	if len(opts.Statuses) == 0 {
		return true
	}
	for _, s := range opts.Statuses {
		if j.Status == s {
			return true
		}
	}
	return false
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of jobs returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithStatuses restricts results to the given statuses.
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) {
		opts.Statuses = append(opts.Statuses, statuses...)
	}
}

// BuildListOptions applies opts over the defaults.
func BuildListOptions(opts ...ListOption) ListOptions {
	var options ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}
