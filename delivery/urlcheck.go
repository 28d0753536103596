package delivery

import "context"

// URLValidator guards outbound requests against SSRF-unsafe targets
// (private IP ranges, disallowed hosts, and so on). Validation failures are
// non-retryable: the executor marks the delivery terminally failed.
//
// The validation policy is owned by the embedding application; the executor
// only consumes the verdict. A nil validator allows every URL.
type URLValidator interface {
	Validate(ctx context.Context, url string) error
}

// URLValidatorFunc adapts a function to the URLValidator interface.
type URLValidatorFunc func(ctx context.Context, url string) error

// Validate calls f.
func (f URLValidatorFunc) Validate(ctx context.Context, url string) error {
	return f(ctx, url)
}
