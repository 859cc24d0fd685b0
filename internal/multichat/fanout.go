package multichat

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

// ErrAllFailed is returned by Settle when no model produced a reply.
var ErrAllFailed = errors.New("all models failed")

// Task produces the reply of one model.
type Task func(ctx context.Context, model string) (*domain.Message, error)

// Outcome is the settled result of one model.
type Outcome struct {
	Model   string
	Message *domain.Message
	Err     error
}

// Settle runs task for every model with at most limit in flight and waits
// for all of them. One model failing never cancels the others. Outcomes
// keep the order of models. The returned error is non-nil only when every
// model failed; it wraps ErrAllFailed and, when every failure was a usage
// limit, the first *domain.UsageLimitError.
func Settle(ctx context.Context, models []string, limit int, task Task) ([]Outcome, error) {
	outcomes := make([]Outcome, len(models))
	if len(models) == 0 {
		return outcomes, nil
	}

	g := new(errgroup.Group)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, model := range models {
		g.Go(func() error {
			msg, err := runTask(ctx, task, model)
			outcomes[i] = Outcome{Model: model, Message: msg, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, settledError(outcomes)
}

func runTask(ctx context.Context, task Task, model string) (msg *domain.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model %s panicked: %v", model, r)
		}
	}()
	return task(ctx, model)
}

func settledError(outcomes []Outcome) error {
	var firstLimit *domain.UsageLimitError
	allLimits := true
	for _, o := range outcomes {
		if o.Err == nil {
			return nil
		}
		var ule *domain.UsageLimitError
		if errors.As(o.Err, &ule) {
			if firstLimit == nil {
				firstLimit = ule
			}
		} else {
			allLimits = false
		}
	}
	if allLimits && firstLimit != nil {
		return fmt.Errorf("%w: %w", ErrAllFailed, firstLimit)
	}
	return fmt.Errorf("%w: %w", ErrAllFailed, outcomes[0].Err)
}

// Dedupe removes repeated and empty model ids keeping first occurrences.
func Dedupe(models []string) []string {
	seen := make(map[string]struct{}, len(models))
	out := make([]string, 0, len(models))
	for _, m := range models {
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
