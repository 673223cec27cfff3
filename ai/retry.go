package ai

import (
	"context"
	"time"

	"github.com/apex/log"
)

// OutcomeKind tags the result of one provider attempt.
type OutcomeKind int

const (
	// KindSuccess carries the completion text.
	KindSuccess OutcomeKind = iota
	// KindRetryAfter means the provider rate limited the request and
	// the attempt may be repeated after waiting.
	KindRetryAfter
	// KindFatal means retrying cannot help.
	KindFatal
)

// Outcome is the tagged result of one provider attempt.
type Outcome struct {
	Kind    OutcomeKind
	Content string

	// Wait is the server-suggested delay for KindRetryAfter, zero when
	// the server gave none.
	Wait time.Duration
	Err  error
}

func Success(content string) Outcome { return Outcome{Kind: KindSuccess, Content: content} }

func RetryAfter(wait time.Duration, err error) Outcome {
	return Outcome{Kind: KindRetryAfter, Wait: wait, Err: err}
}

func Fatal(err error) Outcome { return Outcome{Kind: KindFatal, Err: err} }

// RetryPolicy bounds how rate-limited requests are repeated. Waits
// double from InitialWait up to MaxWait; a server Retry-After hint
// overrides the schedule but is still capped at MaxWait.
type RetryPolicy struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
}

// Do runs attempt until it succeeds, fails fatally, exhausts the retry
// budget or the context ends.
func (p RetryPolicy) Do(ctx context.Context, attempt func(context.Context) Outcome) (string, error) {
	wait := p.InitialWait
	var out Outcome
	for try := 0; ; try++ {
		out = attempt(ctx)
		switch out.Kind {
		case KindSuccess:
			return out.Content, nil
		case KindFatal:
			return "", out.Err
		}

		if try >= p.MaxRetries {
			return "", out.Err
		}

		sleep := wait
		if out.Wait > 0 {
			sleep = out.Wait
		}
		if sleep > p.MaxWait {
			sleep = p.MaxWait
		}
		log.Warnf("rate limited, retrying in %s (attempt %d/%d)", sleep, try+1, p.MaxRetries)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
		wait *= 2
	}
}
