package mention

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"deadfuncs/internal/names"
	"deadfuncs/internal/source"
)

// ErrWorkerFailed reports a collection task that did not complete.
var ErrWorkerFailed = errors.New("mention: worker failed")

// Options configures CollectAll.
type Options struct {
	// Jobs bounds the number of units processed at once.
	// Zero means runtime.GOMAXPROCS(0).
	Jobs   int
	Logger zerolog.Logger
}

type unitResult struct {
	unit string
	res  Result
}

// CollectAll runs Collect over every unit with at most opts.Jobs tasks in
// flight. Tasks hand their private results to a single merger over a
// channel. Any task failure cancels the remaining work and fails the call.
func CollectAll(ctx context.Context, units []*source.TranslationUnit, funcs names.Set, opts Options) (Result, error) {
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	results := make(chan unitResult)
	merged := make(Result)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			for name, site := range r.res {
				if _, ok := merged[name]; !ok {
					opts.Logger.Debug().
						Str("name", name).
						Str("in", site.In).
						Str("file", site.File).
						Int("line", site.Line).
						Msgf("%s is mentioned in %s at %s:%d", name, site.In, site.File, site.Line)
				}
			}
			merged.Merge(r.res)
		}
	}()

	for i, u := range units {
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("%w: unit %d: %v", ErrWorkerFailed, i, p)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}

			r := unitResult{unit: u.Path, res: Collect(u, funcs)}
			select {
			case results <- r:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	err := g.Wait()
	close(results)
	<-done
	if err != nil {
		return nil, err
	}

	opts.Logger.Info().
		Int("units", len(units)).
		Int("used", len(merged)).
		Msg("Collected source mentions")
	return merged, nil
}
