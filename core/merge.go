package core

import (
	"context"
	"sync"

	"github.com/PaulFidika/subkit/entitlements"
)

type mergedSource []UpdateSource

// MergeUpdates fans several update sources into one. A subscription fails if
// any source fails to subscribe, and the merged stream closes as soon as any
// input closes so the Listener re-subscribes all of them together.
func MergeUpdates(srcs ...UpdateSource) UpdateSource {
	if len(srcs) == 1 {
		return srcs[0]
	}
	return mergedSource(srcs)
}

func (m mergedSource) Updates(ctx context.Context) (<-chan entitlements.TransactionRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	ins := make([]<-chan entitlements.TransactionRecord, 0, len(m))
	for _, src := range m {
		ch, err := src.Updates(ctx)
		if err != nil {
			cancel()
			return nil, err
		}
		ins = append(ins, ch)
	}

	out := make(chan entitlements.TransactionRecord)
	var wg sync.WaitGroup
	for _, in := range ins {
		wg.Add(1)
		go func(in <-chan entitlements.TransactionRecord) {
			defer wg.Done()
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case rec, ok := <-in:
					if !ok {
						return
					}
					select {
					case out <- rec:
					case <-ctx.Done():
						return
					}
				}
			}
		}(in)
	}
	go func() {
		defer cancel()
		wg.Wait()
		close(out)
	}()
	return out, nil
}
