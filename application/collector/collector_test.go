package collector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedStub serves pages out of a fixed universe, recording call counts.
func pagedStub(universe int) (PageFunc[int], *int) {
	calls := new(int)
	return func(_ context.Context, offset, limit int) (Page[int], error) {
		*calls++
		var items []int
		for i := offset; i < offset+limit && i < universe; i++ {
			items = append(items, i)
		}
		return Page[int]{Items: items, Total: universe}, nil
	}, calls
}

func TestRun_StopsAtReportedTotalWithoutExtraProbe(t *testing.T) {
	fetch, calls := pagedStub(150)

	res := Run(context.Background(), Config{TargetCount: 500, BatchSize: 50}, fetch, nil)

	assert.Len(t, res.Records, 150, "exhausted upstream yields what exists, not the target")
	assert.Equal(t, OutcomeExhausted, res.Outcome)
	assert.Equal(t, 3, *calls, "no fourth page fetch once the total is known")
	assert.NoError(t, res.Err)
}

func TestRun_EmptyPageTerminates(t *testing.T) {
	calls := 0
	fetch := func(_ context.Context, offset, limit int) (Page[int], error) {
		calls++
		if offset >= 100 {
			return Page[int]{}, nil // upstream exhausted, no total reported
		}
		items := make([]int, limit)
		return Page[int]{Items: items}, nil
	}

	res := Run(context.Background(), Config{TargetCount: 500, BatchSize: 50}, fetch, nil)

	assert.Len(t, res.Records, 100)
	assert.Equal(t, OutcomeExhausted, res.Outcome)
	assert.Equal(t, 3, calls)
}

func TestRun_TruncatesToExactTarget(t *testing.T) {
	fetch, _ := pagedStub(1000)

	res := Run(context.Background(), Config{TargetCount: 130, BatchSize: 50}, fetch, nil)

	assert.Len(t, res.Records, 130)
	assert.Equal(t, OutcomeComplete, res.Outcome)
	assert.Equal(t, 129, res.Records[129], "records arrive in offset order")
}

func TestRun_PageFailureKeepsPartialResults(t *testing.T) {
	fetch := func(_ context.Context, offset, limit int) (Page[int], error) {
		if offset >= 50 {
			return Page[int]{}, errors.New("success=false from upstream")
		}
		return Page[int]{Items: make([]int, limit)}, nil
	}

	res := Run(context.Background(), Config{TargetCount: 200, BatchSize: 50}, fetch, nil)

	assert.Len(t, res.Records, 50)
	assert.Equal(t, OutcomePartial, res.Outcome)
	assert.Error(t, res.Err)
}

func TestRun_CancellationBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fetch := func(_ context.Context, offset, limit int) (Page[int], error) {
		cancel() // cancel while the first page is in flight
		return Page[int]{Items: make([]int, limit)}, nil
	}

	res := Run(ctx, Config{TargetCount: 200, BatchSize: 50}, fetch, nil)

	assert.Len(t, res.Records, 50, "the in-flight page is kept")
	assert.Equal(t, OutcomePartial, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestRun_EnrichmentDecoratesEachRecord(t *testing.T) {
	fetch, _ := pagedStub(20)
	enriched := 0
	enrich := func(_ context.Context, rec int) (int, error) {
		enriched++
		return rec + 1000, nil
	}

	res := Run(context.Background(), Config{TargetCount: 20, BatchSize: 10, Enrich: true}, fetch, enrich)

	assert.Equal(t, 20, enriched)
	assert.Equal(t, 1000, res.Records[0])
}

func TestRun_EnrichmentFailureKeepsRawRecord(t *testing.T) {
	fetch, _ := pagedStub(10)
	enrich := func(_ context.Context, rec int) (int, error) {
		if rec == 3 {
			return 0, fmt.Errorf("detail fetch failed for %d", rec)
		}
		return rec + 1000, nil
	}

	res := Run(context.Background(), Config{TargetCount: 10, BatchSize: 10, Enrich: true}, fetch, enrich)

	require.Len(t, res.Records, 10)
	assert.Equal(t, OutcomeComplete, res.Outcome)
	assert.Equal(t, 3, res.Records[3], "failed enrichment falls back to the raw record")
	assert.Equal(t, 1004, res.Records[4])
}

func TestRun_AssignsRunID(t *testing.T) {
	fetch, _ := pagedStub(10)
	res := Run(context.Background(), Config{TargetCount: 10, BatchSize: 10}, fetch, nil)
	assert.NotEmpty(t, res.RunID)
}
