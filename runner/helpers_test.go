package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/ethereum-optimism/infra/op-cuke/types"
)

var unitSeq atomic.Int64

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

// funcUnit builds a unit that runs fn without touching any engine.
func funcUnit(mode types.ExecutionMode, fn func(ctx context.Context, out io.Writer) (int, error)) *Unit {
	return &Unit{
		Mode:   mode,
		Paths:  UnitPaths{Discriminator: fmt.Sprintf("unit-%d", unitSeq.Add(1))},
		log:    testLogger(),
		tracer: otel.Tracer("test"),
		run:    fn,
	}
}

func codeUnit(code int) *Unit {
	return funcUnit(types.ApiFeatureParallel, func(context.Context, io.Writer) (int, error) {
		return code, nil
	})
}

// blockingUnit runs until release is closed or its context is cancelled.
func blockingUnit(started chan<- struct{}, release <-chan struct{}) *Unit {
	return funcUnit(types.ApiFeatureParallel, func(ctx context.Context, _ io.Writer) (int, error) {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-release:
			return 0, nil
		case <-ctx.Done():
			return 1, ctx.Err()
		}
	})
}

func writeFeature(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting")
	}
}

const smokeFeature = `Feature: Smoke

  @smoke
  Scenario: ping
    Given path 'ping'

  @regression
  Scenario: pong
    Given path 'pong'
`

const regressionOnlyFeature = `Feature: Regression

  @regression
  Scenario: slow
    Given path 'slow'
`
