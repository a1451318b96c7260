package featureflag

import (
	"testing"
	"time"

	"github.com/aukilabs/dyntree/dyntree"
	"github.com/stretchr/testify/require"
)

func TestFeatureFlag(t *testing.T) {
	f := New([]string{"feature1", " reclaim_empty_cells ", ""})

	t.Run("normalized", func(t *testing.T) {
		require.Equal(t, []string{"FEATURE1", "RECLAIM_EMPTY_CELLS"}, f.Flags())
		require.True(t, f.IsSet(FlagReclaimEmptyCells))
		require.False(t, f.IsSet(FlagDisableRebalance))
	})

	t.Run("run if enabled", func(t *testing.T) {
		var runFeature1 bool
		f.IfSet("FEATURE1", func() {
			runFeature1 = true
		})
		require.True(t, runFeature1)

		var runFeature2 bool
		f.IfSet("FEATURE2", func() {
			runFeature2 = true
		})
		require.False(t, runFeature2)
	})

	t.Run("run if disabled", func(t *testing.T) {
		var runFeature1 bool
		f.IfNotSet("FEATURE1", func() {
			runFeature1 = true
		})
		require.False(t, runFeature1)

		var runFeature2 bool
		f.IfNotSet("FEATURE2", func() {
			runFeature2 = true
		})
		require.True(t, runFeature2)
	})
}

func TestApplyTreeOptions(t *testing.T) {
	t.Run("no flags", func(t *testing.T) {
		opts := dyntree.Options{RebalancePeriod: time.Second}
		New(nil).ApplyTreeOptions(&opts)
		require.Equal(t, dyntree.Options{RebalancePeriod: time.Second}, opts)
	})

	t.Run("tree flags", func(t *testing.T) {
		opts := dyntree.Options{RebalancePeriod: time.Second}
		New([]string{
			string(FlagDisableRebalance),
			string(FlagReclaimEmptyCells),
		}).ApplyTreeOptions(&opts)

		require.Equal(t, time.Duration(-1), opts.RebalancePeriod)
		require.True(t, opts.ReclaimEmptyCells)
	})
}
