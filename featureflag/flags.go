package featureflag

import "github.com/aukilabs/dyntree/dyntree"

type Flag string

const (
	// Stops the periodic rebalancing of map trees. Leaves stay pending until
	// an explicit balance.
	FlagDisableRebalance Flag = "DISABLE_REBALANCE"

	// Deletes grid cells that become empty after a rebalance.
	FlagReclaimEmptyCells Flag = "RECLAIM_EMPTY_CELLS"

	// Disables the websocket query console.
	FlagDisableConsole Flag = "DISABLE_CONSOLE"
)

// ApplyTreeOptions applies the tree related flags to the options.
func (f FeatureFlag) ApplyTreeOptions(opts *dyntree.Options) {
	f.IfSet(FlagDisableRebalance, func() {
		opts.RebalancePeriod = -1
	})
	f.IfSet(FlagReclaimEmptyCells, func() {
		opts.ReclaimEmptyCells = true
	})
}
