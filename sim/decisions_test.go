package sim

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleet-sim/fleet-sim/sim/trace"
)

func TestDecisionLog_DrainResetsAndStaysUsable(t *testing.T) {
	var log decisionLog
	l := newLanes(8)

	for round := 0; round < 2; round++ {
		// GIVEN lanes appending to the log at once
		err := l.each(200, func(i int) error {
			id := fmt.Sprintf("U-%03d", i)
			log.promote(trace.PromotionRecord{Day: round, UnitID: id, Tier: TierAirworthy})
			log.skip(trace.SkipRecord{Day: round, UnitID: id})
			return nil
		})
		require.NoError(t, err)

		// WHEN the tick is drained
		got := log.drain()

		// THEN every record comes out once, in unit order
		require.Len(t, got.promotions, 200, "round %d", round)
		require.Len(t, got.skips, 200, "round %d", round)
		assert.Equal(t, "U-000", got.promotions[0].UnitID)
		assert.Equal(t, "U-199", got.skips[199].UnitID)

		// THEN the log is empty for the next tick
		assert.Empty(t, log.drain().promotions)
	}
}
