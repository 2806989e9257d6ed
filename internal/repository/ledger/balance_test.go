package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSettlementTransferIDsDeterministic(t *testing.T) {
	tradeID := uuid.New()

	a1, a2 := settlementTransferIDs(tradeID)
	b1, b2 := settlementTransferIDs(tradeID)

	// retries must derive the exact same pair
	assert.Equal(t, a1, b1)
	assert.Equal(t, a2, b2)
	assert.NotEqual(t, a1, a2, "the two legs need distinct ids")
}

func TestSettlementTransferIDsDistinctPerTrade(t *testing.T) {
	x1, x2 := settlementTransferIDs(uuid.New())
	y1, y2 := settlementTransferIDs(uuid.New())
	assert.NotEqual(t, x1, y1)
	assert.NotEqual(t, x2, y2)
}
