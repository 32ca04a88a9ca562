package vnode

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/dreamware/atoll/internal/storage"
)

func TestPartition(t *testing.T) {
	v := New("kv", 7, zerolog.Nop())
	assert.Equal(t, storage.PartitionID{Module: "kv", Index: 7}, v.Partition())
}

func TestHandoffExitDelivery(t *testing.T) {
	v := New("kv", 0, zerolog.Nop())

	v.HandoffExit(nil)
	reason := errors.New("peer unreachable")
	v.HandoffExit(reason)

	assert.NoError(t, <-v.Exits())
	assert.Equal(t, reason, <-v.Exits())
}

// TestHandoffExitNeverBlocks overfills the exit buffer; the extra
// notifications must be dropped, not delivered late and not deadlock the
// caller.
func TestHandoffExitNeverBlocks(t *testing.T) {
	v := New("kv", 0, zerolog.Nop())

	for i := 0; i < 10; i++ {
		v.HandoffExit(errors.New("exit"))
	}

	drained := 0
	for {
		select {
		case <-v.Exits():
			drained++
			continue
		default:
		}
		break
	}
	assert.Equal(t, cap(v.exits), drained)
}
