package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveOp("read")
		c.ObserveError("read")
		c.Timer("read")()
		c.RecordUploadOutcome(OutcomeUploaded)
	})
}

func TestCollectorRecordsWithoutPanicking(t *testing.T) {
	c := New()
	assert.NotPanics(t, func() {
		c.ObserveOp("read")
		c.ObserveError("read")
		done := c.Timer("write")
		done()
		c.RecordUploadOutcome(OutcomeSkipped)
	})
}
