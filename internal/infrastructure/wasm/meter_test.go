package wasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeterChargeDecrements(t *testing.T) {
	m := NewMeter(100)
	m.Charge(30)
	assert.Equal(t, uint64(70), m.Remaining())
}

func TestMeterChargeExhaustedPanics(t *testing.T) {
	m := NewMeter(10)
	assert.PanicsWithValue(t, ErrComputationExhausted{}, func() {
		m.Charge(20)
	})
}

func TestMeterRemainingClampsAtZero(t *testing.T) {
	m := NewMeter(0)
	assert.Equal(t, uint64(0), m.Remaining())
}

func TestMeterFromContextRoundTrip(t *testing.T) {
	m := NewMeter(5)
	ctx := WithMeter(context.Background(), m)
	assert.Same(t, m, meterFromContext(ctx))
}

func TestMeterFromContextMissing(t *testing.T) {
	assert.Nil(t, meterFromContext(context.Background()))
}
