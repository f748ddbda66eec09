package taf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFloatToPCM16ClampsAndScales(t *testing.T) {
	require.EqualValues(t, 32767, FloatToPCM16(1.5))
	require.EqualValues(t, -32767, FloatToPCM16(-1.5))
	require.EqualValues(t, 0, FloatToPCM16(0))
	require.EqualValues(t, 16383, FloatToPCM16(0.5))
}

func TestParameterEvaluateLinearCurve(t *testing.T) {
	p := Parameter{Min: 0, Max: 100, Curve: 1}
	require.InDelta(t, 0, p.Evaluate(0), 1e-9)
	require.InDelta(t, 50, p.Evaluate(0.5), 1e-9)
	require.InDelta(t, 100, p.Evaluate(1), 1e-9)
}

func TestParameterEvaluateNonLinearCurve(t *testing.T) {
	p := Parameter{Min: 0, Max: 1, Curve: 2}
	require.InDelta(t, math.Pow(0.5, 2), p.Evaluate(0.5), 1e-9)
}

func TestParameterEvaluateWithNonZeroMin(t *testing.T) {
	p := Parameter{Min: -1, Max: 1, Curve: 1}
	require.InDelta(t, -1, p.Evaluate(0), 1e-9)
	require.InDelta(t, 1, p.Evaluate(1), 1e-9)
	require.InDelta(t, 0, p.Evaluate(0.5), 1e-9)
}
