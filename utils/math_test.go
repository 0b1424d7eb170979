package utils

import (
	"testing"

	"go.viam.com/test"
)

func TestMixSeedIsDeterministic(t *testing.T) {
	test.That(t, MixSeed(3, 1, 2), test.ShouldEqual, MixSeed(3, 1, 2))
	test.That(t, MixSeed(3, 1, 2), test.ShouldNotEqual, MixSeed(3, 2, 1))
	test.That(t, MixSeed(3, 1), test.ShouldBeGreaterThanOrEqualTo, int64(0))

	a, b := NewRand(MixSeed(9, 4)), NewRand(MixSeed(9, 4))
	for i := 0; i < 5; i++ {
		test.That(t, a.Float64(), test.ShouldEqual, b.Float64())
	}
}

func TestGetenvInt(t *testing.T) {
	t.Setenv("TAMP_TEST_INT", "12")
	test.That(t, GetenvInt("TAMP_TEST_INT", 3), test.ShouldEqual, 12)
	t.Setenv("TAMP_TEST_INT", "twelve")
	test.That(t, GetenvInt("TAMP_TEST_INT", 3), test.ShouldEqual, 3)
	test.That(t, GetenvInt("TAMP_TEST_UNSET", 4), test.ShouldEqual, 4)
}
