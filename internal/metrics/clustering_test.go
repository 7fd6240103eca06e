package metrics

import (
	"math"
	"testing"
)

func TestAdjustedRandIndex_PerfectAgreement(t *testing.T) {
	detected := []int{0, 0, 1, 1, 2, 2}
	reference := []int{0, 0, 1, 1, 2, 2}

	ari := AdjustedRandIndex(detected, reference)

	if math.Abs(ari-1.0) > 0.01 {
		t.Errorf("Expected ARI=1.0 for perfect agreement. Got: %f", ari)
	}
}

func TestAdjustedRandIndex_LabelPermutation(t *testing.T) {
	// Same partition under renamed labels is still perfect agreement
	detected := []int{5, 5, 9, 9, 1, 1}
	reference := []int{0, 0, 1, 1, 2, 2}

	ari := AdjustedRandIndex(detected, reference)

	if math.Abs(ari-1.0) > 0.01 {
		t.Errorf("Expected ARI=1.0 for relabelled identical partition. Got: %f", ari)
	}
}

func TestAdjustedRandIndex_RandomPartition(t *testing.T) {
	// Two very different partitions should yield ARI near 0
	detected := []int{0, 0, 0, 1, 1, 1}
	reference := []int{0, 1, 0, 1, 0, 1}

	ari := AdjustedRandIndex(detected, reference)

	if ari > 0.5 {
		t.Errorf("Expected ARI near 0 for dissimilar partitions. Got: %f", ari)
	}
}

func TestVariationOfInformation_Identical(t *testing.T) {
	detected := []int{0, 0, 1, 1, 2, 2}
	reference := []int{0, 0, 1, 1, 2, 2}

	vi := VariationOfInformation(detected, reference)

	if vi > 0.01 {
		t.Errorf("Expected VI=0.0 for identical partitions. Got: %f", vi)
	}
}

func TestVariationOfInformation_Different(t *testing.T) {
	detected := []int{0, 0, 0, 1, 1, 1}
	reference := []int{0, 1, 0, 1, 0, 1}

	vi := VariationOfInformation(detected, reference)

	if vi < 0.1 {
		t.Errorf("Expected VI > 0 for different partitions. Got: %f", vi)
	}
}
