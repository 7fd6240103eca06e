package metrics

import "math"

// Partition agreement metrics for sybil-cluster evaluation.
//
// The graph detector emits a partition of identifiers into collusion
// clusters. When a labelled corpus exists (seeded attack simulations,
// moderator-confirmed rings), these metrics score the detector against it
// and expose cluster collapse or fragmentation that spot checks miss.

// AdjustedRandIndex computes the ARI between a detected partition and a
// reference partition over the same identifiers.
//
// ARI = (RI - Expected_RI) / (Max_RI - Expected_RI)
//   a = pairs clustered together in both partitions
//   b = pairs separated in both partitions
//
// Ranges -1 (worse than random) to 1 (perfect agreement); 0 = random.
func AdjustedRandIndex(detected, reference []int) float64 {
	n := len(detected)
	if n != len(reference) || n < 2 {
		return 0.0
	}

	nij, rowSums, colSums := contingency(detected, reference)

	sumNijC2 := 0.0
	for i := range nij {
		for j := range nij[i] {
			sumNijC2 += comb2(nij[i][j])
		}
	}
	sumAiC2 := 0.0
	for _, a := range rowSums {
		sumAiC2 += comb2(a)
	}
	sumBjC2 := 0.0
	for _, b := range colSums {
		sumBjC2 += comb2(b)
	}

	nC2 := comb2(n)
	if nC2 == 0 {
		return 0.0
	}

	expectedIndex := (sumAiC2 * sumBjC2) / nC2
	maxIndex := 0.5 * (sumAiC2 + sumBjC2)

	denominator := maxIndex - expectedIndex
	if math.Abs(denominator) < 1e-12 {
		return 1.0 // both partitions all-singletons: trivially identical
	}
	return (sumNijC2 - expectedIndex) / denominator
}

// VariationOfInformation computes the VI distance between two partitions.
//
// VI(C, C') = H(C|C') + H(C'|C)
//
// Lower is better; 0 = identical partitions.
func VariationOfInformation(detected, reference []int) float64 {
	n := len(detected)
	if n != len(reference) || n < 2 {
		return 0.0
	}
	nf := float64(n)

	nij, rowSums, colSums := contingency(detected, reference)

	hCgivenCp := 0.0
	hCpgivenC := 0.0
	for i := range nij {
		for j := range nij[i] {
			if nij[i][j] == 0 {
				continue
			}
			pij := float64(nij[i][j]) / nf
			if colSums[j] > 0 {
				hCgivenCp -= pij * math.Log2(float64(nij[i][j])/float64(colSums[j]))
			}
			if rowSums[i] > 0 {
				hCpgivenC -= pij * math.Log2(float64(nij[i][j])/float64(rowSums[i]))
			}
		}
	}
	return hCgivenCp + hCpgivenC
}

// contingency builds the n_ij matrix and its marginals
func contingency(detected, reference []int) (nij [][]int, rowSums, colSums []int) {
	detMap := labelIndex(detected)
	refMap := labelIndex(reference)

	nij = make([][]int, len(detMap))
	for i := range nij {
		nij[i] = make([]int, len(refMap))
	}
	for k := range detected {
		nij[detMap[detected[k]]][refMap[reference[k]]]++
	}

	rowSums = make([]int, len(detMap))
	colSums = make([]int, len(refMap))
	for i := range nij {
		for j := range nij[i] {
			rowSums[i] += nij[i][j]
			colSums[j] += nij[i][j]
		}
	}
	return nij, rowSums, colSums
}

// labelIndex maps each distinct label to a dense index
func labelIndex(labels []int) map[int]int {
	idx := make(map[int]int)
	for _, l := range labels {
		if _, ok := idx[l]; !ok {
			idx[l] = len(idx)
		}
	}
	return idx
}

// comb2 computes C(n, 2) = n*(n-1)/2
func comb2(n int) float64 {
	if n < 2 {
		return 0
	}
	return float64(n) * float64(n-1) / 2.0
}
