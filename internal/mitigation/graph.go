package mitigation

import (
	"math"
	"sort"

	"github.com/skillmesh/trust-engine/pkg/models"
)

// Mutual-Pair / Sybil Cluster Detection
//
// Builds the directed rating graph client → agent over the active corpus
// and finds mutual pairs: unordered {x, y} where x rated y AND y rated x.
// Clusters are connected components of the undirected mutual-pair graph,
// merged with weighted union-find (path compression, union by rank):
//   - Find: O(α(n)) amortized
//   - Union: O(α(n)) amortized
//   - Space: O(n) over distinct identifiers
//
// A ring of colluding identities rating each other lights up as one
// component. Only reciprocated (mutual-pair) ratings are discounted; any
// other rating of a clustered agent carries the sybil_cluster tag at full
// weight.
//
// The detector treats client addresses and agent ids as one namespace.
// That assumption only holds when publishers use their publisher address
// as their skill handle, so it is a config switch rather than an
// inherited default.

// unionFind is a weighted union-find over interned string handles
type unionFind struct {
	parent map[string]string
	rank   map[string]int
	size   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[string]string),
		rank:   make(map[string]int),
		size:   make(map[string]int),
	}
}

// find returns the root representative, compressing the path on the way
func (uf *unionFind) find(id string) string {
	if _, exists := uf.parent[id]; !exists {
		uf.parent[id] = id
		uf.rank[id] = 0
		uf.size[id] = 1
	}
	if uf.parent[id] != id {
		uf.parent[id] = uf.find(uf.parent[id])
	}
	return uf.parent[id]
}

// union merges two components, attaching the shallower tree under the deeper
func (uf *unionFind) union(a, b string) bool {
	rootA, rootB := uf.find(a), uf.find(b)
	if rootA == rootB {
		return false
	}
	switch {
	case uf.rank[rootA] < uf.rank[rootB]:
		uf.parent[rootA] = rootB
		uf.size[rootB] += uf.size[rootA]
	case uf.rank[rootA] > uf.rank[rootB]:
		uf.parent[rootB] = rootA
		uf.size[rootA] += uf.size[rootB]
	default:
		uf.parent[rootB] = rootA
		uf.size[rootA] += uf.size[rootB]
		uf.rank[rootA]++
	}
	return true
}

// GraphReport is the full graph-analysis output: per-entry verdicts plus
// the cluster decomposition for the cluster report endpoint.
type GraphReport struct {
	Results  ResultSet
	Clusters []models.ClusterSummary
}

// AnalyzeGraph runs mutual-pair and sybil-cluster detection over the
// active corpus. The graph is rebuilt from scratch on every call; the
// corpus is the single source of truth and the rebuild is cheap.
func AnalyzeGraph(corpus []models.Feedback, cfg GraphConfig) GraphReport {
	report := GraphReport{Results: make(ResultSet)}
	if !cfg.Enabled || !cfg.SharedNamespace {
		return report
	}

	discount := cfg.DiscountFactor
	if discount <= 0 || discount > 1 {
		discount = 0.1
	}

	// Directed adjacency: rater → set of rated ids
	rated := make(map[string]map[string]bool)
	for _, fb := range corpus {
		if fb.Revoked {
			continue
		}
		if rated[fb.ClientAddress] == nil {
			rated[fb.ClientAddress] = make(map[string]bool)
		}
		rated[fb.ClientAddress][fb.AgentID] = true
	}

	// Mutual pairs: both directions present. Union the endpoints.
	uf := newUnionFind()
	inPair := make(map[string]bool) // identifiers participating in any mutual pair
	for rater, targets := range rated {
		for target := range targets {
			if rater == target {
				continue
			}
			if rated[target][rater] {
				uf.union(rater, target)
				inPair[rater] = true
				inPair[target] = true
			}
		}
	}

	if len(inPair) == 0 {
		return report
	}

	// Cluster membership per identifier
	clusterOf := make(map[string]string, len(inPair))
	memberSets := make(map[string][]string)
	for id := range inPair {
		root := uf.find(id)
		clusterOf[id] = root
		memberSets[root] = append(memberSets[root], id)
	}

	// Tag entries. mutual_pair binds on the (client, agent) edge itself
	// and carries the discount. sybil_cluster marks any entry whose agent
	// sits in a component of size >= 2; for an honest outsider rating a
	// clustered agent it is annotation only — discounting a victim's
	// report would hand the ring a second win.
	clusterValueSum := make(map[string]float64)
	clusterEntryCount := make(map[string]int)
	for _, fb := range corpus {
		if fb.Revoked {
			continue
		}
		var tags []models.MitigationTag
		weight := 1.0
		if fb.ClientAddress != fb.AgentID &&
			rated[fb.ClientAddress][fb.AgentID] && rated[fb.AgentID][fb.ClientAddress] {
			tags = append(tags, models.TagMutualPair)
			weight = discount
		}
		if root, ok := clusterOf[fb.AgentID]; ok && uf.size[root] >= 2 {
			tags = append(tags, models.TagSybilCluster)
			clusterValueSum[root] += float64(fb.Value)
			clusterEntryCount[root]++
		}
		if len(tags) > 0 {
			report.Results[fb.ID] = Result{Weight: weight, Tags: tags}
		}
	}

	// Cluster summaries, largest first, members sorted for stable output
	for root, members := range memberSets {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		mean := 0.0
		if clusterEntryCount[root] > 0 {
			mean = clusterValueSum[root] / float64(clusterEntryCount[root])
			mean = math.Round(mean*100) / 100
		}
		report.Clusters = append(report.Clusters, models.ClusterSummary{
			Members:       members,
			Size:          len(members),
			FeedbackCount: clusterEntryCount[root],
			MeanValue:     mean,
		})
	}
	sort.Slice(report.Clusters, func(i, j int) bool {
		if report.Clusters[i].Size != report.Clusters[j].Size {
			return report.Clusters[i].Size > report.Clusters[j].Size
		}
		return report.Clusters[i].Members[0] < report.Clusters[j].Members[0]
	})

	return report
}
