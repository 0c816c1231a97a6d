// Package cluster implements the Header Clusterizer: it builds a
// similarity graph over (file, column) header nodes, connects them with
// union-find over a thresholded edge set, and selects a canonical name
// per resulting cluster by weighted centrality.
package cluster

import (
	"sort"

	"github.com/gurre/csvfusion/internal/textsim"
	"github.com/gurre/csvfusion/model"
	"github.com/gurre/csvfusion/synonyms"
)

const edgeThreshold = 0.55
const confidenceFloor = 0.75
const typeDisagreementThreshold = 0.15

// Node is one (file, column) pair with its raw and normalized header.
type Node struct {
	FilePath    string
	ColumnIndex int
	RawName     string
	Normalized  string
	DominantType model.ColumnType
}

// BuildNodes extracts one node per distinct (file_path, column_index)
// pair across all blocks that carry a confirmed header name, merging type
// histograms across blocks of the same file and column.
func BuildNodes(m model.Mapping) []Node {
	type key struct {
		file string
		idx  int
	}
	hist := map[key]model.TypeHistogram{}
	rawName := map[key]string{}
	order := []key{}

	for _, b := range m.Blocks {
		for _, cp := range b.ColumnProfiles {
			if cp.Name == nil {
				continue
			}
			k := key{file: b.FilePath, idx: cp.Index}
			if _, seen := rawName[k]; !seen {
				rawName[k] = *cp.Name
				order = append(order, k)
			}
			h := hist[k]
			h.Numeric += cp.TypeHist.Numeric
			h.Date += cp.TypeHist.Date
			h.Bool += cp.TypeHist.Bool
			h.Text += cp.TypeHist.Text
			h.Null += cp.TypeHist.Null
			hist[k] = h
		}
	}

	nodes := make([]Node, 0, len(order))
	for _, k := range order {
		name := rawName[k]
		nodes = append(nodes, Node{
			FilePath:     k.file,
			ColumnIndex:  k.idx,
			RawName:      name,
			Normalized:   textsim.Fold(name),
			DominantType: hist[k].DominantType(),
		})
	}
	return nodes
}

func typeCompatible(a, b model.ColumnType) bool {
	if a == b {
		return true
	}
	return a == model.TypeText && b == model.TypeText
}

type edge struct {
	a, b   int
	weight float64
}

// unionFind is a standard path-compressed, union-by-rank structure.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}

// buildEdges computes pairwise scores within n-gram-blocked shortlists:
// nodes are grouped by their first trigram so only plausibly-similar pairs
// are scored, avoiding the full n^2 comparison the design notes warn
// against.
func buildEdges(nodes []Node) []edge {
	blocks := map[string][]int{}
	for i, n := range nodes {
		key := blockKey(n.Normalized)
		blocks[key] = append(blocks[key], i)
	}

	seen := map[[2]int]bool{}
	var edges []edge
	ctx := &textsim.Context{}
	for _, idxs := range blocks {
		for i := 0; i < len(idxs); i++ {
			for j := i + 1; j < len(idxs); j++ {
				a, b := idxs[i], idxs[j]
				pairKey := [2]int{a, b}
				if seen[pairKey] {
					continue
				}
				seen[pairKey] = true
				if !typeCompatible(nodes[a].DominantType, nodes[b].DominantType) {
					continue
				}
				score := ctx.Score(nodes[a].Normalized, nodes[b].Normalized)
				if score >= edgeThreshold {
					edges = append(edges, edge{a: a, b: b, weight: score})
				}
			}
		}
	}
	return edges
}

func blockKey(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return ""
	}
	if len(r) < 3 {
		return string(r[0])
	}
	return string(r[:3])
}

// Build runs the clusterizer over a Mapping, producing a fresh
// HeaderClusterDocument. If previous is non-nil, cluster versions and the
// artifact version are carried forward where membership and canonical
// name are unchanged (stability property 6). syn is consulted to prefer
// a dictionary spelling over the centrality-selected member's raw name;
// pass nil to skip synonym resolution.
func Build(m model.Mapping, previous *model.HeaderClusterDocument, syn synonyms.Canonicalizer) model.HeaderClusterDocument {
	nodes := BuildNodes(m)
	edges := buildEdges(nodes)

	uf := newUnionFind(len(nodes))
	for _, e := range edges {
		uf.union(e.a, e.b)
	}

	componentEdges := map[int][]edge{}
	for _, e := range edges {
		root := uf.find(e.a)
		componentEdges[root] = append(componentEdges[root], e)
	}

	componentMembers := map[int][]int{}
	for i := range nodes {
		root := uf.find(i)
		componentMembers[root] = append(componentMembers[root], i)
	}

	roots := make([]int, 0, len(componentMembers))
	for r := range componentMembers {
		roots = append(roots, r)
	}
	sort.Ints(roots)

	clusters := make([]model.HeaderCluster, 0, len(roots))
	for _, root := range roots {
		memberIdx := componentMembers[root]
		es := componentEdges[root]

		centrality := make(map[int]float64, len(memberIdx))
		for _, e := range es {
			centrality[e.a] += e.weight
			centrality[e.b] += e.weight
		}

		canonicalIdx := memberIdx[0]
		for _, idx := range memberIdx[1:] {
			if centrality[idx] > centrality[canonicalIdx] ||
				(centrality[idx] == centrality[canonicalIdx] && nodes[idx].RawName < nodes[canonicalIdx].RawName) {
				canonicalIdx = idx
			}
		}

		canonicalName := nodes[canonicalIdx].RawName
		if syn != nil {
			for _, idx := range memberIdx {
				if resolved, ok := syn.Canonicalize(nodes[idx].RawName); ok {
					canonicalName = resolved
					break
				}
			}
		}

		var confidence float64
		if len(es) > 0 {
			var sum float64
			for _, e := range es {
				sum += e.weight
			}
			confidence = sum / float64(len(es))
		} else {
			confidence = 1.0 // singleton cluster, no edges to disagree
		}

		majority := majorityType(nodes, memberIdx)
		mismatches := 0
		for _, idx := range memberIdx {
			if nodes[idx].DominantType != majority {
				mismatches++
			}
		}
		typeDisagreement := float64(mismatches) / float64(len(memberIdx))

		needsReview := confidence < confidenceFloor || typeDisagreement >= typeDisagreementThreshold
		var reasons []string
		if confidence < confidenceFloor {
			reasons = append(reasons, "low_confidence")
		}
		if typeDisagreement >= typeDisagreementThreshold {
			reasons = append(reasons, "type_disagreement")
		}

		members := make([]model.ClusterMember, 0, len(memberIdx))
		for _, idx := range memberIdx {
			members = append(members, model.ClusterMember{
				FilePath:    nodes[idx].FilePath,
				ColumnIndex: nodes[idx].ColumnIndex,
				RawName:     nodes[idx].RawName,
			})
		}
		sort.Slice(members, func(i, j int) bool {
			if members[i].FilePath != members[j].FilePath {
				return members[i].FilePath < members[j].FilePath
			}
			return members[i].ColumnIndex < members[j].ColumnIndex
		})

		clusters = append(clusters, model.HeaderCluster{
			CanonicalName: canonicalName,
			Members:       members,
			Confidence:    confidence,
			NeedsReview:   needsReview,
			Version:       1,
			ReasonCodes:   reasons,
		})
	}

	return reconcileVersions(clusters, previous)
}

func majorityType(nodes []Node, idxs []int) model.ColumnType {
	counts := map[model.ColumnType]int{}
	for _, idx := range idxs {
		counts[nodes[idx].DominantType]++
	}
	var best model.ColumnType
	bestN := -1
	for t, n := range counts {
		if n > bestN {
			best, bestN = t, n
		}
	}
	return best
}

// reconcileVersions assigns cluster_id and carries forward version
// numbers from the previous document when a cluster's membership and
// canonical_name are unchanged, bumping artifact_version only if
// something did change.
func reconcileVersions(clusters []model.HeaderCluster, previous *model.HeaderClusterDocument) model.HeaderClusterDocument {
	changed := previous == nil
	prevByKey := map[string]model.HeaderCluster{}
	if previous != nil {
		for _, c := range previous.Clusters {
			prevByKey[membershipKey(c.Members)] = c
		}
	}

	for i := range clusters {
		key := membershipKey(clusters[i].Members)
		if prev, ok := prevByKey[key]; ok {
			clusters[i].ClusterID = prev.ClusterID
			if prev.CanonicalName == clusters[i].CanonicalName {
				clusters[i].Version = prev.Version
			} else {
				clusters[i].Version = prev.Version + 1
				changed = true
			}
		} else {
			clusters[i].ClusterID = newClusterID(i)
			changed = true
		}
	}

	version := 1
	if previous != nil {
		version = previous.ArtifactVersion
		if changed || len(clusters) != len(previous.Clusters) {
			version++
		}
	}

	return model.HeaderClusterDocument{ArtifactVersion: version, Clusters: clusters}
}

func membershipKey(members []model.ClusterMember) string {
	s := ""
	for _, m := range members {
		s += m.FilePath + "#" + string(rune(m.ColumnIndex)) + ";"
	}
	return s
}

func newClusterID(seed int) string {
	// deterministic within a single Build call: the ID is "cl_" plus the
	// hex of seed+1. reconcileVersions carries a previous ID forward when
	// membership is unchanged; the store persists IDs as they are.
	const alphabet = "0123456789abcdef"
	b := make([]byte, 8)
	n := seed + 1
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = alphabet[n%16]
		n /= 16
	}
	return "cl_" + string(b)
}
