package simbricks

// routes.go answers path questions about an experiment: which hosts can reach each other,
// and through which NICs and networks

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// The general approach is to convert the experiment into the data structures used by
// a graph package that has built-in path discovery algorithms.  Every host, NIC and
// network becomes a graph node, and an edge of weight 1 joins a host to each of its NICs
// and a NIC to its network.  A shortest path between two hosts then runs
// host, nic, network, nic, host for hosts sharing a network.
//
//   The Dijkstra algorithm we call computes a tree of shortest paths from a named node,
// so those trees are cached per source.  A path from dst to src is, by symmetry, the
// reversed path from src to dst.

// ExpGraph is the graph representation of one experiment
type ExpGraph struct {
	g        *simple.WeightedUndirectedGraph
	idByName map[string]int64
	nameByID map[int64]string
	hostIDs  []int64
	cachedSP map[int64]path.Shortest
}

// graph node names carry the object type, since hosts, NICs and networks have separate name spaces
func hostNode(name string) string { return "host:" + name }
func nicNode(name string) string  { return "nic:" + name }
func netNode(name string) string  { return "net:" + name }

func (eg *ExpGraph) nodeFor(name string) int64 {
	id, present := eg.idByName[name]
	if present {
		return id
	}
	id = int64(len(eg.idByName))
	eg.idByName[name] = id
	eg.nameByID[id] = name
	eg.g.AddNode(simple.Node(id))

	return id
}

func (eg *ExpGraph) connect(a, b string) {
	weightedEdge := simple.WeightedEdge{F: simple.Node(eg.nodeFor(a)), T: simple.Node(eg.nodeFor(b)), W: 1.0}
	eg.g.SetWeightedEdge(weightedEdge)
}

// BuildExpGraph builds the connection graph of the experiment as it currently stands
func BuildExpGraph(ef *ExperimentFrame) *ExpGraph {
	eg := &ExpGraph{
		g:        simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		idByName: make(map[string]int64),
		nameByID: make(map[int64]string),
		hostIDs:  []int64{},
		cachedSP: make(map[int64]path.Shortest),
	}

	for _, host := range ef.Hosts {
		eg.hostIDs = append(eg.hostIDs, eg.nodeFor(hostNode(host.Name)))
		for _, nic := range host.NICs {
			eg.connect(hostNode(host.Name), nicNode(nic.Name))
		}
	}
	for _, nic := range ef.NICs {
		if nic.Network != nil {
			eg.connect(nicNode(nic.Name), netNode(nic.Network.Name))
		}
	}
	return eg
}

// getSPTree returns the shortest path tree rooted in from.  If the tree is found in the
// cache it is returned, if not it is computed, saved, and returned.
func (eg *ExpGraph) getSPTree(from int64) path.Shortest {
	spTree, present := eg.cachedSP[from]
	if present {
		return spTree
	}
	spTree = path.DijkstraFrom(simple.Node(from), eg.g)
	eg.cachedSP[from] = spTree

	return spTree
}

// convertNodeSeq gives the object names along a sequence of graph nodes
func (eg *ExpGraph) convertNodeSeq(nsQ []graph.Node) []string {
	rtn := make([]string, len(nsQ))
	for idx, node := range nsQ {
		rtn[idx] = eg.nameByID[node.ID()]
	}
	return rtn
}

// Reachable reports whether hosts src and dst are connected through NICs and networks
func (eg *ExpGraph) Reachable(src, dst string) bool {
	_, err := eg.HostRoute(src, dst)
	return err == nil
}

// HostRoute returns the shortest path from host src to host dst as the list of graph
// node names visited, e.g. host:a, nic:a.nic, net:n, nic:b.nic, host:b
func (eg *ExpGraph) HostRoute(src, dst string) ([]string, error) {
	srcID, present := eg.idByName[hostNode(src)]
	if !present {
		return nil, fmt.Errorf("host %s not in experiment graph", src)
	}
	dstID, present := eg.idByName[hostNode(dst)]
	if !present {
		return nil, fmt.Errorf("host %s not in experiment graph", dst)
	}

	var nodeSeq []graph.Node
	if spTree, cached := eg.cachedSP[dstID]; cached {
		nodeSeq, _ = spTree.To(srcID)
		slices.Reverse(nodeSeq)
	} else {
		nodeSeq, _ = eg.getSPTree(srcID).To(dstID)
	}
	if len(nodeSeq) == 0 {
		return nil, fmt.Errorf("no path from host %s to host %s", src, dst)
	}
	return eg.convertNodeSeq(nodeSeq), nil
}

// ShowPath returns a string that lists the names along the route from host src to host dst
func (eg *ExpGraph) ShowPath(src, dst string) string {
	route, err := eg.HostRoute(src, dst)
	if err != nil {
		return err.Error()
	}
	return strings.Join(route, ",")
}

// Unreachable gives the names of the hosts that cannot be reached from the first host
func (eg *ExpGraph) Unreachable() []string {
	if len(eg.hostIDs) == 0 {
		return []string{}
	}
	spTree := eg.getSPTree(eg.hostIDs[0])

	cut := []string{}
	for _, id := range eg.hostIDs[1:] {
		if math.IsInf(spTree.WeightTo(id), 1) {
			cut = append(cut, strings.TrimPrefix(eg.nameByID[id], "host:"))
		}
	}
	return cut
}

// checkReachability fails when some pair of hosts of the experiment cannot reach each other
func (ef *ExperimentFrame) checkReachability() error {
	cut := BuildExpGraph(ef).Unreachable()
	if len(cut) == 0 {
		return nil
	}
	return fmt.Errorf("%w: hosts %s unreachable from host %s", ErrInvalidTopology,
		strings.Join(cut, ","), ef.Hosts[0].Name)
}
