package fetch

import (
	"context"

	effect "github.com/gitter-badger/fetch-2/internal/effect"
	fetchsource "github.com/gitter-badger/fetch-2/internal/fetchsource"
)

// Kind tags the shape of a reduced Node: a ready value, a terminal failure,
// or a frontier of outstanding backend work.
type Kind int

const (
	KindPure Kind = iota
	KindError
	KindBlocked
)

// ErasedSource is a DataSource with its request/response types erased to
// any, so heterogeneous Blocked groups from different DataSource[Req,Resp]
// instantiations can sit side by side in one Concurrent frontier.
type ErasedSource struct {
	Name     string
	Identity func(req any) any
	Fetch    func(ctx context.Context, reqs []any) effect.Task[map[any]any]
}

// Group is one outstanding batch against one data source: a source and the
// (possibly duplicate) requests pending against it, in construction order.
type Group struct {
	Source ErasedSource
	Reqs   []any
}

// Node is the type-erased reduction of a Fetch value. Pure/Error carry a
// final value or failure. Blocked carries the frontier — one or more
// Groups fused by source name at construction time — plus Cont, which
// resumes the computation once every group's responses are known. Cont
// receives, for each Group in the same order as Groups, the ordered
// response list aligned to that group's Reqs (including duplicates).
type Node struct {
	Kind   Kind
	Value  any
	Err    error
	Groups []Group
	Cont   func(resp [][]any) Node
}

func pureNode(v any) Node  { return Node{Kind: KindPure, Value: v} }
func errorNode(e error) Node { return Node{Kind: KindError, Err: e} }

func mapNode(n Node, f func(any) any) Node {
	switch n.Kind {
	case KindPure:
		return pureNode(f(n.Value))
	case KindError:
		return n
	default:
		cont := n.Cont
		return Node{Kind: KindBlocked, Groups: n.Groups, Cont: func(resp [][]any) Node {
			return mapNode(cont(resp), f)
		}}
	}
}

func flatMapNode(n Node, k func(any) Node) Node {
	switch n.Kind {
	case KindPure:
		return k(n.Value)
	case KindError:
		return n
	default:
		cont := n.Cont
		return Node{Kind: KindBlocked, Groups: n.Groups, Cont: func(resp [][]any) Node {
			return flatMapNode(cont(resp), k)
		}}
	}
}

// offsetRange locates one operand's original group inside the merged,
// fused group list produced by mergeManyGroups.
type offsetRange struct {
	mergedIdx  int
	start, end int
}

// mergeManyGroups fuses the Groups of every node in ns by source name,
// preserving first-occurrence order of sources and, within a source,
// concatenating each operand's requests in turn. It returns the fused
// group list alongside one slicer per operand that recovers that
// operand's own per-group response lists out of the merged response.
func mergeManyGroups(ns []Node) (merged []Group, slicers []func(resp [][]any) [][]any) {
	nameIndex := map[string]int{}
	offsets := make([][]offsetRange, len(ns))

	for i, n := range ns {
		if n.Kind != KindBlocked {
			continue
		}
		offs := make([]offsetRange, len(n.Groups))
		for gi, g := range n.Groups {
			if mi, ok := nameIndex[g.Source.Name]; ok {
				start := len(merged[mi].Reqs)
				merged[mi].Reqs = append(merged[mi].Reqs, g.Reqs...)
				offs[gi] = offsetRange{mergedIdx: mi, start: start, end: len(merged[mi].Reqs)}
			} else {
				mi := len(merged)
				merged = append(merged, Group{Source: g.Source, Reqs: append([]any{}, g.Reqs...)})
				nameIndex[g.Source.Name] = mi
				offs[gi] = offsetRange{mergedIdx: mi, start: 0, end: len(g.Reqs)}
			}
		}
		offsets[i] = offs
	}

	slicers = make([]func(resp [][]any) [][]any, len(ns))
	for i := range ns {
		offs := offsets[i]
		slicers[i] = func(resp [][]any) [][]any {
			out := make([][]any, len(offs))
			for gi, off := range offs {
				out[gi] = resp[off.mergedIdx][off.start:off.end]
			}
			return out
		}
	}
	return merged, slicers
}

// joinAllNodes is the n-ary independent-composition step underlying Join,
// Collect, and Traverse. The first Error among ns (in index order) is
// terminal for the whole join. If every node is already Pure, it resolves
// immediately to the list of their values, no Group is produced, and no
// Concurrent round is ever observed by the executor. Otherwise it produces
// one Blocked Node whose Groups are every operand's Blocked groups fused by
// source name, and whose Cont recurses until every operand reaches Pure.
func joinAllNodes(ns []Node) Node {
	for _, n := range ns {
		if n.Kind == KindError {
			return n
		}
	}

	allPure := true
	for _, n := range ns {
		if n.Kind != KindPure {
			allPure = false
			break
		}
	}
	if allPure {
		vals := make([]any, len(ns))
		for i, n := range ns {
			vals[i] = n.Value
		}
		return pureNode(vals)
	}

	merged, slicers := mergeManyGroups(ns)
	return Node{Kind: KindBlocked, Groups: merged, Cont: func(resp [][]any) Node {
		nexts := make([]Node, len(ns))
		for i, n := range ns {
			if n.Kind == KindBlocked {
				nexts[i] = n.Cont(slicers[i](resp))
			} else {
				nexts[i] = n
			}
		}
		return joinAllNodes(nexts)
	}}
}

func newGroup[Req comparable, Resp any](ds fetchsource.DataSource[Req, Resp], reqs []Req) Group {
	erasedReqs := make([]any, len(reqs))
	for i, r := range reqs {
		erasedReqs[i] = r
	}
	return Group{Source: wrapSource(ds), Reqs: erasedReqs}
}

func wrapSource[Req comparable, Resp any](ds fetchsource.DataSource[Req, Resp]) ErasedSource {
	return ErasedSource{
		Name:     ds.Name(),
		Identity: func(req any) any { return ds.Identity(req.(Req)) },
		Fetch: func(ctx context.Context, reqs []any) effect.Task[map[any]any] {
			typed := make([]Req, len(reqs))
			for i, r := range reqs {
				typed[i] = r.(Req)
			}
			return effect.Then(ds.Fetch(ctx, typed), func(m map[Req]Resp) effect.Task[map[any]any] {
				out := make(map[any]any, len(m))
				for k, v := range m {
					out[k] = v
				}
				return effect.Of(out)
			})
		},
	}
}
