// Package fetch implements the Fetch AST: a small algebra of nodes that
// describe a data-dependent computation — pure values, outstanding backend
// requests, and independent compositions of both — without performing any
// of it. Building a Fetch value never calls a DataSource; only the
// executor package interprets one.
package fetch

import (
	fetchsource "github.com/gitter-badger/fetch-2/internal/fetchsource"
)

// Fetch[A] is a pure, immutable description of a computation that
// eventually yields an A. It may be run multiple times, against a fresh or
// caller-supplied cache, with no effect on the Fetch value itself.
type Fetch[A any] struct{ node Node }

// Node exposes the type-erased reduction of f for the executor to
// interpret. Client code never needs to call this directly.
func (f Fetch[A]) Node() Node { return f.node }

func wrap[A any](n Node) Fetch[A] { return Fetch[A]{node: n} }

// Pure lifts a ready value into Fetch, performing no data-source calls.
func Pure[A any](a A) Fetch[A] { return wrap[A](pureNode(a)) }

// Error lifts an explicit failure into Fetch. The executor treats it as a
// UserError, identical in severity to a data-source failure.
func Error[A any](err error) Fetch[A] { return wrap[A](errorNode(err)) }

// FetchOne describes one outstanding request against one data source.
func FetchOne[Req comparable, Resp any](req Req, ds fetchsource.DataSource[Req, Resp]) Fetch[Resp] {
	g := newGroup(ds, []Req{req})
	return wrap[Resp](Node{Kind: KindBlocked, Groups: []Group{g}, Cont: func(resp [][]any) Node {
		return pureNode(resp[0][0])
	}})
}

// FetchMany describes a list of requests — order-preserving, duplicates
// allowed — against one data source. It is the building block join/collect/
// traverse fuse sibling requests into.
func FetchMany[Req comparable, Resp any](reqs []Req, ds fetchsource.DataSource[Req, Resp]) Fetch[[]Resp] {
	g := newGroup(ds, reqs)
	return wrap[[]Resp](Node{Kind: KindBlocked, Groups: []Group{g}, Cont: func(resp [][]any) Node {
		out := make([]Resp, len(resp[0]))
		for i, v := range resp[0] {
			out[i] = v.(Resp)
		}
		return pureNode(out)
	}})
}

// Map applies a pure function to f's eventual value. Map never introduces a
// round: it does not touch f's Groups, only its continuation.
func Map[A, B any](f Fetch[A], fn func(A) B) Fetch[B] {
	return wrap[B](mapNode(f.node, func(v any) any { return fn(v.(A)) }))
}

// FlatMap uses f's eventual value to decide the next Fetch. It is the only
// combinator that introduces a sequencing barrier: every round k(a)
// produces happens strictly after every round f produces, because k is not
// invoked until f has fully reduced to Pure.
func FlatMap[A, B any](f Fetch[A], k func(A) Fetch[B]) Fetch[B] {
	return wrap[B](flatMapNode(f.node, func(v any) Node { return k(v.(A)).node }))
}

// Pair holds the result of Join.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Join composes two independent Fetches. If both have pending Blocked
// groups against the same data source name when reduced, those groups are
// fused into a single batch against that source rather than issued
// separately; groups against different sources are issued together in one
// Concurrent round.
func Join[A, B any](a Fetch[A], b Fetch[B]) Fetch[Pair[A, B]] {
	merged := joinAllNodes([]Node{a.node, b.node})
	return wrap[Pair[A, B]](mapNode(merged, func(v any) any {
		vs := v.([]any)
		return Pair[A, B]{First: vs[0].(A), Second: vs[1].(B)}
	}))
}

// Collect is the n-ary form of Join: every Fetch in xs is independent, and
// the result preserves input order regardless of completion order.
func Collect[A any](xs []Fetch[A]) Fetch[[]A] {
	ns := make([]Node, len(xs))
	for i, x := range xs {
		ns[i] = x.node
	}
	merged := joinAllNodes(ns)
	return wrap[[]A](mapNode(merged, func(v any) any {
		vs := v.([]any)
		out := make([]A, len(vs))
		for i, e := range vs {
			out[i] = e.(A)
		}
		return out
	}))
}

// Traverse maps f over xs and collects the independent results, equivalent
// to calling Collect on the slice of f(x) for each x in xs.
func Traverse[T, A any](xs []T, f func(T) Fetch[A]) Fetch[[]A] {
	fs := make([]Fetch[A], len(xs))
	for i, x := range xs {
		fs[i] = f(x)
	}
	return Collect(fs)
}
