// Package tracegraph defines the decision-trace graph model: generic nodes and
// relationships, the Decision specialization, caller-held GraphViews and the
// similarity/precedent result types.
//
// Values in this package are read-only snapshots of the store. GraphView is an
// immutable value; operations that grow a view return a new one.
package tracegraph
