// Package dag holds the dependency-graph algorithms shared by the workflow
// engine and the task queue: DFS cycle detection with grey/black marking and
// Kahn's algorithm for topological ordering.
//
// Graphs are adjacency lists keyed by stable node ids. Nodes never point at
// each other directly, so a cyclic input cannot produce cyclic Go values.
package dag
