// Package workflow stores named workflows (DAGs of module/action steps) and
// executes them.
//
// Registration validates the graph: undefined step references and cycles are
// rejected up front, so execution never sees a malformed workflow. Execution
// orders steps with Kahn's algorithm and dispatches each step through an
// api.Dispatcher. A failed step causes its transitive dependents to be
// skipped while independent branches still run to completion.
//
// Definitions can also be loaded from YAML files:
//
//	name: build-and-ship
//	steps:
//	  - name: compile
//	    module: builder
//	    action: compile
//	  - name: upload
//	    module: storage
//	    action: put
//	    dependencies: [compile]
package workflow
