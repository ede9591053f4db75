// Command code-indexer is the standalone entrypoint over internal/engine:
// a CLI for adding a project, running it to a settled state, querying it,
// and inspecting indexer status, without the HTTP control API layer
// (external collaborator, out of scope per spec.md §1).
package main

func main() {
	Execute()
}
