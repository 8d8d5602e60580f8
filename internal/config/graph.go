package config

import (
	"fmt"
	"sort"

	"github.com/graceinfra/shipyard/types"
)

type JobNode struct {
	Job          *types.Job
	Dependencies []*JobNode
	Dependents   []*JobNode
}

func BuildJobGraph(cfg *types.WorkflowConfig) (map[string]*JobNode, error) {
	jobGraph := make(map[string]*JobNode, cfg.Jobs.Len())

	// First pass: create nodes
	for _, job := range cfg.Jobs.All() {
		jobGraph[job.Name] = &JobNode{Job: job}
	}

	// Second pass: link dependencies
	for _, job := range cfg.Jobs.All() {
		node := jobGraph[job.Name]
		for _, depName := range job.Needs {
			depNode, exists := jobGraph[depName]
			if !exists || depNode == nil {
				return nil, fmt.Errorf("internal error: dependency %q for job %q not found during graph build", depName, job.Name)
			}

			node.Dependencies = append(node.Dependencies, depNode)
			depNode.Dependents = append(depNode.Dependents, node)
		}
	}

	return jobGraph, nil
}

// Ancestors returns every job reachable through needs from name, excluding
// name itself.
func Ancestors(graph map[string]*JobNode, name string) map[string]bool {
	seen := make(map[string]bool)
	var walk func(n *JobNode)
	walk = func(n *JobNode) {
		for _, dep := range n.Dependencies {
			if !seen[dep.Job.Name] {
				seen[dep.Job.Name] = true
				walk(dep)
			}
		}
	}
	if node, ok := graph[name]; ok {
		walk(node)
	}
	return seen
}

// Closure returns the named jobs plus their transitive needs, in the order
// given by order. Unknown names are an error.
func Closure(graph map[string]*JobNode, order, names []string) ([]string, error) {
	keep := make(map[string]bool)
	for _, name := range names {
		if _, ok := graph[name]; !ok {
			return nil, fmt.Errorf("job %q not found in workflow", name)
		}
		keep[name] = true
		for dep := range Ancestors(graph, name) {
			keep[dep] = true
		}
	}

	var out []string
	for _, name := range order {
		if keep[name] {
			out = append(out, name)
		}
	}
	return out, nil
}

// Plan groups jobs into batches where every job's needs lie in earlier
// batches. Only jobs listed in order are planned; needs outside that set are
// treated as satisfied. Names within a batch are sorted for display.
func Plan(graph map[string]*JobNode, order []string) ([][]string, error) {
	included := make(map[string]bool, len(order))
	for _, name := range order {
		if _, ok := graph[name]; !ok {
			return nil, fmt.Errorf("job %q not found in graph", name)
		}
		included[name] = true
	}

	inDegree := make(map[string]int, len(order))
	for _, name := range order {
		for _, dep := range graph[name].Dependencies {
			if included[dep.Job.Name] {
				inDegree[name]++
			}
		}
	}

	var current []string
	for _, name := range order {
		if inDegree[name] == 0 {
			current = append(current, name)
		}
	}

	var batches [][]string
	planned := 0
	for len(current) > 0 {
		sort.Strings(current)
		batches = append(batches, current)
		planned += len(current)

		var next []string
		for _, name := range current {
			for _, dependent := range graph[name].Dependents {
				dn := dependent.Job.Name
				if !included[dn] {
					continue
				}
				inDegree[dn]--
				if inDegree[dn] == 0 {
					next = append(next, dn)
				}
			}
		}
		current = next
	}

	if planned != len(order) {
		return nil, &GraphError{Kind: ErrCycle, Problems: []string{"dependency cycle detected while planning"}}
	}
	return batches, nil
}
