package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/graceinfra/shipyard/internal/actions"
	"github.com/graceinfra/shipyard/internal/artifact"
	"github.com/graceinfra/shipyard/internal/expr"
	"github.com/graceinfra/shipyard/internal/fsutil"
	"github.com/graceinfra/shipyard/internal/release"
	"github.com/graceinfra/shipyard/types"
)

// Job names, step ids and optional names are referenced from expressions,
// so they must be valid identifiers there.
var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

var envNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Variables each kind of expression may reference.
var (
	triggerVars = map[string]bool{"ref": true, "sha": true, "event": true}
	jobVars     = map[string]bool{"ref": true, "sha": true, "event": true, "target": true, "env": true}
	stepVars    = map[string]bool{"ref": true, "sha": true, "event": true, "target": true, "env": true, "steps": true, "optional": true, "job": true}
)

var releaseHostTypes = map[string]bool{"fs": true, "memory": true}

// ValidateConfig checks a parsed workflow: field syntax first, then
// references between jobs, then cycles. All problems are reported together
// in a *GraphError.
func ValidateConfig(cfg *types.WorkflowConfig, registry *actions.Registry) error {
	if registry == nil {
		registry = actions.DefaultRegistry()
	}

	syntaxErrs := validateSyntax(cfg, registry)
	if len(syntaxErrs) != 0 {
		return &GraphError{Kind: ErrInvalidGraph, Problems: syntaxErrs}
	}

	jobGraph := make(map[string]*JobNode, cfg.Jobs.Len())
	for _, job := range cfg.Jobs.All() {
		jobGraph[job.Name] = &JobNode{Job: job}
	}

	depErrs := validateDependencies(cfg, jobGraph)
	if len(depErrs) != 0 {
		return &GraphError{Kind: ErrInvalidGraph, Problems: depErrs}
	}

	if cyclePath := detectCycle(jobGraph, cfg.Jobs.Names()); cyclePath != nil {
		return &GraphError{
			Kind:     ErrCycle,
			Problems: []string{fmt.Sprintf("dependency cycle detected: %s", strings.Join(cyclePath, " -> "))},
		}
	}

	// Artifact flow needs the acyclic graph to compute reachability.
	if flowErrs := validateArtifactFlow(cfg, jobGraph); len(flowErrs) != 0 {
		return &GraphError{Kind: ErrInvalidGraph, Problems: flowErrs}
	}
	return nil
}

func validateSyntax(cfg *types.WorkflowConfig, registry *actions.Registry) []string {
	var errs []string

	if cfg.Config.Concurrency < 0 {
		errs = append(errs, "field 'config.concurrency' cannot be negative")
	}
	if cfg.ReleaseHost.Type != "" && !releaseHostTypes[cfg.ReleaseHost.Type] {
		errs = append(errs, fmt.Sprintf("field 'release_host.type': unknown host type %q (allowed: fs, memory)", cfg.ReleaseHost.Type))
	}

	if cfg.Jobs.Len() == 0 {
		errs = append(errs, "at least one job must be defined under 'jobs'")
	}

	for _, job := range cfg.Jobs.All() {
		errs = append(errs, validateJob(job, registry)...)
	}

	if cfg.Release != nil {
		errs = append(errs, validateRelease(cfg.Release)...)
	}
	return errs
}

func validateJob(job *types.Job, registry *actions.Registry) []string {
	var errs []string
	jobCtx := fmt.Sprintf("job[%s]", job.Name)

	if !identRegex.MatchString(job.Name) {
		errs = append(errs, fmt.Sprintf("%s: invalid job name (use letters, digits, '_' or '-', starting with a letter or '_')", jobCtx))
	}

	if job.Target == "" {
		errs = append(errs, fmt.Sprintf("%s: field 'target' is required", jobCtx))
	} else if _, err := types.ParseTarget(job.Target); err != nil {
		errs = append(errs, fmt.Sprintf("%s: %v", jobCtx, err))
	}

	if job.If != "" {
		errs = append(errs, checkPredicate(jobCtx+" 'if'", job.If, jobVars, nil, nil)...)
	}

	if job.WorkingDirectory != "" {
		if err := fsutil.ValidatePattern(job.WorkingDirectory); err != nil {
			errs = append(errs, fmt.Sprintf("%s: working_directory: %v", jobCtx, err))
		}
	}

	secrets := make(map[string]bool, len(job.Secrets))
	for _, s := range job.Secrets {
		if !envNameRegex.MatchString(s) {
			errs = append(errs, fmt.Sprintf("%s: invalid secret name %q", jobCtx, s))
		}
		secrets[s] = true
	}
	for k := range job.Env {
		if !envNameRegex.MatchString(k) {
			errs = append(errs, fmt.Sprintf("%s: invalid env variable name %q", jobCtx, k))
		}
		if secrets[k] {
			errs = append(errs, fmt.Sprintf("%s: env variable %q shadows a secret of the same name", jobCtx, k))
		}
	}

	if job.Cache != nil {
		errs = append(errs, validateCache(jobCtx, job.Cache)...)
	}

	optional := make(map[string]bool, len(job.Optional))
	for i, o := range job.Optional {
		oCtx := fmt.Sprintf("%s optional[%d]", jobCtx, i)
		if !identRegex.MatchString(o.Name) {
			errs = append(errs, fmt.Sprintf("%s: invalid or missing 'name' %q", oCtx, o.Name))
		} else if optional[o.Name] {
			errs = append(errs, fmt.Sprintf("%s: duplicate optional name %q", oCtx, o.Name))
		}
		optional[o.Name] = true

		switch {
		case o.Git == "" && o.Run == "":
			errs = append(errs, fmt.Sprintf("%s: one of 'git' or 'run' is required", oCtx))
		case o.Git != "" && o.Run != "":
			errs = append(errs, fmt.Sprintf("%s: 'git' and 'run' cannot both be specified", oCtx))
		}
		if o.Ref != "" && o.Git == "" {
			errs = append(errs, fmt.Sprintf("%s: 'ref' only applies to 'git' entries", oCtx))
		}
		if o.TokenSecret != "" && !secrets[o.TokenSecret] {
			errs = append(errs, fmt.Sprintf("%s: token_secret %q must be listed in the job's 'secrets'", oCtx, o.TokenSecret))
		}
		if o.Dest != "" {
			if err := fsutil.ValidatePattern(o.Dest); err != nil {
				errs = append(errs, fmt.Sprintf("%s: dest: %v", oCtx, err))
			}
		}
	}

	if len(job.Steps) == 0 {
		errs = append(errs, fmt.Sprintf("%s: at least one step is required", jobCtx))
	}

	prior := make(map[string]bool, len(job.Steps))
	for i, step := range job.Steps {
		sCtx := fmt.Sprintf("%s step[%d]", jobCtx, i)
		if step == nil {
			errs = append(errs, fmt.Sprintf("%s: step is empty", sCtx))
			continue
		}
		sCtx = fmt.Sprintf("%s step[%s]", jobCtx, step.ID)

		if !identRegex.MatchString(step.ID) {
			errs = append(errs, fmt.Sprintf("%s: invalid step id", sCtx))
		} else if prior[step.ID] {
			errs = append(errs, fmt.Sprintf("%s: duplicate step id", sCtx))
		}

		switch {
		case step.Run == "" && step.Uses == "":
			errs = append(errs, fmt.Sprintf("%s: one of 'run' or 'uses' is required", sCtx))
		case step.Run != "" && step.Uses != "":
			errs = append(errs, fmt.Sprintf("%s: 'run' and 'uses' cannot both be specified", sCtx))
		default:
			action, err := registry.For(step)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v; known actions are: %v", sCtx, err, registry.Names()))
			} else {
				for _, msg := range action.Validate(step) {
					errs = append(errs, fmt.Sprintf("%s: %s", sCtx, msg))
				}
			}
		}

		if step.If != "" {
			errs = append(errs, checkPredicate(sCtx+" 'if'", step.If, stepVars, prior, optional)...)
		}
		prior[step.ID] = true
	}

	return errs
}

func validateCache(jobCtx string, c *types.CacheSpec) []string {
	var errs []string
	if c.Key == "" {
		errs = append(errs, fmt.Sprintf("%s: cache.key is required", jobCtx))
	} else if tmpl, err := expr.CompileTemplate(c.Key); err != nil {
		errs = append(errs, fmt.Sprintf("%s: cache.key: %v", jobCtx, err))
	} else {
		errs = append(errs, checkRefs(jobCtx+" cache.key", tmpl.References(), jobVars, nil, nil)...)
	}
	if len(c.Paths) == 0 {
		errs = append(errs, fmt.Sprintf("%s: cache.paths must list at least one path", jobCtx))
	}
	for _, p := range c.Paths {
		if err := fsutil.ValidatePattern(p); err != nil {
			errs = append(errs, fmt.Sprintf("%s: cache.paths: %v", jobCtx, err))
		}
	}
	return errs
}

func validateRelease(r *types.ReleaseSpec) []string {
	var errs []string
	if r.Trigger == "" {
		errs = append(errs, "release: field 'trigger' is required")
	} else {
		errs = append(errs, checkPredicate("release 'trigger'", r.Trigger, triggerVars, nil, nil)...)
	}
	if len(r.Assets) == 0 {
		errs = append(errs, "release: at least one asset is required")
	}
	for i, a := range r.Assets {
		aCtx := fmt.Sprintf("release asset[%d]", i)
		if a.Source == "" {
			errs = append(errs, fmt.Sprintf("%s: field 'source' is required", aCtx))
		}
		if a.Name != "" {
			if release.IsPattern(a.Source) {
				errs = append(errs, fmt.Sprintf("%s: 'name' cannot be set when 'source' is a pattern", aCtx))
			} else if err := artifact.ValidateName(a.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", aCtx, err))
			}
		}
		if a.File != "" {
			if err := fsutil.ValidatePattern(a.File); err != nil {
				errs = append(errs, fmt.Sprintf("%s: file: %v", aCtx, err))
			}
		}
	}
	if r.Checksums != "" {
		if err := artifact.ValidateName(r.Checksums); err != nil {
			errs = append(errs, fmt.Sprintf("release checksums: %v", err))
		}
	}
	return errs
}

func checkPredicate(where, src string, allowed map[string]bool, steps, optional map[string]bool) []string {
	p, err := expr.CompilePredicate(src)
	if err != nil {
		return []string{fmt.Sprintf("%s: %v", where, err)}
	}
	return checkRefs(where, p.References(), allowed, steps, optional)
}

// checkRefs verifies each variable reference against the allowed roots.
// steps.<id> must name an earlier step and optional.<name> a declared entry.
func checkRefs(where string, refs []expr.Reference, allowed map[string]bool, steps, optional map[string]bool) []string {
	var errs []string
	for _, r := range refs {
		if !allowed[r.Root] {
			errs = append(errs, fmt.Sprintf("%s: %q is not available here", where, r.Root))
			continue
		}
		switch r.Root {
		case "steps":
			if r.Attr == "" {
				errs = append(errs, fmt.Sprintf("%s: 'steps' must be followed by a step id", where))
			} else if !steps[r.Attr] {
				errs = append(errs, fmt.Sprintf("%s: step %q is not an earlier step of this job", where, r.Attr))
			}
		case "optional":
			if r.Attr == "" {
				errs = append(errs, fmt.Sprintf("%s: 'optional' must be followed by a name", where))
			} else if !optional[r.Attr] {
				errs = append(errs, fmt.Sprintf("%s: optional %q is not declared by this job", where, r.Attr))
			}
		}
	}
	return errs
}

// validateDependencies checks 'needs' and 'release.requires' and links the graph.
func validateDependencies(cfg *types.WorkflowConfig, jobGraph map[string]*JobNode) []string {
	var errs []string

	for _, job := range cfg.Jobs.All() {
		jobCtx := fmt.Sprintf("job[%s]", job.Name)
		node := jobGraph[job.Name]
		seen := make(map[string]bool, len(job.Needs))

		for _, depName := range job.Needs {
			if depName == job.Name {
				errs = append(errs, fmt.Sprintf("%s: job cannot depend on itself", jobCtx))
				continue
			}
			depNode, exists := jobGraph[depName]
			if !exists {
				errs = append(errs, fmt.Sprintf("%s: dependency %q not found", jobCtx, depName))
				continue
			}
			if seen[depName] {
				errs = append(errs, fmt.Sprintf("%s: dependency %q listed more than once", jobCtx, depName))
				continue
			}
			seen[depName] = true

			node.Dependencies = append(node.Dependencies, depNode)
			depNode.Dependents = append(depNode.Dependents, node)
		}
	}

	if cfg.Release != nil {
		for _, name := range cfg.Release.Requires {
			if _, ok := jobGraph[name]; !ok {
				errs = append(errs, fmt.Sprintf("release: required job %q not found", name))
			}
		}
	}
	return errs
}

// validateArtifactFlow checks that artifact names are unique, downloads come
// from jobs the consumer depends on, and release assets from required jobs.
func validateArtifactFlow(cfg *types.WorkflowConfig, jobGraph map[string]*JobNode) []string {
	var errs []string
	producers := make(map[string]string) // artifact name -> job

	for _, job := range cfg.Jobs.All() {
		for _, step := range job.Steps {
			if step.Uses != actions.UploadArtifactName {
				continue
			}
			name := step.With["name"]
			if prev, exists := producers[name]; exists {
				errs = append(errs, fmt.Sprintf("job[%s] and job[%s] both publish artifact %q", prev, job.Name, name))
				continue
			}
			producers[name] = job.Name
		}
	}

	for _, job := range cfg.Jobs.All() {
		upstream := Ancestors(jobGraph, job.Name)
		for _, step := range job.Steps {
			if step.Uses != actions.DownloadArtifactName || release.IsPattern(step.With["name"]) {
				continue
			}
			name := step.With["name"]
			producer, ok := producers[name]
			switch {
			case !ok:
				errs = append(errs, fmt.Sprintf("job[%s] step[%s]: artifact %q is not published by any job", job.Name, step.ID, name))
			case producer != job.Name && !upstream[producer]:
				errs = append(errs, fmt.Sprintf("job[%s] step[%s]: artifact %q comes from job %q, which is not in this job's needs", job.Name, step.ID, name, producer))
			}
		}
	}

	if cfg.Release != nil {
		required := make(map[string]bool, len(cfg.Release.Requires))
		for _, name := range cfg.Release.Requires {
			required[name] = true
		}
		for i, a := range cfg.Release.Assets {
			if release.IsPattern(a.Source) {
				continue
			}
			producer, ok := producers[a.Source]
			switch {
			case !ok:
				errs = append(errs, fmt.Sprintf("release asset[%d]: artifact %q is not published by any job", i, a.Source))
			case !required[producer]:
				errs = append(errs, fmt.Sprintf("release asset[%d]: artifact %q comes from job %q, which is not listed in release.requires", i, a.Source, producer))
			}
		}
	}

	sort.Strings(errs)
	return errs
}

// detectCycle performs DFS to find cycles in the job graph. It returns the
// job names along the cycle, or nil.
func detectCycle(graph map[string]*JobNode, order []string) []string {
	path := []string{}
	visited := make(map[string]bool)
	visiting := make(map[string]bool)

	var dfs func(nodeName string) []string

	dfs = func(nodeName string) []string {
		visited[nodeName] = true
		visiting[nodeName] = true
		path = append(path, nodeName)

		for _, dep := range graph[nodeName].Dependents {
			depName := dep.Job.Name
			if visiting[depName] {
				for i, nameInPath := range path {
					if nameInPath == depName {
						return append(append([]string(nil), path[i:]...), depName)
					}
				}
			}
			if !visited[depName] {
				if cycle := dfs(depName); cycle != nil {
					return cycle
				}
			}
		}

		path = path[:len(path)-1]
		visiting[nodeName] = false
		return nil
	}

	// Declaration order keeps the reported cycle stable.
	for _, nodeName := range order {
		if !visited[nodeName] {
			if cycle := dfs(nodeName); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
