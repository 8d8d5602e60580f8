package types

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type Job struct {
	Name             string            `yaml:"-"`
	Target           string            `yaml:"target"`
	Needs            []string          `yaml:"needs,omitempty"`
	If               string            `yaml:"if,omitempty"`
	Timeout          Duration          `yaml:"timeout,omitempty"`
	WorkingDirectory string            `yaml:"working_directory,omitempty"`
	Env              map[string]string `yaml:"env,omitempty"`
	Secrets          []string          `yaml:"secrets,omitempty"`
	Cache            *CacheSpec        `yaml:"cache,omitempty"`
	Optional         []OptionalSpec    `yaml:"optional,omitempty"`
	Steps            []*Step           `yaml:"steps"`
}

type Step struct {
	ID              string            `yaml:"id,omitempty"`
	Name            string            `yaml:"name,omitempty"`
	Run             string            `yaml:"run,omitempty"`
	Uses            string            `yaml:"uses,omitempty"`
	With            map[string]string `yaml:"with,omitempty"`
	If              string            `yaml:"if,omitempty"`
	ContinueOnError bool              `yaml:"continue_on_error,omitempty"`
	Timeout         Duration          `yaml:"timeout,omitempty"`
}

// DisplayName prefers the human name, falling back to the step id.
func (s *Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

type CacheSpec struct {
	Key   string   `yaml:"key"`
	Paths []string `yaml:"paths"`
}

// OptionalSpec declares a best-effort resource fetched before the job's steps.
// Exactly one of Git or Run is set.
type OptionalSpec struct {
	Name        string `yaml:"name"`
	Git         string `yaml:"git,omitempty"`
	Ref         string `yaml:"ref,omitempty"`
	Run         string `yaml:"run,omitempty"`
	Dest        string `yaml:"dest,omitempty"`
	TokenSecret string `yaml:"token_secret,omitempty"`
}

// Target is the parsed form of a job's "os/arch/toolchain" descriptor.
type Target struct {
	OS        string `json:"os"`
	Arch      string `json:"arch,omitempty"`
	Toolchain string `json:"toolchain,omitempty"`
}

func ParseTarget(descriptor string) (Target, error) {
	if strings.TrimSpace(descriptor) == "" {
		return Target{}, fmt.Errorf("target descriptor is empty")
	}
	parts := strings.Split(descriptor, "/")
	if len(parts) > 3 {
		return Target{}, fmt.Errorf("target descriptor %q has more than 3 parts (os/arch/toolchain)", descriptor)
	}
	for _, p := range parts {
		if p == "" {
			return Target{}, fmt.Errorf("target descriptor %q contains an empty part", descriptor)
		}
	}

	t := Target{OS: parts[0]}
	if len(parts) > 1 {
		t.Arch = parts[1]
	}
	if len(parts) > 2 {
		t.Toolchain = parts[2]
	}
	return t, nil
}

func (t Target) String() string {
	parts := []string{t.OS}
	if t.Arch != "" {
		parts = append(parts, t.Arch)
	}
	if t.Toolchain != "" {
		parts = append(parts, t.Toolchain)
	}
	return strings.Join(parts, "/")
}

// Jobs is the "jobs" mapping of a workflow, keeping declaration order.
type Jobs struct {
	order  []string
	byName map[string]*Job
}

func NewJobs(jobs ...*Job) Jobs {
	var j Jobs
	for _, job := range jobs {
		j.Add(job)
	}
	return j
}

// Add appends a job, replacing any job already registered under the same name.
func (j *Jobs) Add(job *Job) {
	if j.byName == nil {
		j.byName = make(map[string]*Job)
	}
	if _, exists := j.byName[job.Name]; !exists {
		j.order = append(j.order, job.Name)
	}
	j.byName[job.Name] = job
}

func (j Jobs) Get(name string) (*Job, bool) {
	job, ok := j.byName[name]
	return job, ok
}

// Names returns job names in declaration order.
func (j Jobs) Names() []string {
	out := make([]string, len(j.order))
	copy(out, j.order)
	return out
}

// All returns jobs in declaration order.
func (j Jobs) All() []*Job {
	out := make([]*Job, 0, len(j.order))
	for _, name := range j.order {
		out = append(out, j.byName[name])
	}
	return out
}

func (j Jobs) Len() int { return len(j.order) }

func (j *Jobs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: 'jobs' must be a mapping of job name to job definition", node.Line)
	}

	*j = Jobs{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]

		var name string
		if err := keyNode.Decode(&name); err != nil {
			return fmt.Errorf("line %d: invalid job name: %w", keyNode.Line, err)
		}
		if _, dup := j.byName[name]; dup {
			return fmt.Errorf("line %d: duplicate job %q", keyNode.Line, name)
		}

		job := &Job{}
		if err := valNode.Decode(job); err != nil {
			return fmt.Errorf("job %q: %w", name, err)
		}
		job.Name = name
		j.Add(job)
	}
	return nil
}

func (j Jobs) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range j.order {
		var val yaml.Node
		if err := val.Encode(j.byName[name]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: name}, &val)
	}
	return node, nil
}

// Initiator stores who started a run: a user, a CI pipeline, or a service account.
type Initiator struct {
	Type string `json:"type"` // "user", "ci"
	Id   string `json:"id"`
	Host string `json:"host"`
}
