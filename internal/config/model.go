package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Model is the unified, format-agnostic representation of a workflow.
type Model struct {
	Settings  Settings
	Artifacts []*Artifact
	Tasks     []*Task
}

// Settings are engine defaults declared alongside the workflow. Zero values
// and nil pointers mean "not set" so that settings from several sources can
// be merged.
type Settings struct {
	Workers             int
	TimestampResolution time.Duration
	EqualIsFresh        *bool
	VerifyOutputs       *bool
	RetryInterval       time.Duration
	Cluster             *ClusterSettings
}

// ClusterSettings configure the batch scheduler used by cluster tasks.
type ClusterSettings struct {
	SubmitCommand   string
	SubmitArgs      []string
	StatusCommand   string
	StatusArgs      []string
	WorkDir         string
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	GracePeriod     time.Duration
	MaxWait         time.Duration
}

// Artifact is the format-agnostic representation of an `artifact` block.
// Exactly one of Path and URL is set.
type Artifact struct {
	Name       string
	Path       string
	URL        string
	ReadOnly   bool
	Attributes map[string]any
	// Source is where the artifact was declared, for error messages.
	Source string
}

// Task is the format-agnostic representation of a `task` block. Inputs and
// Outputs map roles to artifact names.
type Task struct {
	Name        string
	Strategy    string
	Inputs      map[string]string
	Outputs     map[string]string
	Params      map[string]any
	Command     string
	Script      string
	Handler     string
	Distributed bool
	Retries     uint64
	Timeout     time.Duration
	Attributes  map[string]any
	Source      string
}

// Artifact returns the artifact declared under name.
func (m *Model) Artifact(name string) (*Artifact, bool) {
	for _, a := range m.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Task returns the task declared under name.
func (m *Model) Task(name string) (*Task, bool) {
	for _, t := range m.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Merge appends the artifacts and tasks of other to m. Settings from other
// fill in whatever m leaves unset.
func (m *Model) Merge(other *Model) {
	m.Artifacts = append(m.Artifacts, other.Artifacts...)
	m.Tasks = append(m.Tasks, other.Tasks...)
	if m.Settings.Workers == 0 {
		m.Settings.Workers = other.Settings.Workers
	}
	if m.Settings.TimestampResolution == 0 {
		m.Settings.TimestampResolution = other.Settings.TimestampResolution
	}
	if m.Settings.EqualIsFresh == nil {
		m.Settings.EqualIsFresh = other.Settings.EqualIsFresh
	}
	if m.Settings.VerifyOutputs == nil {
		m.Settings.VerifyOutputs = other.Settings.VerifyOutputs
	}
	if m.Settings.RetryInterval == 0 {
		m.Settings.RetryInterval = other.Settings.RetryInterval
	}
	if m.Settings.Cluster == nil {
		m.Settings.Cluster = other.Settings.Cluster
	}
}

// Validate checks that names are unique and that every task refers to
// declared artifacts. It reports every problem it finds.
func (m *Model) Validate() error {
	var errs []error

	artifacts := make(map[string]bool, len(m.Artifacts))
	for _, a := range m.Artifacts {
		switch {
		case artifacts[a.Name]:
			errs = append(errs, fmt.Errorf("%s: artifact %q declared more than once", a.Source, a.Name))
		case (a.Path == "") == (a.URL == ""):
			errs = append(errs, fmt.Errorf("%s: artifact %q needs exactly one of path or url", a.Source, a.Name))
		}
		artifacts[a.Name] = true
	}

	tasks := make(map[string]bool, len(m.Tasks))
	for _, t := range m.Tasks {
		if tasks[t.Name] {
			errs = append(errs, fmt.Errorf("%s: task %q declared more than once", t.Source, t.Name))
		}
		tasks[t.Name] = true
		for _, role := range slices.Sorted(maps.Keys(t.Inputs)) {
			if !artifacts[t.Inputs[role]] {
				errs = append(errs, fmt.Errorf("%s: task %q input %q refers to undeclared artifact %q", t.Source, t.Name, role, t.Inputs[role]))
			}
		}
		for _, role := range slices.Sorted(maps.Keys(t.Outputs)) {
			if !artifacts[t.Outputs[role]] {
				errs = append(errs, fmt.Errorf("%s: task %q output %q refers to undeclared artifact %q", t.Source, t.Name, role, t.Outputs[role]))
			}
		}
	}
	return errors.Join(errs...)
}
