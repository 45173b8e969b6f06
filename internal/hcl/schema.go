package hcl

import (
	"github.com/hashicorp/hcl/v2"
)

// fileRoot decodes all top-level blocks of a workflow file.
type fileRoot struct {
	Engines   []*engineBlock   `hcl:"engine,block"`
	Artifacts []*artifactBlock `hcl:"artifact,block"`
	Tasks     []*taskBlock     `hcl:"task,block"`
}

type engineBlock struct {
	Workers             *int          `hcl:"workers,optional"`
	TimestampResolution *string       `hcl:"timestamp_resolution,optional"`
	EqualIsFresh        *bool         `hcl:"equal_is_fresh,optional"`
	VerifyOutputs       *bool         `hcl:"verify_outputs,optional"`
	RetryInterval       *string       `hcl:"retry_interval,optional"`
	Cluster             *clusterBlock `hcl:"cluster,block"`
}

type clusterBlock struct {
	SubmitCommand   *string  `hcl:"submit_command,optional"`
	SubmitArgs      []string `hcl:"submit_args,optional"`
	StatusCommand   *string  `hcl:"status_command,optional"`
	StatusArgs      []string `hcl:"status_args,optional"`
	WorkDir         *string  `hcl:"work_dir,optional"`
	PollInterval    *string  `hcl:"poll_interval,optional"`
	MaxPollInterval *string  `hcl:"max_poll_interval,optional"`
	GracePeriod     *string  `hcl:"grace_period,optional"`
	MaxWait         *string  `hcl:"max_wait,optional"`
}

type artifactBlock struct {
	Name       string         `hcl:"name,label"`
	Path       *string        `hcl:"path,optional"`
	URL        *string        `hcl:"url,optional"`
	ReadOnly   *bool          `hcl:"read_only,optional"`
	Attributes hcl.Expression `hcl:"attributes,optional"`
	DeclRange  hcl.Range      `hcl:",def_range"`
}

// taskBlock keeps expressions that depend on artifacts undecoded until
// every file has been read.
type taskBlock struct {
	Name        string         `hcl:"name,label"`
	Strategy    *string        `hcl:"strategy,optional"`
	Inputs      hcl.Expression `hcl:"inputs,optional"`
	Outputs     hcl.Expression `hcl:"outputs,optional"`
	Parameters  hcl.Expression `hcl:"parameters,optional"`
	Command     hcl.Expression `hcl:"command,optional"`
	Script      hcl.Expression `hcl:"script,optional"`
	Handler     *string        `hcl:"handler,optional"`
	Distributed *bool          `hcl:"distributed,optional"`
	Retries     *int           `hcl:"retries,optional"`
	Timeout     *string        `hcl:"timeout,optional"`
	Attributes  hcl.Expression `hcl:"attributes,optional"`
	DeclRange   hcl.Range      `hcl:",def_range"`
}
