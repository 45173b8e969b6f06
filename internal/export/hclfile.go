package export

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/stalegrid/internal/config"
	stalehcl "github.com/specialistvlad/stalegrid/internal/hcl"
)

// HCL writes m as a workflow file the hcl package can load again. Task
// inputs and outputs are written as artifact.<name> references. Commands
// are written as rendered, with template sequences escaped.
func HCL(w io.Writer, m *config.Model) error {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	if err := writeEngine(body, m.Settings); err != nil {
		return err
	}
	for _, a := range m.Artifacts {
		ab := body.AppendNewBlock("artifact", []string{a.Name}).Body()
		if a.Path != "" {
			ab.SetAttributeValue("path", cty.StringVal(a.Path))
		}
		if a.URL != "" {
			ab.SetAttributeValue("url", cty.StringVal(a.URL))
		}
		if a.ReadOnly {
			ab.SetAttributeValue("read_only", cty.True)
		}
		if err := setMap(ab, "attributes", a.Attributes); err != nil {
			return fmt.Errorf("artifact %q: %w", a.Name, err)
		}
		body.AppendNewline()
	}
	for _, t := range m.Tasks {
		if err := writeTask(body, t); err != nil {
			return fmt.Errorf("task %q: %w", t.Name, err)
		}
	}

	_, err := f.WriteTo(w)
	return err
}

func writeEngine(body *hclwrite.Body, s config.Settings) error {
	if s.Workers == 0 && s.TimestampResolution == 0 && s.EqualIsFresh == nil &&
		s.VerifyOutputs == nil && s.RetryInterval == 0 && s.Cluster == nil {
		return nil
	}

	eb := body.AppendNewBlock("engine", nil).Body()
	if s.Workers != 0 {
		eb.SetAttributeValue("workers", cty.NumberIntVal(int64(s.Workers)))
	}
	setDuration(eb, "timestamp_resolution", s.TimestampResolution)
	if s.EqualIsFresh != nil {
		eb.SetAttributeValue("equal_is_fresh", cty.BoolVal(*s.EqualIsFresh))
	}
	if s.VerifyOutputs != nil {
		eb.SetAttributeValue("verify_outputs", cty.BoolVal(*s.VerifyOutputs))
	}
	setDuration(eb, "retry_interval", s.RetryInterval)
	if c := s.Cluster; c != nil {
		cb := eb.AppendNewBlock("cluster", nil).Body()
		if c.SubmitCommand != "" {
			cb.SetAttributeValue("submit_command", cty.StringVal(c.SubmitCommand))
		}
		setStrings(cb, "submit_args", c.SubmitArgs)
		if c.StatusCommand != "" {
			cb.SetAttributeValue("status_command", cty.StringVal(c.StatusCommand))
		}
		setStrings(cb, "status_args", c.StatusArgs)
		if c.WorkDir != "" {
			cb.SetAttributeValue("work_dir", cty.StringVal(c.WorkDir))
		}
		setDuration(cb, "poll_interval", c.PollInterval)
		setDuration(cb, "max_poll_interval", c.MaxPollInterval)
		setDuration(cb, "grace_period", c.GracePeriod)
		setDuration(cb, "max_wait", c.MaxWait)
	}
	body.AppendNewline()
	return nil
}

func setStrings(body *hclwrite.Body, name string, values []string) {
	if len(values) == 0 {
		return
	}
	vals := make([]cty.Value, len(values))
	for i, v := range values {
		vals[i] = cty.StringVal(v)
	}
	body.SetAttributeValue(name, cty.ListVal(vals))
}

func writeTask(body *hclwrite.Body, t *config.Task) error {
	tb := body.AppendNewBlock("task", []string{t.Name}).Body()
	if t.Strategy != "" {
		tb.SetAttributeValue("strategy", cty.StringVal(t.Strategy))
	}
	if t.Handler != "" {
		tb.SetAttributeValue("handler", cty.StringVal(t.Handler))
	}
	if t.Distributed {
		tb.SetAttributeValue("distributed", cty.True)
	}
	setRefs(tb, "inputs", t.Inputs)
	setRefs(tb, "outputs", t.Outputs)
	if err := setMap(tb, "parameters", t.Params); err != nil {
		return err
	}
	if t.Command != "" {
		tb.SetAttributeValue("command", cty.StringVal(t.Command))
	}
	if t.Script != "" {
		tb.SetAttributeValue("script", cty.StringVal(t.Script))
	}
	if t.Retries > 0 {
		tb.SetAttributeValue("retries", cty.NumberUIntVal(t.Retries))
	}
	setDuration(tb, "timeout", t.Timeout)
	if err := setMap(tb, "attributes", t.Attributes); err != nil {
		return err
	}
	body.AppendNewline()
	return nil
}

// setRefs writes a role map as { role = artifact.<name> }.
func setRefs(body *hclwrite.Body, name string, refs map[string]string) {
	if len(refs) == 0 {
		return
	}
	var attrs []hclwrite.ObjectAttrTokens
	for _, role := range slices.Sorted(maps.Keys(refs)) {
		attrs = append(attrs, hclwrite.ObjectAttrTokens{
			Name:  keyTokens(role),
			Value: refTokens(refs[role]),
		})
	}
	body.SetAttributeRaw(name, hclwrite.TokensForObject(attrs))
}

func refTokens(artifactName string) hclwrite.Tokens {
	if !hclsyntax.ValidIdentifier(artifactName) {
		return hclwrite.TokensForValue(cty.StringVal(artifactName))
	}
	return hclwrite.TokensForTraversal(hcl.Traversal{
		hcl.TraverseRoot{Name: "artifact"},
		hcl.TraverseAttr{Name: artifactName},
	})
}

func keyTokens(key string) hclwrite.Tokens {
	if hclsyntax.ValidIdentifier(key) {
		return hclwrite.TokensForIdentifier(key)
	}
	return hclwrite.TokensForValue(cty.StringVal(key))
}

func setMap(body *hclwrite.Body, name string, m map[string]any) error {
	if len(m) == 0 {
		return nil
	}
	val, err := stalehcl.ToCtyValue(m)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	body.SetAttributeValue(name, val)
	return nil
}

func setDuration(body *hclwrite.Body, name string, d time.Duration) {
	if d > 0 {
		body.SetAttributeValue(name, cty.StringVal(d.String()))
	}
}
