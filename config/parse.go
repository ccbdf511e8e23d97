package config

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/turbot/pipe-fittings/error_helpers"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// ParseConfig decodes HCL config into target. Environment variables are available to
// expressions as env.NAME
func ParseConfig[T any](configString []byte, filename string, env map[string]string, target *T) error {
	// parse the config
	file, diags := hclsyntax.ParseConfig(configString, filename, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return error_helpers.HclDiagsToError("failed to parse config", diags)
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": envObject(env),
		},
		Functions: make(map[string]function.Function),
	}
	// decode the body into the target struct
	moreDiags := gohcl.DecodeBody(file.Body, evalCtx, target)
	diags = append(diags, moreDiags...)
	if diags.HasErrors() {
		return error_helpers.HclDiagsToError("failed to decode config", diags)
	}
	return nil
}

func envObject(env map[string]string) cty.Value {
	vals := make(map[string]cty.Value, len(env))
	for k, v := range env {
		vals[k] = cty.StringVal(v)
	}
	return cty.ObjectVal(vals)
}
