package domain

import (
	"encoding/json"
	"fmt"
)

// ModuleConfig is the typed shape of a module's config_data column. The
// source of truth on the wire is JSON; unknown fields survive a load/store
// round trip via Extra instead of being dropped.
type ModuleConfig struct {
	Prompt     string
	Input      string
	Keys       []string
	KeyConfigs map[string]KeyConfig
	Separator  string
	Preprocess []PreprocessStep
	AssignData *AssignData

	Extra map[string]json.RawMessage
}

// KeyConfig describes one template key and its current value.
type KeyConfig struct {
	DisplayName string `json:"displayName"`
	Hint        string `json:"hint"`
	Value       string `json:"value"`
}

// PreprocessStep is one synchronous LLM call executed before a run. Its
// response overwrites KeyConfigs[OutputKey].Value.
type PreprocessStep struct {
	InputKeys []string `json:"inputKeys"`
	Prompt    string   `json:"prompt"`
	Model     string   `json:"model"`
	OutputKey string   `json:"outputKey"`
}

// AssignData points a module at previously saved data rows as its input
// source. Tags is a comma-separated list matched against data_v2.tags.
type AssignData struct {
	DatastoreID string `json:"datastoreId"`
	IsRaw       bool   `json:"isRaw"`
	Tags        string `json:"tags"`
}

// EmptyModuleConfig returns the config written by create/reset when no
// template is given.
func EmptyModuleConfig() ModuleConfig {
	return ModuleConfig{
		Keys:       []string{},
		KeyConfigs: map[string]KeyConfig{},
		Preprocess: []PreprocessStep{},
	}
}

// ConfigFromTemplate seeds a module config from template data: keys keep
// their display metadata with empty values, prompt/separator/preprocess are
// copied, input starts empty.
func ConfigFromTemplate(t ModuleConfig) ModuleConfig {
	cfg := ModuleConfig{
		Prompt:     t.Prompt,
		Keys:       append([]string{}, t.Keys...),
		KeyConfigs: make(map[string]KeyConfig, len(t.Keys)),
		Separator:  t.Separator,
		Preprocess: append([]PreprocessStep{}, t.Preprocess...),
	}
	for _, k := range t.Keys {
		kc := t.KeyConfigs[k]
		cfg.KeyConfigs[k] = KeyConfig{DisplayName: kc.DisplayName, Hint: kc.Hint, Value: ""}
	}
	return cfg
}

var knownConfigFields = map[string]bool{
	"prompt": true, "input": true, "keys": true, "keyConfigs": true,
	"separator": true, "preprocess": true, "assignData": true,
}

// UnmarshalJSON parses the recognised fields and stashes everything else in
// Extra. A missing or empty assignData object is treated as absent.
func (c *ModuleConfig) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("op=moduleconfig.unmarshal: %w", err)
	}
	*c = ModuleConfig{}
	for field, dst := range map[string]any{
		"prompt":     &c.Prompt,
		"input":      &c.Input,
		"keys":       &c.Keys,
		"keyConfigs": &c.KeyConfigs,
		"separator":  &c.Separator,
		"preprocess": &c.Preprocess,
	} {
		if v, ok := raw[field]; ok {
			if err := json.Unmarshal(v, dst); err != nil {
				return fmt.Errorf("op=moduleconfig.unmarshal field=%s: %w", field, err)
			}
		}
	}
	if v, ok := raw["assignData"]; ok {
		var ad AssignData
		if err := json.Unmarshal(v, &ad); err != nil {
			return fmt.Errorf("op=moduleconfig.unmarshal field=assignData: %w", err)
		}
		if ad.DatastoreID != "" {
			c.AssignData = &ad
		}
	}
	for k, v := range raw {
		if !knownConfigFields[k] {
			if c.Extra == nil {
				c.Extra = map[string]json.RawMessage{}
			}
			c.Extra[k] = v
		}
	}
	if c.Keys == nil {
		c.Keys = []string{}
	}
	if c.KeyConfigs == nil {
		c.KeyConfigs = map[string]KeyConfig{}
	}
	if c.Preprocess == nil {
		c.Preprocess = []PreprocessStep{}
	}
	return nil
}

// MarshalJSON emits the canonical field set plus any preserved extras.
func (c ModuleConfig) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"prompt":     c.Prompt,
		"input":      c.Input,
		"keys":       c.Keys,
		"keyConfigs": c.KeyConfigs,
		"separator":  c.Separator,
		"preprocess": c.Preprocess,
	}
	if c.Keys == nil {
		out["keys"] = []string{}
	}
	if c.KeyConfigs == nil {
		out["keyConfigs"] = map[string]KeyConfig{}
	}
	if c.Preprocess == nil {
		out["preprocess"] = []PreprocessStep{}
	}
	if c.AssignData != nil {
		out["assignData"] = c.AssignData
	} else {
		out["assignData"] = map[string]any{}
	}
	for k, v := range c.Extra {
		out[k] = v
	}
	return json.Marshal(out)
}
