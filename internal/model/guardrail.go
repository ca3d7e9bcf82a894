package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decision 是护栏或阶段的判定结果。
type Decision string

const (
	DecisionPassed  Decision = "passed"
	DecisionFlagged Decision = "flagged"
	DecisionBlocked Decision = "blocked"
)

// Stage 标识护栏作用于输入还是输出。
type Stage string

const (
	StageInput  Stage = "input"
	StageOutput Stage = "output"
)

// CheckOutcome 是一个命名检查的结果。
type CheckOutcome struct {
	Name   string
	Passed bool
}

// Checks 是按评估顺序保存的检查结果。
// JSON 编码为对象，键的顺序与评估顺序一致。
type Checks []CheckOutcome

// Get 返回指定检查的结果，第二个返回值表示该检查是否执行过。
func (c Checks) Get(name string) (passed, ok bool) {
	for _, o := range c {
		if o.Name == name {
			return o.Passed, true
		}
	}
	return false, false
}

// Failed 返回所有未通过检查的名称。
func (c Checks) Failed() []string {
	var names []string
	for _, o := range c {
		if !o.Passed {
			names = append(names, o.Name)
		}
	}
	return names
}

// MarshalJSON 按评估顺序输出对象键。
func (c Checks) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, o := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(o.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		if o.Passed {
			buf.WriteString(":true")
		} else {
			buf.WriteString(":false")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 读取对象并保留键的原始顺序。
func (c *Checks) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("checks: expected object, got %v", tok)
	}
	out := Checks{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("checks: invalid key %v", keyTok)
		}
		var passed bool
		if err := dec.Decode(&passed); err != nil {
			return fmt.Errorf("checks: value of %q: %w", key, err)
		}
		out = append(out, CheckOutcome{Name: key, Passed: passed})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}

// GuardrailResult 是一次护栏评估的结果，Decision 只计算一次。
type GuardrailResult struct {
	Stage    Stage             `json:"stage"`
	Checks   Checks            `json:"checks"`
	Decision Decision          `json:"decision"`
	Details  map[string]string `json:"details,omitempty"`
}
