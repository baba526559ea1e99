package lua

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/devpilot/internal/integration/output"
)

// ClassifyFunc is the global function a rules script must define.
const ClassifyFunc = "classify"

// ScriptRule is an output.Rule backed by a Lua classify function.
type ScriptRule struct {
	state *State
	name  string

	// OnError, if set, receives script failures. The line still falls through.
	OnError func(err error)
}

// LoadRuleFile loads a rules script from path.
func LoadRuleFile(path string, opts ...StateOption) (*ScriptRule, error) {
	s := NewState(opts...)
	if err := s.DoFile(path); err != nil {
		s.Close()
		return nil, fmt.Errorf("load rules %s: %w", path, err)
	}
	return newScriptRule(s, path)
}

// LoadRuleString loads a rules script from source.
func LoadRuleString(name, code string, opts ...StateOption) (*ScriptRule, error) {
	s := NewState(opts...)
	if err := s.DoString(code); err != nil {
		s.Close()
		return nil, fmt.Errorf("load rules %s: %w", name, err)
	}
	return newScriptRule(s, name)
}

func newScriptRule(s *State, name string) (*ScriptRule, error) {
	if !s.HasFunction(ClassifyFunc) {
		s.Close()
		return nil, fmt.Errorf("rules %s: missing %s(line) function", name, ClassifyFunc)
	}
	return &ScriptRule{state: s, name: name}, nil
}

// Name returns "lua:<name>".
func (r *ScriptRule) Name() string {
	return "lua:" + r.name
}

// Classify calls classify(line). The script may return nil, a level name,
// or a table with level and message fields.
func (r *ScriptRule) Classify(line string) (output.Classification, bool) {
	ret, err := r.state.Call(ClassifyFunc, lua.LString(line))
	if err != nil {
		r.report(err)
		return output.Classification{}, false
	}

	msg := strings.TrimSpace(line)
	var levelName string
	switch v := ret.(type) {
	case lua.LString:
		levelName = string(v)
	case *lua.LTable:
		if lv, ok := v.RawGetString("level").(lua.LString); ok {
			levelName = string(lv)
		}
		if m, ok := v.RawGetString("message").(lua.LString); ok {
			msg = string(m)
		}
	default:
		return output.Classification{}, false
	}

	if strings.TrimSpace(levelName) == "" {
		return output.Classification{}, false
	}
	level, err := output.ParseLevel(levelName)
	if err != nil {
		r.report(err)
		return output.Classification{}, false
	}
	if level == output.LevelAll {
		return output.Classification{}, false
	}
	return output.Classification{Level: level, Message: msg}, true
}

func (r *ScriptRule) report(err error) {
	if r.OnError != nil {
		r.OnError(fmt.Errorf("%s: %w", r.Name(), err))
	}
}

// Close releases the underlying Lua state.
func (r *ScriptRule) Close() {
	r.state.Close()
}
