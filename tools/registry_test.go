package tools

import (
	"context"
	"testing"
)

type stubTool struct {
	name   string
	result Result
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (s *stubTool) Execute(_ context.Context, _ map[string]any, _ *Context) Result {
	return s.result
}

func TestRegistryRegisterGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "read_file"})

	if tool := r.Get("read_file"); tool == nil || tool.Name() != "read_file" {
		t.Fatalf("Get(read_file) = %v", tool)
	}
	if tool := r.Get("nope"); tool != nil {
		t.Errorf("Get(nope) = %v, want nil", tool)
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d", r.Count())
	}
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "write_file"})
	r.Register(&stubTool{name: "read_file"})
	r.Register(&stubTool{name: "run_command"})

	defs := r.Definitions()
	want := []string{"read_file", "run_command", "write_file"}
	if len(defs) != len(want) {
		t.Fatalf("len(defs) = %d", len(defs))
	}
	for i, name := range want {
		if defs[i].Function.Name != name {
			t.Errorf("defs[%d] = %q, want %q", i, defs[i].Function.Name, name)
		}
		if defs[i].Type != "function" {
			t.Errorf("defs[%d].Type = %q", i, defs[i].Type)
		}
	}
}

func TestRegistryExecuteUnknown(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "missing", nil, &Context{})
	if res.Success {
		t.Fatal("unknown tool must fail")
	}
	if res.Error != "unknown tool: missing" {
		t.Errorf("error = %q", res.Error)
	}
}

func TestParseArguments(t *testing.T) {
	if args := ParseArguments(`{"command":"ls","n":3,"flag":true}`); len(args) != 3 {
		t.Errorf("args = %v", args)
	} else {
		if s, _ := StringArg(args, "command"); s != "ls" {
			t.Errorf("command = %q", s)
		}
		if n, _ := IntArg(args, "n"); n != 3 {
			t.Errorf("n = %d", n)
		}
		if b, _ := BoolArg(args, "flag"); !b {
			t.Error("flag = false")
		}
	}

	// Malformed arguments recover as empty, never abort.
	for _, raw := range []string{"", "not json", "null", `"str"`} {
		args := ParseArguments(raw)
		if args == nil || len(args) != 0 {
			t.Errorf("ParseArguments(%q) = %v, want empty map", raw, args)
		}
	}
}
