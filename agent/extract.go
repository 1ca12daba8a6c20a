package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ferretworks/ferret/llm"
)

// Some gateways put tool intentions into the unstructured reasoning
// channel instead of structured tool_calls. Recovery runs two ordered
// strategies: scrape the first flat JSON object, then match intent
// phrases. When both fail the caller treats the reasoning as content.

var flatObjectRe = regexp.MustCompile(`\{[^{}]+\}`)

// ScrapeJSONCall extracts a tool call from the first brace-delimited JSON
// object in the reasoning text, mapping its keys to a tool name by fixed
// precedence. Returns nil when nothing parseable or recognizable is found.
func ScrapeJSONCall(reasoning string, iteration int) []llm.ToolCall {
	match := flatObjectRe.FindString(reasoning)
	if match == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(match), &obj); err != nil {
		return nil
	}

	// A cursor or id refers to a previous search result.
	for _, key := range []string{"cursor", "id"} {
		if v, ok := obj[key]; ok {
			args, _ := json.Marshal(map[string]any{"result_id": v})
			return syntheticCall("fetch_page", string(args), reasoningID(iteration))
		}
	}

	keyTools := []struct {
		key  string
		tool string
	}{
		{"command", "run_command"},
		{"query", "search_web"},
		{"url", "fetch_page"},
		{"path", "read_file"},
	}
	for _, kt := range keyTools {
		if _, ok := obj[kt.key]; ok {
			args, _ := json.Marshal(obj)
			return syntheticCall(kt.tool, string(args), reasoningID(iteration))
		}
	}
	return nil
}

type intentPattern struct {
	phrase   string
	tool     string
	defaults map[string]any
}

// Ordered; the first phrase found in the reasoning wins.
var intentPatterns = []intentPattern{
	{"let's list", "list_directory", map[string]any{"path": "."}},
	{"list dir", "list_directory", map[string]any{"path": "."}},
	{"let's check", "list_directory", map[string]any{"path": "."}},
	{"let's send", "send_file", nil},
	{"send the file", "send_file", nil},
	{"let's read", "read_file", nil},
	{"let's search", "search_web", nil},
	{"let's fetch", "fetch_page", nil},
}

var (
	workspacePathRe = regexp.MustCompile(`(/workspace/[^\s"']+\.(?:pptx|pdf|txt|py|json|md|html))`)
	bareFileRe      = regexp.MustCompile(`([A-Za-z0-9_-]+\.pptx)`)
	searchQueryRe   = regexp.MustCompile(`(?i)search(?:ing)?\s+for\s+"([^"]+)"`)
)

// MatchIntentCall scans the reasoning for a known intent phrase and tries
// to complete the tool's arguments from path or query tokens in the text.
// A matched phrase without completable arguments yields nil.
func MatchIntentCall(reasoning string, iteration int) []llm.ToolCall {
	lower := strings.ToLower(reasoning)
	for _, pattern := range intentPatterns {
		if !strings.Contains(lower, pattern.phrase) {
			continue
		}

		args := map[string]any{}
		for k, v := range pattern.defaults {
			args[k] = v
		}
		if m := workspacePathRe.FindStringSubmatch(reasoning); m != nil {
			args["path"] = m[1]
		} else if pattern.tool == "send_file" {
			if m := bareFileRe.FindStringSubmatch(reasoning); m != nil {
				args["path"] = m[1]
			}
		}
		if pattern.tool == "search_web" {
			if m := searchQueryRe.FindStringSubmatch(reasoning); m != nil {
				args["query"] = m[1]
			}
		}

		if len(args) == 0 && pattern.tool != "list_directory" {
			return nil
		}
		raw, _ := json.Marshal(args)
		return syntheticCall(pattern.tool, string(raw), intentID(iteration))
	}
	return nil
}

func syntheticCall(tool, arguments, id string) []llm.ToolCall {
	return []llm.ToolCall{{
		ID:   id,
		Type: "function",
		Function: llm.FunctionCall{
			Name:      tool,
			Arguments: arguments,
		},
	}}
}

func reasoningID(iteration int) string {
	return fmt.Sprintf("reasoning_%d", iteration)
}

func intentID(iteration int) string {
	return fmt.Sprintf("intent_%d", iteration)
}
