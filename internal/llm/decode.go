package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ExtractJSONCandidates scans the input for top-level JSON object
// candidates. It handles nested braces and string escaping to correctly
// identify boundaries.
//
// Note: it is safe to iterate bytes for ASCII delimiters ({, }, ", \)
// because UTF-8 guarantees ASCII bytes never appear inside a multi-byte
// sequence.
func ExtractJSONCandidates(s string) []string {
	var candidates []string
	var depth int
	var start = -1
	var inString bool
	var escape bool

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}

		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}

		if b == '"' {
			inString = true
			continue
		}

		if b == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if b == '}' {
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidates = append(candidates, s[start:i+1])
					start = -1
				}
			}
		}
	}

	return candidates
}

// stripMarkdownFence removes ```json ... ``` wrapping if present.
func stripMarkdownFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DecodeInto parses a JSON object out of raw LLM output into v. It tries
// direct parsing first, then markdown-fence stripping, then embedded
// object candidates largest-first. Models routinely wrap JSON in prose or
// code fences; callers must still validate field contents.
func DecodeInto(raw string, v interface{}) error {
	s := strings.TrimSpace(raw)

	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	if err := json.Unmarshal([]byte(stripMarkdownFence(s)), v); err == nil {
		return nil
	}

	// Largest-first: the full reply object beats fragments quoted in the
	// surrounding prose, wherever each appears.
	candidates := ExtractJSONCandidates(s)
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})
	for _, candidate := range candidates {
		if err := json.Unmarshal([]byte(candidate), v); err == nil {
			return nil
		}
	}

	return fmt.Errorf("no valid JSON object found in response")
}
