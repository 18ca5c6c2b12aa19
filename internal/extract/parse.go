package extract

import (
	"encoding/json"
	"strings"
)

// recoverJSONFragment salvages the first JSON array or object embedded in a
// response that carried extra prose around it. Returns the fragment that
// unmarshalled successfully.
func recoverJSONFragment(s string, out any) (string, bool) {
	for _, pair := range [][2]string{{"[", "]"}, {"{", "}"}} {
		start := strings.Index(s, pair[0])
		end := strings.LastIndex(s, pair[1])
		if start < 0 || end <= start {
			continue
		}
		fragment := s[start : end+1]
		if err := json.Unmarshal([]byte(fragment), out); err == nil {
			return fragment, true
		}
	}
	return "", false
}
