package provider

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// ParseJSON decodes the first JSON object in a model response. Markdown
// fences and prose around the object are tolerated. Numbers are kept as
// json.Number so amounts keep their precision.
func ParseJSON(text string) (map[string]any, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, ErrEmptyResponse
	}
	if m, err := decodeObject(s); err == nil {
		return m, nil
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, eris.New("provider: no JSON object in response")
	}
	m, err := decodeObject(s[start : end+1])
	if err != nil {
		return nil, eris.Wrap(err, "provider: decode response JSON")
	}
	return m, nil
}

func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, eris.New("provider: response is not an object")
	}
	return m, nil
}
