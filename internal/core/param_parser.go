package core

import (
	"fmt"
	"regexp"
	"strings"
)

// SQLParser turns named placeholders {var} or {var:default} into positional ?
// markers, which is the only binding style every ODBC driver accepts.
type SQLParser struct {
	regex *regexp.Regexp
}

func NewSQLParser() *SQLParser {
	return &SQLParser{
		regex: regexp.MustCompile(`\{([a-zA-Z0-9_]+)(?::([^{}]*))?\}`),
	}
}

// ParseResult contains the transformed SQL and the list of parameter names in order
type ParseResult struct {
	SQL        string
	ParamNames []string
	Defaults   map[string]string
}

func (p *SQLParser) Parse(sqlText string) *ParseResult {
	res := &ParseResult{
		ParamNames: []string{},
		Defaults:   map[string]string{},
	}

	res.SQL = p.regex.ReplaceAllStringFunc(sqlText, func(match string) string {
		sub := p.regex.FindStringSubmatch(match)
		name := sub[1]
		res.ParamNames = append(res.ParamNames, name)
		if strings.Contains(match, ":") {
			res.Defaults[name] = sub[2]
		}
		return "?"
	})

	return res
}

// MapValues returns the values for paramNames in order. Names absent from
// values fall back to defaults; anything still missing is reported at once.
func (p *SQLParser) MapValues(paramNames []string, values map[string]any, defaults map[string]string) ([]any, error) {
	result := make([]any, len(paramNames))
	var missing []string

	for i, name := range paramNames {
		if val, ok := values[name]; ok {
			result[i] = val
			continue
		}
		if def, ok := defaults[name]; ok {
			result[i] = def
			continue
		}
		missing = append(missing, name)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing parameters: %s", strings.Join(missing, ", "))
	}

	return result, nil
}
