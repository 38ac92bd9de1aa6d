// Package script reads and writes comparison scripts: plain SQL files where
// commented-out statements stay in the file and can be toggled back on.
package script

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"odbcref/internal/core"
)

const (
	// SmallintTable is the reference statement every comparison starts from.
	SmallintTable = "CREATE TABLE test_smallint_s (id INTEGER PRIMARY KEY NOT NULL, val SMALLINT NOT NULL )"
	IntTable      = "CREATE TABLE test_int (id INTEGER PRIMARY KEY NOT NULL, val INT NOT NULL)"
	DropIntTable  = "DROP TABLE test_int"
)

var (
	statementStart = regexp.MustCompile(`(?i)^(create|drop|alter|insert|update|delete|select|with|grant|revoke|truncate|commit|rollback)\b`)
	createTable    = regexp.MustCompile(`(?i)^create\s+table\s+(?:if\s+not\s+exists\s+)?([A-Za-z0-9_."]+)`)
)

// Default returns the reference script with only the smallint table enabled.
func Default() *core.Script {
	return &core.Script{Statements: []core.Statement{
		{SQL: SmallintTable, Enabled: true},
		{SQL: IntTable},
		{SQL: DropIntTable},
	}}
}

// Parse reads a script. A statement runs until its ';'. A line without one
// ends the statement only when its parentheses balance and the next line
// starts a new statement, so the one-statement-per-line form still works.
// Lines starting with '#' or '--' hold disabled statements when the text after
// the marker starts with a SQL keyword; inside a disabled statement every
// commented line continues it. Other commented lines are plain comments.
func Parse(r io.Reader) (*core.Script, error) {
	s := &core.Script{}

	var (
		buf     strings.Builder
		enabled bool
		depth   int
		lineNo  int
	)

	flush := func() {
		sql := strings.TrimSpace(buf.String())
		sql = strings.TrimSpace(strings.TrimRight(sql, ";"))
		if sql != "" {
			s.Statements = append(s.Statements, core.Statement{SQL: sql, Enabled: enabled})
		}
		buf.Reset()
		depth = 0
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		text, commented := stripComment(line)
		starts := statementStart.MatchString(text)
		if buf.Len() > 0 && depth <= 0 && starts {
			flush()
		}
		pending := buf.Len() > 0

		switch {
		case !pending && commented && !starts:
			continue
		case !pending:
			enabled = !commented
		case enabled && commented:
			continue
		case !enabled && !commented:
			return nil, fmt.Errorf("line %d: statement continues across a commented and an uncommented line", lineNo)
		default:
			buf.WriteByte(' ')
		}

		for _, p := range splitStatements(text) {
			buf.WriteString(p.text)
			depth += p.depth
			if p.terminated {
				flush()
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if depth > 0 {
		return nil, fmt.Errorf("line %d: unbalanced parentheses at end of script", lineNo)
	}
	flush()
	return s, nil
}

// Toggle enables or disables the statement at the 1-based index.
func Toggle(s *core.Script, index int, enabled bool) error {
	if index < 1 || index > len(s.Statements) {
		return fmt.Errorf("statement %d out of range (script has %d)", index, len(s.Statements))
	}
	s.Statements[index-1].Enabled = enabled
	return nil
}

// Format writes s in a form Parse reads back unchanged.
func Format(w io.Writer, s *core.Script) error {
	for _, st := range s.Statements {
		prefix := ""
		if !st.Enabled {
			prefix = "#"
		}
		if _, err := fmt.Fprintf(w, "%s%s;\n", prefix, st.SQL); err != nil {
			return err
		}
	}
	return nil
}

// CreatedTables returns the table names created by the enabled statements.
func CreatedTables(s *core.Script) []string {
	var names []string
	for _, st := range s.Enabled() {
		if m := createTable.FindStringSubmatch(st.SQL); m != nil {
			names = append(names, strings.Trim(m[1], `"`))
		}
	}
	return names
}

func stripComment(line string) (string, bool) {
	switch {
	case strings.HasPrefix(line, "#"):
		return strings.TrimSpace(strings.TrimLeft(line, "#")), true
	case strings.HasPrefix(line, "--"):
		return strings.TrimSpace(strings.TrimLeft(line, "-")), true
	}
	return line, false
}

type piece struct {
	text       string
	depth      int
	terminated bool
}

// splitStatements splits a line after every ';' outside quotes, keeping the
// terminator on each piece. Parentheses are counted outside quotes only.
func splitStatements(line string) []piece {
	var (
		pieces []piece
		quote  rune
		start  int
		depth  int
	)
	for i, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == ';':
			pieces = append(pieces, piece{text: line[start : i+1], depth: depth, terminated: true})
			start, depth = i+1, 0
		}
	}
	if rest := strings.TrimSpace(line[start:]); rest != "" {
		pieces = append(pieces, piece{text: rest, depth: depth})
	}
	return pieces
}
