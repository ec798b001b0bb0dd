package sbp

import (
	"strconv"
	"strings"
)

// Kind identifies the form of a Statement.
type Kind byte

const (
	// KindAssign is a variable assignment like `&Tool=3`.
	KindAssign Kind = iota
	// KindCall runs a custom cut routine like `C71`.
	KindCall
	// KindCommand is a two-letter command with optional arguments like `MZ,1`.
	KindCommand
)

// A Statement is a single OpenSBP line.
type Statement struct {
	Kind Kind
	Name string
	Args []string
}

// Assign returns a statement setting the variable name (without the leading &) to val.
func Assign(name string, val float64) Statement {
	return Statement{Kind: KindAssign, Name: name, Args: []string{formatFloat(val, 4)}}
}

// Call returns a statement invoking custom cut n.
func Call(n int) Statement {
	return Statement{Kind: KindCall, Name: "C" + strconv.Itoa(n)}
}

// Command returns a two-letter command statement.
func Command(name string, args ...string) Statement {
	return Statement{Kind: KindCommand, Name: strings.ToUpper(name), Args: args}
}

func formatFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
	}
	return strings.TrimRight(s, ".")
}

func (s Statement) String() string {
	switch s.Kind {
	case KindAssign:
		return "&" + s.Name + "=" + strings.Join(s.Args, "")
	case KindCommand:
		if len(s.Args) == 0 {
			return s.Name
		}
		return s.Name + "," + strings.Join(s.Args, ",")
	}
	return s.Name
}

// Program is an ordered list of statements sent to the engine as one job.
type Program []Statement

// String renders one statement per line, with a trailing newline.
func (p Program) String() string {
	var b strings.Builder
	for _, s := range p {
		b.WriteString(s.String())
		b.WriteByte('\n')
	}
	return b.String()
}
