package sbp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	rxAssign  = regexp.MustCompile(`^&([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.+)$`)
	rxCall    = regexp.MustCompile(`^[Cc]([0-9]+)$`)
	rxCommand = regexp.MustCompile(`^([A-Za-z]{2})(?:\s*,\s*(.*))?$`)
)

// ErrInvalidLine is returned when a line can't be parsed.
var ErrInvalidLine = errors.New("invalid or unhandled line")

// Parser reads statements from OpenSBP text.
type Parser struct{ br *bufio.Reader }

// NewParser returns a Parser reading from r.
func NewParser(r io.Reader) *Parser {
	if br, ok := r.(*bufio.Reader); ok {
		return &Parser{br: br}
	}

	return &Parser{br: bufio.NewReader(r)}
}

// Read returns the next statement, skipping blank lines and comments.
func (p *Parser) Read() (Statement, error) {
	for {
		s, err := p.br.ReadString('\n')
		if err == io.EOF && s != "" {
			err = nil
		}
		if err != nil {
			return Statement{}, err
		}

		s = strings.SplitN(s, "'", 2)[0]
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}

		return parseLine(s)
	}
}

func parseLine(s string) (Statement, error) {
	if m := rxAssign.FindStringSubmatch(s); m != nil {
		return Statement{Kind: KindAssign, Name: m[1], Args: []string{strings.TrimSpace(m[2])}}, nil
	}
	if m := rxCall.FindStringSubmatch(s); m != nil {
		return Statement{Kind: KindCall, Name: "C" + m[1]}, nil
	}
	if m := rxCommand.FindStringSubmatch(s); m != nil {
		st := Statement{Kind: KindCommand, Name: strings.ToUpper(m[1])}
		if m[2] != "" {
			for _, a := range strings.Split(m[2], ",") {
				st.Args = append(st.Args, strings.TrimSpace(a))
			}
		}
		return st, nil
	}
	return Statement{}, fmt.Errorf("%w: %s", ErrInvalidLine, s)
}

// Parse reads every statement in data.
func Parse(data string) (Program, error) {
	r := NewParser(strings.NewReader(data))
	var prog Program
	for {
		st, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		prog = append(prog, st)
	}
	return prog, nil
}
