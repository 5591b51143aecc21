package sql

import (
	"fmt"

	"github.com/relcore/relcore/internal/engine"
)

// parseWhereExpr implements spec.md §9's prescribed WHERE-parsing
// algorithm: tokenize (already done by Parser.toks), shunting-yard to
// RPN with precedence OR(1) < AND(2) < NOT(3) < comparisons(4), NOT
// right-associative and AND/OR left-associative, then fold the RPN
// back into a Cond tree. Comparisons themselves are parsed as atomic
// units (operand op operand) and pushed straight to the output queue,
// since spec.md's grammar never nests a comparison inside another.
func (p *Parser) parseWhereExpr() (*engine.Cond, error) {
	var output []interface{} // *engine.Cond atoms or "AND"/"OR"/"NOT" operators
	var ops []string         // operator stack: "(", "AND", "OR", "NOT"

	prec := map[string]int{"OR": 1, "AND": 2, "NOT": 3}

	popToOutput := func() {
		top := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		output = append(output, top)
	}

loop:
	for {
		switch {
		case p.isKeyword("NOT"):
			p.advance()
			ops = append(ops, "NOT")
		case p.isKeyword("AND") || p.isKeyword("OR"):
			op := p.advance().Text
			for len(ops) > 0 && ops[len(ops)-1] != "(" && prec[ops[len(ops)-1]] >= prec[op] {
				popToOutput()
			}
			ops = append(ops, op)
		case p.acceptPunct("("):
			ops = append(ops, "(")
		case p.cur().Kind == TokPunct && p.cur().Text == ")":
			// Only consume as a WHERE-grouping paren if it actually
			// closes one we opened; otherwise it belongs to an outer
			// construct (e.g. a CREATE TABLE column list) and we stop.
			if !containsOpenParen(ops) {
				break loop
			}
			p.advance()
			for len(ops) > 0 && ops[len(ops)-1] != "(" {
				popToOutput()
			}
			if len(ops) == 0 {
				return nil, fmt.Errorf("sql: unmatched ')'")
			}
			ops = ops[:len(ops)-1] // discard "("
		default:
			if !p.startsComparison() {
				break loop
			}
			atom, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			output = append(output, atom)
		}
	}

	for len(ops) > 0 {
		if ops[len(ops)-1] == "(" {
			return nil, fmt.Errorf("sql: unmatched '('")
		}
		popToOutput()
	}

	return foldRPN(output)
}

func containsOpenParen(ops []string) bool {
	for _, o := range ops {
		if o == "(" {
			return true
		}
	}
	return false
}

func foldRPN(output []interface{}) (*engine.Cond, error) {
	var stack []*engine.Cond
	pop := func() (*engine.Cond, error) {
		if len(stack) == 0 {
			return nil, fmt.Errorf("sql: malformed WHERE expression")
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return top, nil
	}

	for _, item := range output {
		switch v := item.(type) {
		case *engine.Cond:
			stack = append(stack, v)
		case string:
			switch v {
			case "NOT":
				a, err := pop()
				if err != nil {
					return nil, err
				}
				stack = append(stack, engine.Not(a))
			case "AND", "OR":
				b, err := pop()
				if err != nil {
					return nil, err
				}
				a, err := pop()
				if err != nil {
					return nil, err
				}
				if v == "AND" {
					stack = append(stack, engine.And(a, b))
				} else {
					stack = append(stack, engine.Or(a, b))
				}
			default:
				return nil, fmt.Errorf("sql: unknown operator %q", v)
			}
		}
	}

	if len(stack) != 1 {
		return nil, fmt.Errorf("sql: malformed WHERE expression")
	}
	return stack[0], nil
}

// startsComparison reports whether the upcoming tokens can begin a
// comparison atom (operand op operand): an ident/number/string/TRUE/
// FALSE/NULL, i.e. anything that isn't a logical keyword or a closing
// construct.
func (p *Parser) startsComparison() bool {
	t := p.cur()
	if t.Kind == TokNumber || t.Kind == TokString {
		return true
	}
	if t.Kind == TokIdent {
		switch t.Text {
		case "AND", "OR", "NOT", "JOIN", "INNER", "LEFT", "ON", "WHERE", "SET":
			return false
		case "TRUE", "FALSE", "NULL":
			return true
		default:
			return true
		}
	}
	return false
}

func (p *Parser) parseOperand() (engine.Operand, error) {
	switch {
	case p.cur().Kind == TokNumber || p.cur().Kind == TokString || p.isKeyword("TRUE") || p.isKeyword("FALSE") || p.isKeyword("NULL"):
		v, err := p.parseLiteral()
		if err != nil {
			return engine.Operand{}, err
		}
		return engine.LiteralOperand(v), nil
	default:
		name, err := p.expectIdent()
		if err != nil {
			return engine.Operand{}, err
		}
		if p.acceptPunct(".") {
			col, err := p.expectIdent()
			if err != nil {
				return engine.Operand{}, err
			}
			return engine.ColumnOperand(name, col), nil
		}
		return engine.ColumnOperand("", name), nil
	}
}

func (p *Parser) parseComparison() (*engine.Cond, error) {
	lhs, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	op, err := p.parseCmpOp()
	if err != nil {
		return nil, err
	}
	rhs, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return engine.Cmp(op, lhs, rhs), nil
}

func (p *Parser) parseCmpOp() (engine.CmpOp, error) {
	if p.cur().Kind != TokPunct {
		return 0, fmt.Errorf("sql: expected comparison operator, got %q", p.cur().descr())
	}
	switch p.advance().Text {
	case "=":
		return engine.OpEq, nil
	case "!=":
		return engine.OpNe, nil
	case "<":
		return engine.OpLt, nil
	case "<=":
		return engine.OpLe, nil
	case ">":
		return engine.OpGt, nil
	case ">=":
		return engine.OpGe, nil
	default:
		return 0, fmt.Errorf("sql: unknown comparison operator %q", p.toks[p.pos-1].Text)
	}
}
