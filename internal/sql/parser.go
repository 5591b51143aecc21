package sql

import (
	"fmt"
	"strings"

	"github.com/relcore/relcore/internal/engine"
	"github.com/relcore/relcore/internal/storage"
)

// Parser turns one SQL statement's token stream into a Statement,
// via straightforward recursive descent for statement shape and a
// shunting-yard pass (see whereParser below) for WHERE/ON predicate
// expressions, per spec.md §9's prescribed design.
type Parser struct {
	toks []Token
	pos  int
}

// Parse tokenizes and parses one ';'-or-newline-terminated SQL
// statement (the trailing terminator, if any, is not part of src).
func Parse(src string) (*Statement, error) {
	src = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(src), ";"))
	if src == "" {
		return nil, fmt.Errorf("sql: empty statement")
	}
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	return p.parseStatement()
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) atEOF() bool { return p.cur().Kind == TokEOF }

func (p *Parser) isKeyword(kw string) bool {
	return p.cur().Kind == TokIdent && p.cur().Text == kw
}

func (p *Parser) acceptKeyword(kw string) bool {
	if p.isKeyword(kw) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.acceptKeyword(kw) {
		return fmt.Errorf("sql: expected %q, got %q", kw, p.cur().descr())
	}
	return nil
}

func (p *Parser) expectPunct(s string) error {
	if p.cur().Kind == TokPunct && p.cur().Text == s {
		p.advance()
		return nil
	}
	return fmt.Errorf("sql: expected %q, got %q", s, p.cur().descr())
}

func (p *Parser) acceptPunct(s string) bool {
	if p.cur().Kind == TokPunct && p.cur().Text == s {
		p.advance()
		return true
	}
	return false
}

func (t Token) descr() string {
	switch t.Kind {
	case TokEOF:
		return "<eof>"
	case TokString:
		return "\"" + t.Str + "\""
	case TokNumber:
		return t.Text
	default:
		return t.Text
	}
}

// expectIdent consumes and returns any identifier (keyword or name);
// used for table/column names, which can't be distinguished from
// keywords by the lexer alone.
func (p *Parser) expectIdent() (string, error) {
	if p.cur().Kind != TokIdent {
		return "", fmt.Errorf("sql: expected identifier, got %q", p.cur().descr())
	}
	t := p.advance()
	return t.Str, nil
}

func (p *Parser) parseStatement() (*Statement, error) {
	switch {
	case p.isKeyword("CREATE"):
		return p.parseCreate()
	case p.isKeyword("INSERT"):
		return p.parseInsert()
	case p.isKeyword("SELECT"):
		return p.parseSelect()
	case p.isKeyword("UPDATE"):
		return p.parseUpdate()
	case p.isKeyword("DELETE"):
		return p.parseDelete()
	case p.isKeyword("BEGIN"):
		return p.parseBegin()
	case p.isKeyword("COMMIT"):
		p.advance()
		return &Statement{Kind: StmtCommit}, nil
	case p.isKeyword("ROLLBACK"):
		p.advance()
		return &Statement{Kind: StmtRollback}, nil
	case p.isKeyword("VACUUM"):
		p.advance()
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &Statement{Kind: StmtVacuum, TableName: name}, nil
	case p.isKeyword("SET"):
		return p.parseSetSession()
	case p.isKeyword("EXIT"):
		p.advance()
		return &Statement{Kind: StmtExit}, nil
	default:
		return nil, fmt.Errorf("sql: unrecognized statement starting at %q", p.cur().descr())
	}
}

// --- CREATE TABLE / CREATE INDEX -------------------------------------------

func (p *Parser) parseCreate() (*Statement, error) {
	p.advance() // CREATE
	if p.acceptKeyword("TABLE") {
		return p.parseCreateTable()
	}
	p.acceptKeyword("INDEX") // optional per spec.md §6 grammar
	var name string
	if p.cur().Kind == TokIdent && !p.isKeyword("ON") {
		n, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		name = n
	}
	if err := p.expectKeyword("ON"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	cols, err := p.parseIdentList()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if name == "" {
		name = table + "_" + strings.Join(cols, "_") + "_idx"
	}
	return &Statement{Kind: StmtCreateIndex, IndexName: name, IndexTable: table, IndexColumns: cols}, nil
}

func (p *Parser) parseIdentList() ([]string, error) {
	var out []string
	for {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		out = append(out, name)
		if !p.acceptPunct(",") {
			return out, nil
		}
	}
}

func (p *Parser) parseCreateTable() (*Statement, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}

	stmt := &Statement{Kind: StmtCreateTable, TableName: name}

	for {
		if p.isKeyword("PRIMARY") {
			p.advance()
			if err := p.expectKeyword("KEY"); err != nil {
				return nil, err
			}
			col, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			stmt.PrimaryKey = col
		} else if p.isKeyword("FOREIGN") {
			p.advance()
			if err := p.expectKeyword("KEY"); err != nil {
				return nil, err
			}
			col, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if err := p.expectKeyword("REFERENCES"); err != nil {
				return nil, err
			}
			refTable, refCol, err := p.parseRef()
			if err != nil {
				return nil, err
			}
			stmt.ForeignKeys = append(stmt.ForeignKeys, engine.ForeignKeyDef{
				LocalColumns: []string{col}, RefTable: refTable, RefColumns: []string{refCol},
			})
		} else {
			col, err := p.parseColumnDef()
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, col)
		}

		if p.acceptPunct(",") {
			continue
		}
		break
	}

	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseRef() (table, col string, err error) {
	table, err = p.expectIdent()
	if err != nil {
		return "", "", err
	}
	if err := p.expectPunct("("); err != nil {
		return "", "", err
	}
	col, err = p.expectIdent()
	if err != nil {
		return "", "", err
	}
	if err := p.expectPunct(")"); err != nil {
		return "", "", err
	}
	return table, col, nil
}

func (p *Parser) parseColumnDef() (engine.ColumnDef, error) {
	name, err := p.expectIdent()
	if err != nil {
		return engine.ColumnDef{}, err
	}
	typeName, err := p.expectIdent()
	if err != nil {
		return engine.ColumnDef{}, err
	}
	kind, ok := storage.TypeFromName(typeName)
	if !ok {
		return engine.ColumnDef{}, fmt.Errorf("sql: unknown column type %q", typeName)
	}

	col := engine.ColumnDef{Name: name, Type: kind}

	for {
		switch {
		case p.isKeyword("NOT"):
			p.advance()
			if err := p.expectKeyword("NULL"); err != nil {
				return engine.ColumnDef{}, err
			}
			col.NotNull = true
		case p.isKeyword("DEFAULT"):
			p.advance()
			v, err := p.parseLiteral()
			if err != nil {
				return engine.ColumnDef{}, err
			}
			col.Default = &v
		case p.isKeyword("PRIMARY"):
			p.advance()
			if err := p.expectKeyword("KEY"); err != nil {
				return engine.ColumnDef{}, err
			}
			col.PrimaryKey = true
		case p.isKeyword("REFERENCES"):
			p.advance()
			refTable, refCol, err := p.parseRef()
			if err != nil {
				return engine.ColumnDef{}, err
			}
			col.References = &engine.ColumnRef{Table: refTable, Column: refCol}
		default:
			return col, nil
		}
	}
}

func (p *Parser) parseLiteral() (storage.Value, error) {
	switch {
	case p.cur().Kind == TokNumber:
		t := p.advance()
		return storage.IntValue(t.Int), nil
	case p.cur().Kind == TokString:
		t := p.advance()
		return storage.TextValue(t.Str), nil
	case p.isKeyword("TRUE"):
		p.advance()
		return storage.BoolValue(true), nil
	case p.isKeyword("FALSE"):
		p.advance()
		return storage.BoolValue(false), nil
	case p.isKeyword("NULL"):
		p.advance()
		return storage.NullValue(), nil
	default:
		return storage.Value{}, fmt.Errorf("sql: expected literal, got %q", p.cur().descr())
	}
}

// --- INSERT -----------------------------------------------------------------

func (p *Parser) parseInsert() (*Statement, error) {
	p.advance() // INSERT
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	stmt := &Statement{Kind: StmtInsert, TableName: table}

	if p.acceptPunct("(") {
		cols, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		stmt.InsertColumns = cols
	}

	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	for {
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		stmt.InsertValues = append(stmt.InsertValues, v)
		if !p.acceptPunct(",") {
			break
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return stmt, nil
}

// --- SELECT / FROM ------------------------------------------------------

func (p *Parser) parseSelect() (*Statement, error) {
	p.advance() // SELECT
	cols, err := p.parseSelectList()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	from, err := p.parseFromClause()
	if err != nil {
		return nil, err
	}

	stmt := &Statement{Kind: StmtSelect, SelectColumns: cols, From: from}
	if p.acceptKeyword("WHERE") {
		cond, err := p.parseWhereExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = cond
	}
	return stmt, nil
}

func (p *Parser) parseSelectList() ([]string, error) {
	if p.acceptPunct("*") {
		return []string{"*"}, nil
	}
	var out []string
	for {
		name, err := p.parseQualifiedName()
		if err != nil {
			return nil, err
		}
		out = append(out, name)
		if !p.acceptPunct(",") {
			return out, nil
		}
	}
}

// parseQualifiedName reads `alias.col` or `col`, returned joined with
// a literal dot for the executor's splitQualified to re-split later.
func (p *Parser) parseQualifiedName() (string, error) {
	first, err := p.expectIdent()
	if err != nil {
		return "", err
	}
	if p.acceptPunct(".") {
		second, err := p.expectIdent()
		if err != nil {
			return "", err
		}
		return first + "." + second, nil
	}
	return first, nil
}

func (p *Parser) parseFromClause() (*engine.FromItem, error) {
	left, err := p.parseFromLeaf()
	if err != nil {
		return nil, err
	}
	for {
		var kind engine.JoinKind
		switch {
		case p.isKeyword("INNER"):
			p.advance()
			kind = engine.InnerJoin
		case p.isKeyword("LEFT"):
			p.advance()
			kind = engine.LeftJoin
		case p.isKeyword("JOIN"):
			kind = engine.InnerJoin
		default:
			return left, nil
		}
		if err := p.expectKeyword("JOIN"); err != nil {
			return nil, err
		}
		right, err := p.parseFromLeaf()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("ON"); err != nil {
			return nil, err
		}
		on, err := p.parseWhereExpr()
		if err != nil {
			return nil, err
		}
		k := kind
		left = &engine.FromItem{Join: &k, On: on, Left: left, Right: right}
	}
}

func (p *Parser) parseFromLeaf() (*engine.FromItem, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	item := &engine.FromItem{Table: name}
	if p.acceptKeyword("AS") {
		alias, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		item.Alias = alias
	} else if p.cur().Kind == TokIdent && !isFromTerminator(p.cur().Text) {
		alias, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		item.Alias = alias
	}
	return item, nil
}

func isFromTerminator(kw string) bool {
	switch kw {
	case "WHERE", "INNER", "LEFT", "JOIN", "ON", "SET":
		return true
	default:
		return false
	}
}

// --- UPDATE / DELETE ------------------------------------------------------

func (p *Parser) parseUpdate() (*Statement, error) {
	p.advance() // UPDATE
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}

	stmt := &Statement{Kind: StmtUpdate, TableName: table}
	for {
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Assignments = append(stmt.Assignments, engine.Assignment{Column: col, Value: v})
		if !p.acceptPunct(",") {
			break
		}
	}

	if p.acceptKeyword("WHERE") {
		cond, err := p.parseWhereExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = cond
	}
	return stmt, nil
}

func (p *Parser) parseDelete() (*Statement, error) {
	p.advance() // DELETE
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	stmt := &Statement{Kind: StmtDelete, TableName: table}
	if p.acceptKeyword("WHERE") {
		cond, err := p.parseWhereExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = cond
	}
	return stmt, nil
}

// --- BEGIN / SET SESSION ------------------------------------------------

func (p *Parser) parseIsolationLevel() (engine.IsolationLevel, error) {
	if err := p.expectKeyword("READ"); err == nil {
		if err := p.expectKeyword("COMMITTED"); err != nil {
			return 0, err
		}
		return engine.ReadCommitted, nil
	}
	if err := p.expectKeyword("REPEATABLE"); err != nil {
		return 0, fmt.Errorf("sql: expected isolation level, got %q", p.cur().descr())
	}
	if err := p.expectKeyword("READ"); err != nil {
		return 0, err
	}
	return engine.RepeatableRead, nil
}

func (p *Parser) parseBegin() (*Statement, error) {
	p.advance() // BEGIN
	stmt := &Statement{Kind: StmtBegin}
	if p.acceptKeyword("ISOLATION") {
		if err := p.expectKeyword("LEVEL"); err != nil {
			return nil, err
		}
		lvl, err := p.parseIsolationLevel()
		if err != nil {
			return nil, err
		}
		stmt.Isolation = &lvl
	}
	return stmt, nil
}

func (p *Parser) parseSetSession() (*Statement, error) {
	p.advance() // SET
	for _, kw := range []string{"SESSION", "CHARACTERISTICS", "AS", "TRANSACTION", "ISOLATION", "LEVEL"} {
		if err := p.expectKeyword(kw); err != nil {
			return nil, err
		}
	}
	lvl, err := p.parseIsolationLevel()
	if err != nil {
		return nil, err
	}
	return &Statement{Kind: StmtSetSession, Isolation: &lvl}, nil
}
