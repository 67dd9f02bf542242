package schema

import (
	"sharc/pkg/btree"
	"sharc/pkg/pagesource"
	"sharc/pkg/record"
	"sharc/pkg/serial"
)

// SchemaRootPage is the fixed root page of the schema b-tree, always
// page 1, per spec section 3.
const SchemaRootPage = 1

// Row is one decoded sqlite_master row.
type Row struct {
	Type     string // "table", "index", "view"
	Name     string
	TblName  string
	RootPage uint32
	SQL      string
}

// ReadRows walks the schema b-tree and decodes every row, in rowid
// (creation) order.
func ReadRows(src pagesource.PageSource, usable int) ([]Row, error) {
	c := btree.NewCursor(src, SchemaRootPage, usable)
	if err := c.First(); err != nil {
		return nil, err
	}

	var rows []Row
	var types [8]serial.Type
	for c.Valid() {
		payload := c.Payload()
		n, bodyOff, err := record.ReadSerialTypes(payload, types[:])
		if err != nil {
			return nil, err
		}
		if n < 5 {
			if err := c.Next(); err != nil {
				return nil, err
			}
			continue
		}
		typ, _, _ := record.DecodeStringDirect(payload, 0, types[:n], bodyOff)
		name, _, _ := record.DecodeStringDirect(payload, 1, types[:n], bodyOff)
		tbl, _, _ := record.DecodeStringDirect(payload, 2, types[:n], bodyOff)
		root, _ := record.DecodeInt64Direct(payload, 3, types[:n], bodyOff)
		sqlText, _, _ := record.DecodeStringDirect(payload, 4, types[:n], bodyOff)

		rows = append(rows, Row{
			Type:     string(typ),
			Name:     string(name),
			TblName:  string(tbl),
			RootPage: uint32(root),
			SQL:      string(sqlText),
		})
		if err := c.Next(); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// ReadCatalog builds a fresh Catalog by scanning the schema b-tree and
// parsing each row's CREATE statement, per spec section 4.13.
func ReadCatalog(src pagesource.PageSource, usable int, schemaCookie uint32) (*Catalog, error) {
	rows, err := ReadRows(src, usable)
	if err != nil {
		return nil, err
	}

	cat := NewCatalog()
	cat.SchemaCookie = schemaCookie

	for _, row := range rows {
		switch row.Type {
		case "table":
			def, _, err := ParseCreateTable(row.SQL)
			if err != nil {
				continue // a corrupt or foreign CREATE statement is skipped, not fatal
			}
			def.RootPage = row.RootPage
			cat.Tables[def.Name] = def
		case "view":
			v, _, err := ParseCreateView(row.SQL)
			if err != nil {
				continue
			}
			cat.Views[v.Name] = v
		case "index":
			idx, _, err := ParseCreateIndex(row.SQL)
			if err != nil {
				continue // auto-indexes for PRIMARY KEY/UNIQUE have no SQL text
			}
			idx.RootPage = row.RootPage
			cat.Indexes[idx.Name] = idx
		}
	}
	return cat, nil
}
