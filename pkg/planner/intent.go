package planner

import (
	"fmt"

	"sharc/pkg/schema"
	"sharc/pkg/sqlparse"
)

// Intent is the immutable, fully resolved shape of one query: the parsed
// statement plus the table/view bindings the planner resolved it against.
// Two Intents with the same CacheKey produce the same plan shape, so the
// cache below is keyed structurally rather than by raw SQL text.
type Intent struct {
	SQL    string
	Select *sqlparse.Select
	Tables []string // base table names referenced, view references expanded away
}

// CacheKey identifies an Intent for plan caching: the verbatim SQL text.
// Executions of one statement with different bound parameter values
// share a cache entry; statements whose text differs in any way
// (whitespace, keyword case, literal values) get separate entries even
// when their structure is identical.
func (it *Intent) CacheKey() string { return it.SQL }

// BuildIntent parses sql and resolves every FROM-clause reference against
// cat, expanding SQL views into inline subqueries (spec section 4.13) and
// collecting the set of base tables actually touched.
func BuildIntent(cat *schema.Catalog, sql string) (*Intent, error) {
	sel, err := sqlparse.ParseSelect(sql)
	if err != nil {
		return nil, err
	}
	it := &Intent{SQL: sql, Select: sel}
	if err := resolveViews(cat, sel, it); err != nil {
		return nil, err
	}
	return it, nil
}

func resolveViews(cat *schema.Catalog, sel *sqlparse.Select, it *Intent) error {
	for i := range sel.With {
		if err := resolveViews(cat, sel.With[i].Query, it); err != nil {
			return err
		}
	}
	if err := resolveCoreViews(cat, sel.Core, it); err != nil {
		return err
	}
	for i := range sel.Compound {
		if err := resolveCoreViews(cat, sel.Compound[i].Core, it); err != nil {
			return err
		}
	}
	return nil
}

func resolveCoreViews(cat *schema.Catalog, core *sqlparse.SelectCore, it *Intent) error {
	return resolveTableRefViews(cat, core.From, it)
}

func resolveTableRefViews(cat *schema.Catalog, ref *sqlparse.TableRef, it *Intent) error {
	if ref == nil {
		return nil
	}
	if ref.Subquery != nil {
		if err := resolveViews(cat, ref.Subquery, it); err != nil {
			return err
		}
	} else if ref.Name != "" {
		if v := cat.GetView(ref.Name); v != nil {
			viewSel, err := sqlparse.ParseSelect(v.SQL)
			if err != nil {
				return fmt.Errorf("planner: view %s: %w", ref.Name, err)
			}
			alias := ref.Alias
			if alias == "" {
				alias = ref.Name
			}
			*ref = sqlparse.TableRef{Subquery: viewSel, Alias: alias, JoinKind: ref.JoinKind, Join: ref.Join, On: ref.On}
			if err := resolveViews(cat, viewSel, it); err != nil {
				return err
			}
		} else if cat.GetTable(ref.Name) != nil {
			it.Tables = append(it.Tables, ref.Name)
		}
	}
	return resolveTableRefViews(cat, ref.Join, it)
}
