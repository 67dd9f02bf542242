package exec

import (
	"sharc/pkg/fingerprint"
	"sharc/pkg/sqlparse"
)

// setOpReader combines Left and Right under UNION, UNION ALL, INTERSECT,
// or EXCEPT, materializing the side(s) needed to answer membership
// queries and deduplicating via rowFingerprint except under UNION ALL.
// Grounded on spec section 4.11's compound-query fingerprint dedup.
type setOpReader struct {
	cols []string
	rows []Row
	pos  int
}

func newSetOp(left, right Reader, kind sqlparse.SetOp) (*setOpReader, error) {
	cols := left.Columns()
	leftRows, err := drain(left)
	if err != nil {
		return nil, err
	}
	rightRows, err := drain(right)
	if err != nil {
		return nil, err
	}

	var out []Row
	switch kind {
	case sqlparse.SetOpUnionAll:
		out = append(out, leftRows...)
		out = append(out, rightRows...)
	case sqlparse.SetOpUnion:
		seen := make(map[fingerprint.Fingerprint]bool)
		for _, rows := range [][]Row{leftRows, rightRows} {
			for _, row := range rows {
				fp, err := rowFingerprint(row)
				if err != nil {
					return nil, err
				}
				if seen[fp] {
					continue
				}
				seen[fp] = true
				out = append(out, row)
			}
		}
	case sqlparse.SetOpIntersect:
		rightSet := make(map[fingerprint.Fingerprint]bool)
		for _, row := range rightRows {
			fp, err := rowFingerprint(row)
			if err != nil {
				return nil, err
			}
			rightSet[fp] = true
		}
		seen := make(map[fingerprint.Fingerprint]bool)
		for _, row := range leftRows {
			fp, err := rowFingerprint(row)
			if err != nil {
				return nil, err
			}
			if !rightSet[fp] || seen[fp] {
				continue
			}
			seen[fp] = true
			out = append(out, row)
		}
	case sqlparse.SetOpExcept:
		rightSet := make(map[fingerprint.Fingerprint]bool)
		for _, row := range rightRows {
			fp, err := rowFingerprint(row)
			if err != nil {
				return nil, err
			}
			rightSet[fp] = true
		}
		seen := make(map[fingerprint.Fingerprint]bool)
		for _, row := range leftRows {
			fp, err := rowFingerprint(row)
			if err != nil {
				return nil, err
			}
			if rightSet[fp] || seen[fp] {
				continue
			}
			seen[fp] = true
			out = append(out, row)
		}
	}
	return &setOpReader{cols: cols, rows: out}, nil
}

func drain(r Reader) ([]Row, error) {
	defer r.Close()
	var rows []Row
	for {
		ok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, append(Row(nil), r.Row()...))
	}
}

func (r *setOpReader) Columns() []string { return r.cols }
func (r *setOpReader) Row() Row          { return r.rows[r.pos-1] }
func (r *setOpReader) Close() error      { return nil }

func (r *setOpReader) Next() (bool, error) {
	if r.pos >= len(r.rows) {
		return false, nil
	}
	r.pos++
	return true, nil
}
