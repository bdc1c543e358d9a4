package function

import (
	"strings"

	"gopkg.in/src-d/go-selectc.v0/sql"
)

type count struct {
	n int64
}

func (c *count) Step(args []interface{}) error {
	if len(args) == 0 || args[0] != nil {
		c.n++
	}
	return nil
}

func (c *count) Final() (interface{}, error) { return c.n, nil }

type sum struct {
	isInt  bool
	seen   bool
	isum   int64
	fsum   float64
	total  bool
	avg    bool
	nvalue int64
}

func (s *sum) Step(args []interface{}) error {
	v := sql.ToNumeric(args[0])
	if v == nil {
		return nil
	}
	if !s.seen {
		s.seen = true
		s.isInt = true
	}
	s.nvalue++
	switch x := v.(type) {
	case int64:
		r, err := sql.Arith('+', s.isum, x)
		if err != nil {
			return err
		}
		if ri, ok := r.(int64); ok && s.isInt {
			s.isum = ri
		} else {
			s.isInt = false
		}
		s.fsum += float64(x)
	case float64:
		s.isInt = false
		s.fsum += x
	}
	return nil
}

func (s *sum) Final() (interface{}, error) {
	switch {
	case s.total:
		return s.fsum, nil
	case !s.seen:
		return nil, nil
	case s.avg:
		return s.fsum / float64(s.nvalue), nil
	case s.isInt:
		return s.isum, nil
	default:
		return s.fsum, nil
	}
}

type minMax struct {
	coll  sql.Collation
	max   bool
	value interface{}
	seen  bool
}

func (m *minMax) Step(args []interface{}) error {
	v := args[0]
	if v == nil {
		return nil
	}
	if !m.seen {
		m.value, m.seen = v, true
		return nil
	}
	cmp := sql.Compare(v, m.value, m.coll)
	if (m.max && cmp > 0) || (!m.max && cmp < 0) {
		m.value = v
	}
	return nil
}

func (m *minMax) Final() (interface{}, error) { return m.value, nil }

type groupConcat struct {
	parts []string
}

func (g *groupConcat) Step(args []interface{}) error {
	if args[0] == nil {
		return nil
	}
	if len(g.parts) > 0 {
		sep := ","
		if len(args) > 1 {
			sep, _ = sql.ToText(args[1])
		}
		g.parts = append(g.parts, sep)
	}
	s, _ := sql.ToText(args[0])
	g.parts = append(g.parts, s)
	return nil
}

func (g *groupConcat) Final() (interface{}, error) {
	if len(g.parts) == 0 {
		return nil, nil
	}
	return strings.Join(g.parts, ""), nil
}

var aggregates = []*Func{
	{
		Name: "count", MinArgs: 0, MaxArgs: 1,
		NewAggregator: func(sql.Collation) Aggregator { return &count{} },
	},
	{
		Name: "sum", MinArgs: 1, MaxArgs: 1,
		NewAggregator: func(sql.Collation) Aggregator { return &sum{} },
	},
	{
		Name: "total", MinArgs: 1, MaxArgs: 1,
		NewAggregator: func(sql.Collation) Aggregator { return &sum{total: true} },
	},
	{
		Name: "avg", MinArgs: 1, MaxArgs: 1,
		NewAggregator: func(sql.Collation) Aggregator { return &sum{avg: true} },
	},
	{
		Name: "min", MinArgs: 1, MaxArgs: 1, NeedCollation: true, MinMax: Min,
		NewAggregator: func(c sql.Collation) Aggregator { return &minMax{coll: c} },
	},
	{
		Name: "max", MinArgs: 1, MaxArgs: 1, NeedCollation: true, MinMax: Max,
		NewAggregator: func(c sql.Collation) Aggregator { return &minMax{coll: c, max: true} },
	},
	{
		Name: "group_concat", MinArgs: 1, MaxArgs: 2,
		NewAggregator: func(sql.Collation) Aggregator { return &groupConcat{} },
	},
}
