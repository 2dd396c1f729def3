package sqlproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalens-ai/datalens/pkg/schema"
)

func testColumns() []schema.Column {
	return []schema.Column{
		{Name: "Sales", Type: schema.TypeFloat},
		{Name: "Region", Type: schema.TypeString},
		{Name: "Sales Date", Type: schema.TypeDate},
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	t.Run("classifies kinds", func(t *testing.T) {
		t.Parallel()
		tokens := Tokenize(`SELECT "Sales Date", SUM(Sales) AS total WHERE Region = 'west' LIMIT 10`)

		kinds := map[string]Kind{}
		for _, tok := range tokens {
			kinds[tok.Text] = tok.Kind
		}
		assert.Equal(t, KindKeyword, kinds["SELECT"])
		assert.Equal(t, KindQuotedIdent, kinds["Sales Date"])
		assert.Equal(t, KindKeyword, kinds["SUM"])
		assert.Equal(t, KindIdent, kinds["Sales"])
		assert.Equal(t, KindIdent, kinds["total"])
		assert.Equal(t, KindString, kinds["'west'"])
		assert.Equal(t, KindNumber, kinds["10"])
		assert.Equal(t, KindOperator, kinds["="])
	})

	t.Run("tracks paren depth", func(t *testing.T) {
		t.Parallel()
		tokens := Tokenize("EXTRACT(YEAR FROM d)")
		for _, tok := range tokens {
			if tok.Text == "FROM" {
				assert.Equal(t, 1, tok.Depth, "FROM inside EXTRACT should be nested")
			}
		}
	})

	t.Run("multi-char operators", func(t *testing.T) {
		t.Parallel()
		tokens := Tokenize("a >= 1 AND b != 2 AND c <> 3")
		var ops []string
		for _, tok := range tokens {
			if tok.Kind == KindOperator {
				ops = append(ops, tok.Text)
			}
		}
		assert.Equal(t, []string{">=", "!=", "<>"}, ops)
	})
}

func TestExtract(t *testing.T) {
	t.Parallel()

	t.Run("all clauses", func(t *testing.T) {
		t.Parallel()
		c := Extract("SELECT Region, SUM(Sales) WHERE Sales > 10 GROUP BY Region HAVING SUM(Sales) > 100 ORDER BY Region DESC LIMIT 5")
		assert.Equal(t, "Region, SUM(Sales)", c.Select)
		assert.Equal(t, "Sales > 10", c.Where)
		assert.Equal(t, "Region", c.GroupBy)
		assert.Equal(t, "SUM(Sales) > 100", c.Having)
		assert.Equal(t, "Region DESC", c.OrderBy)
		assert.Equal(t, "5", c.Limit)
	})

	t.Run("extract from is not a clause boundary", func(t *testing.T) {
		t.Parallel()
		c := Extract("SELECT EXTRACT(YEAR FROM `Sales Date`) AS yr")
		assert.False(t, c.HasFrom)
		assert.Equal(t, "EXTRACT(YEAR FROM `Sales Date`) AS yr", c.Select)
	})

	t.Run("top-level from detected", func(t *testing.T) {
		t.Parallel()
		c := Extract("SELECT Sales FROM sales_table WHERE Sales > 0")
		assert.True(t, c.HasFrom)
		assert.Equal(t, "sales_table", c.From)
		assert.Equal(t, "Sales > 0", c.Where)
	})

	t.Run("whitespace collapsed", func(t *testing.T) {
		t.Parallel()
		c := Extract("SELECT   Region ,\n  Sales   WHERE  Sales >   10")
		assert.Equal(t, "Region , Sales", c.Select)
		assert.Equal(t, "Sales > 10", c.Where)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cols := testColumns()

	t.Run("valid columns", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, Validate("SELECT Sales, Region", cols))
	})

	t.Run("bogus column named in error", func(t *testing.T) {
		t.Parallel()
		err := Validate("SELECT Sales, Bogus", cols)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Bogus")
	})

	t.Run("select star", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, Validate("SELECT * ", cols))
	})

	t.Run("extract over quoted spaced column", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, Validate("SELECT EXTRACT(YEAR FROM `Sales Date`) AS yr", cols))
	})

	t.Run("must start with select", func(t *testing.T) {
		t.Parallel()
		require.Error(t, Validate("DELETE Sales", cols))
		require.Error(t, Validate("", cols))
	})

	t.Run("standalone from rejected", func(t *testing.T) {
		t.Parallel()
		err := Validate("SELECT Sales FROM sales_table", cols)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "FROM")
	})

	t.Run("where literals not validated as columns", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, Validate("SELECT Sales WHERE Region = 'Bogus Region'", cols))
	})

	t.Run("where bogus column rejected", func(t *testing.T) {
		t.Parallel()
		err := Validate("SELECT Sales WHERE Bogus = 'west'", cols)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Bogus")
	})

	t.Run("between range", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, Validate("SELECT Sales WHERE `Sales Date` BETWEEN '2023-01-01' AND '2023-12-31'", cols))
	})

	t.Run("aggregate alias suffix skipped", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, Validate("SELECT Region, SUM(Sales) AS sales_sum ORDER BY sales_sum DESC", cols))
	})

	t.Run("alias via AS skipped", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, Validate("SELECT Sales AS revenue", cols))
	})

	t.Run("partial reference to spaced column", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, Validate("SELECT Date, Sales", append(cols, schema.Column{Name: "Order Date", Type: schema.TypeDate})))
	})

	t.Run("no column references at all", func(t *testing.T) {
		t.Parallel()
		err := Validate("SELECT 1", cols)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no valid column")
	})

	t.Run("where extract year predicate", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, Validate("SELECT Region, SUM(Sales) AS sales_sum WHERE EXTRACT(YEAR FROM `Sales Date`) = 2023 GROUP BY Region", cols))
	})
}

func TestCompose(t *testing.T) {
	t.Parallel()

	t.Run("canonical clause order", func(t *testing.T) {
		t.Parallel()
		got := Compose("SELECT Region WHERE Sales > 10 GROUP BY Region LIMIT 5", "t")
		assert.Equal(t, "SELECT Region FROM t WHERE Sales > 10 GROUP BY Region LIMIT 5", got)
	})

	t.Run("reorders shuffled clauses", func(t *testing.T) {
		t.Parallel()
		got := Compose("SELECT Region LIMIT 5 ORDER BY Region WHERE Sales > 10", "t")
		assert.Equal(t, "SELECT Region FROM t WHERE Sales > 10 ORDER BY Region LIMIT 5", got)
	})

	t.Run("strips placeholder from", func(t *testing.T) {
		t.Parallel()
		got := Compose("SELECT Region FROM your_table WHERE Sales > 10", "sales")
		assert.Equal(t, "SELECT Region FROM sales WHERE Sales > 10", got)
	})

	t.Run("converts double quotes to backticks", func(t *testing.T) {
		t.Parallel()
		got := Compose(`SELECT "Sales Date", Sales`, "t")
		assert.Equal(t, "SELECT `Sales Date`, Sales FROM t", got)
	})

	t.Run("empty select falls back to star", func(t *testing.T) {
		t.Parallel()
		got := Compose("SELECT", "t")
		assert.Equal(t, "SELECT * FROM t", got)
	})

	t.Run("collapses whitespace", func(t *testing.T) {
		t.Parallel()
		got := Compose("SELECT   Region ,  Sales   WHERE   Sales  >  10", "t")
		assert.Equal(t, "SELECT Region , Sales FROM t WHERE Sales > 10", got)
	})
}

func TestRewriteYearExtract(t *testing.T) {
	t.Parallel()

	t.Run("rewrites to between", func(t *testing.T) {
		t.Parallel()
		got := RewriteYearExtract("SELECT Region FROM t WHERE EXTRACT(YEAR FROM d) = 2023")
		assert.Equal(t, "SELECT Region FROM t WHERE d BETWEEN '2023-01-01' AND '2023-12-31'", got)
	})

	t.Run("quoted column", func(t *testing.T) {
		t.Parallel()
		got := RewriteYearExtract("SELECT Region FROM t WHERE EXTRACT(YEAR FROM `Sales Date`) = 2022")
		assert.Equal(t, "SELECT Region FROM t WHERE `Sales Date` BETWEEN '2022-01-01' AND '2022-12-31'", got)
	})

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()
		in := "SELECT Region FROM t WHERE EXTRACT(YEAR FROM d) = 2023"
		once := RewriteYearExtract(in)
		twice := RewriteYearExtract(once)
		assert.Equal(t, once, twice)
	})

	t.Run("no match passes through", func(t *testing.T) {
		t.Parallel()
		in := "SELECT Region FROM t WHERE d > '2023-01-01'"
		assert.Equal(t, in, RewriteYearExtract(in))
	})

	t.Run("applied by compose", func(t *testing.T) {
		t.Parallel()
		got := Compose("SELECT Region, SUM(Sales) AS sales_sum WHERE EXTRACT(YEAR FROM `Sales Date`) = 2023 GROUP BY Region", "sales")
		assert.Equal(t, "SELECT Region, SUM(Sales) AS sales_sum FROM sales WHERE `Sales Date` BETWEEN '2023-01-01' AND '2023-12-31' GROUP BY Region", got)
	})
}
