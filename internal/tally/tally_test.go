package tally

import (
	"errors"
	"strings"
	"testing"

	"titerscope/internal/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCSV(t *testing.T, s string) *table.Table {
	t.Helper()
	tbl, err := table.ReadCSV(strings.NewReader(s))
	require.NoError(t, err)
	return tbl
}

const wells = `object,well,moi,positive
1,B2,10,true
2,B2,10,false
3,B2,10,true
1,A1,1,false
2,A1,1,false
3,A1,1,true
4,A1,1,false
`

func TestAggregateCountsAndFractions(t *testing.T) {
	res, err := Aggregate(mustCSV(t, wells), DefaultConfig(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "well", res.GroupKey)
	assert.Equal(t, "moi", res.DoseSource)
	require.Len(t, res.Rows, 2)

	a1, b2 := res.Rows[0], res.Rows[1]
	assert.Equal(t, "A1", a1.Group)
	assert.Equal(t, 1, a1.Pos)
	assert.Equal(t, 3, a1.Neg)
	assert.Equal(t, 4, a1.Total())
	assert.InDelta(t, 0.25, a1.Y, 1e-15)
	assert.True(t, a1.HasX)
	assert.Equal(t, 1.0, a1.X)

	assert.Equal(t, "B2", b2.Group)
	assert.Equal(t, 2, b2.Pos)
	assert.Equal(t, 1, b2.Neg)
	assert.InDelta(t, 2.0/3.0, b2.Y, 1e-15)
	assert.Equal(t, 10.0, b2.X)
}

func TestAggregatePosNegMatchesRowCount(t *testing.T) {
	tbl := mustCSV(t, wells)
	res, err := Aggregate(tbl, DefaultConfig(), nil, nil)
	require.NoError(t, err)

	groups, err := tbl.Column("well")
	require.NoError(t, err)
	counts := map[string]int{}
	for _, g := range groups {
		counts[g]++
	}
	for _, row := range res.Rows {
		assert.Equal(t, counts[row.Group], row.Pos+row.Neg, row.Group)
		assert.InDelta(t, float64(row.Pos)/float64(row.Pos+row.Neg), row.Y, 1e-15)
	}
}

func TestAggregateDoseResolution(t *testing.T) {
	t.Run("x alias", func(t *testing.T) {
		tbl := mustCSV(t, "file,x,positive\na.tif,3,true\n")
		res, err := Aggregate(tbl, DefaultConfig(), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "x", res.DoseSource)
		assert.Equal(t, 3.0, res.Rows[0].X)
	})

	t.Run("moi before x", func(t *testing.T) {
		tbl := mustCSV(t, "file,x,moi,positive\na.tif,3,5,true\n")
		res, err := Aggregate(tbl, DefaultConfig(), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 5.0, res.Rows[0].X)
	})

	t.Run("explicit column", func(t *testing.T) {
		tbl := mustCSV(t, "file,dilution,moi,positive\na.tif,7,5,true\n")
		cfg := DefaultConfig()
		cfg.DoseColumn = "dilution"
		res, err := Aggregate(tbl, cfg, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 7.0, res.Rows[0].X)
	})

	t.Run("explicit map", func(t *testing.T) {
		tbl := mustCSV(t, "file,moi,positive\na.tif,5,true\nb.tif,5,false\n")
		cfg := DefaultConfig().WithDose(map[string]float64{"a.tif": 0.5, "b.tif": 2})
		res, err := Aggregate(tbl, cfg, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, DoseSourceMap, res.DoseSource)
		assert.Equal(t, 0.5, res.Rows[0].X)
		assert.Equal(t, 2.0, res.Rows[1].X)
	})

	t.Run("missing", func(t *testing.T) {
		tbl := mustCSV(t, "well,positive\nA1,true\n")
		_, err := Aggregate(tbl, DefaultConfig(), nil, nil)
		assert.True(t, errors.Is(err, ErrMissingVariable))
	})

	t.Run("not required", func(t *testing.T) {
		tbl := mustCSV(t, "well,positive\nA1,true\n")
		cfg := DefaultConfig()
		cfg.RequireDose = false
		res, err := Aggregate(tbl, cfg, nil, nil)
		require.NoError(t, err)
		assert.False(t, res.Rows[0].HasX)
		out, err := res.Table()
		require.NoError(t, err)
		assert.Equal(t, "NA", out.Row(0)["x"])
	})

	t.Run("named column absent", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.DoseColumn = "dilution"
		_, err := Aggregate(mustCSV(t, wells), cfg, nil, nil)
		assert.True(t, errors.Is(err, ErrMissingVariable))
	})

	t.Run("map missing group", func(t *testing.T) {
		cfg := DefaultConfig().WithDose(map[string]float64{"A1": 1})
		_, err := Aggregate(mustCSV(t, wells), cfg, nil, nil)
		assert.True(t, errors.Is(err, ErrMissingVariable))
	})

	t.Run("conflicting", func(t *testing.T) {
		tbl := mustCSV(t, "well,moi,positive\nA1,1,true\nA1,2,false\n")
		_, err := Aggregate(tbl, DefaultConfig(), nil, nil)
		assert.True(t, errors.Is(err, ErrConflictingDose))
	})
}

func TestAggregateGrouping(t *testing.T) {
	_, err := Aggregate(mustCSV(t, "well,file,moi,positive\nA1,a,1,true\n"), DefaultConfig(), nil, nil)
	assert.True(t, errors.Is(err, ErrAmbiguousGrouping), "both aliases")

	_, err = Aggregate(mustCSV(t, "plate,moi,positive\nP1,1,true\n"), DefaultConfig(), nil, nil)
	assert.True(t, errors.Is(err, ErrAmbiguousGrouping), "no alias")

	res, err := Aggregate(mustCSV(t, "well,file,moi,positive\nA1,a,1,true\n"), DefaultConfig().WithGroupBy("file"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "file", res.GroupKey)

	_, err = Aggregate(mustCSV(t, wells), DefaultConfig().WithGroupBy("plate"), nil, nil)
	assert.True(t, errors.Is(err, ErrMissingVariable))
}

func TestAggregateZeroCountGroup(t *testing.T) {
	_, err := Aggregate(mustCSV(t, wells), DefaultConfig().WithGroups("A1", "B2", "C3"), nil, nil)
	assert.True(t, errors.Is(err, ErrZeroCountGroup))
}

func TestAggregateInvalidParam(t *testing.T) {
	_, err := Aggregate(mustCSV(t, "well,moi,positive\nA1,1,maybe\n"), DefaultConfig(), nil, nil)
	assert.True(t, errors.Is(err, ErrInvalidValue))

	cfg := DefaultConfig()
	cfg.Param = "infected"
	_, err = Aggregate(mustCSV(t, wells), cfg, nil, nil)
	assert.True(t, errors.Is(err, ErrMissingVariable))
}

func TestAggregateNumericGroupOrder(t *testing.T) {
	tbl := mustCSV(t, "file,moi,positive\n10,1,true\n9,2,true\n100,3,false\n")
	res, err := Aggregate(tbl, DefaultConfig(), nil, nil)
	require.NoError(t, err)
	var keys []string
	for _, r := range res.Rows {
		keys = append(keys, r.Group)
	}
	assert.Equal(t, []string{"9", "10", "100"}, keys)
}

func TestAggregatePhenotypeJoin(t *testing.T) {
	pheno := mustCSV(t, "well,genotype\nA1,wt\nZ9,ko\nA1,dup\n")
	res, err := Aggregate(mustCSV(t, wells), DefaultConfig(), pheno, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"genotype"}, res.PhenotypeColumns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "wt", res.Rows[0].Phenotype["genotype"])
	assert.Equal(t, "", res.Rows[1].Phenotype["genotype"], "unmatched aggregate row keeps empty phenotype")

	out, err := res.Table()
	require.NoError(t, err)
	assert.Equal(t, []string{"well", "x", "y", "pos", "neg", "genotype"}, out.Columns())
	assert.Equal(t, 2, out.Len(), "unmatched phenotype rows are dropped")

	_, err = Aggregate(mustCSV(t, wells), DefaultConfig(), mustCSV(t, "plate,genotype\nP1,wt\n"), nil)
	assert.True(t, errors.Is(err, ErrMissingVariable))
}

func TestAggregatePhenotypeTrimmedKeys(t *testing.T) {
	pheno := mustCSV(t, "well,treatment\n\"A1 \",ctrl\nB2,drugX\n")
	res, err := Aggregate(mustCSV(t, wells), DefaultConfig(), pheno, nil)
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, "A1", res.Rows[0].Group)
	assert.Equal(t, "ctrl", res.Rows[0].Phenotype["treatment"])
	assert.Equal(t, "drugX", res.Rows[1].Phenotype["treatment"])
}

func TestAggregatePhenotypeColumnCollision(t *testing.T) {
	pheno := mustCSV(t, "well,y,treatment\nA1,drugX,ctrl\n")
	res, err := Aggregate(mustCSV(t, wells), DefaultConfig(), pheno, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"pheno_y", "treatment"}, res.PhenotypeColumns)
	assert.Equal(t, "drugX", res.Rows[0].Phenotype["pheno_y"])
	assert.Equal(t, "ctrl", res.Rows[0].Phenotype["treatment"])
	assert.InDelta(t, 0.25, res.Rows[0].Y, 1e-12)

	out, err := res.Table()
	require.NoError(t, err)
	assert.Equal(t, []string{"well", "x", "y", "pos", "neg", "pheno_y", "treatment"}, out.Columns())
	assert.Equal(t, "0.25", out.Row(0)["y"])

	_, err = Aggregate(mustCSV(t, wells), DefaultConfig(), mustCSV(t, "well,y,pheno_y\nA1,a,b\n"), nil)
	assert.True(t, errors.Is(err, ErrInvalidValue))
}
