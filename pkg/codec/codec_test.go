package codec

import (
	"encoding/base64"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/errors"
)

func fixture() *dataset.Dataset {
	return dataset.MustNew(
		dataset.MustColumn("id", dataset.Integer, 1, 9007199254740993, nil),
		dataset.MustColumn("price", dataset.Float, 10.0, nil, math.Inf(-1)),
		dataset.MustColumn("name", dataset.String, "a", "", nil),
		dataset.MustColumn("grade", dataset.Category, "A", "B", nil),
		dataset.MustColumn("seen", dataset.Datetime,
			time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC), nil, time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC)),
		dataset.MustColumn("ok", dataset.Boolean, true, false, nil),
	)
}

func TestSplitRoundTrip(t *testing.T) {
	ds := fixture()

	data, err := MarshalSplit(ds)
	require.NoError(t, err)

	back, err := UnmarshalSplit(data)
	require.NoError(t, err)
	assert.True(t, ds.Equal(back))
	assert.Equal(t, ds.Names(), back.Names())
	assert.Nil(t, back.ColumnAt(0).Value(2))
}

func TestSplitRoundTripWithoutColumns(t *testing.T) {
	rowsOnly, err := fixture().DropColumns(fixture().Names()...)
	require.NoError(t, err)
	require.Equal(t, 0, rowsOnly.NumColumns())
	require.Positive(t, rowsOnly.NumRows())

	for name, ds := range map[string]*dataset.Dataset{
		"rows without columns": rowsOnly,
		"empty":                dataset.MustNew(),
	} {
		t.Run(name, func(t *testing.T) {
			data, err := MarshalSplit(ds)
			require.NoError(t, err)
			back, err := UnmarshalSplit(data)
			require.NoError(t, err)
			assert.Equal(t, ds.NumRows(), back.NumRows(), string(data))
			assert.True(t, ds.Equal(back))
		})
	}
}

func TestSplitDocumentLayout(t *testing.T) {
	ds := dataset.MustNew(
		dataset.MustColumn("a", dataset.Integer, 1, 2),
		dataset.MustColumn("t", dataset.Datetime, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), nil),
	)
	data, err := MarshalSplit(ds)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"columns": ["a", "t"],
		"dtypes": ["integer", "datetime"],
		"index": [0, 1],
		"data": [[1, "2024-01-02T00:00:00Z"], [2, null]]
	}`, string(data))
}

func TestSplitWithoutDtypesInfersTypes(t *testing.T) {
	ds, err := UnmarshalSplit([]byte(`{"columns":["a","b","c"],"index":[0,1],"data":[[1,1.5,"x"],[null,2,"y"]]}`))
	require.NoError(t, err)
	assert.Equal(t, dataset.Integer, ds.ColumnAt(0).Type())
	assert.Equal(t, dataset.Float, ds.ColumnAt(1).Type())
	assert.Equal(t, dataset.String, ds.ColumnAt(2).Type())
}

func TestSplitRejectsMismatchedCells(t *testing.T) {
	_, err := UnmarshalSplit([]byte(`{"columns":["a"],"dtypes":["integer"],"index":[0],"data":[["x"]]}`))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeParse))

	_, err = UnmarshalSplit([]byte(`{"columns":["a","b"],"index":[0],"data":[[1]]}`))
	require.Error(t, err)
}

func TestDecodeCSV(t *testing.T) {
	in := "\ufeffprice,category,,price\n10,A,x,1\n,B,y,2\n30,A,,3\n"
	ds, err := DecodeCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"price", "category", "Unnamed: 2", "price.1"}, ds.Names())
	rows, cols := ds.Shape()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 4, cols)

	price, _ := ds.Column("price")
	assert.Equal(t, dataset.Integer, price.Type())
	assert.Equal(t, 1, price.MissingCount())
}

func TestDecodeCSVFailures(t *testing.T) {
	tests := map[string]string{
		"empty":   "",
		"ragged":  "a,b\n1\n",
		"quoting": "a\n\"x\n",
		"binary":  "a,b\n\xff\xfe,1\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCSV(strings.NewReader(in))
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeParse))
		})
	}
}

func TestDecodeDataURL(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("a,b\n1,2\n"))
	data, err := DecodeDataURL("data:text/csv;base64," + payload)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	_, err = DecodeDataURL("a,b")
	require.Error(t, err)
	_, err = DecodeDataURL("data:text/csv;base64,***")
	require.Error(t, err)
}
