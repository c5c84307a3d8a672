package dataflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixtureStore(t *testing.T) {
	store := NewFixtureStore()

	names := store.Names()
	assert.Contains(t, names, "sales_daily")
	assert.Contains(t, names, "sensor_readings")

	rows, ok := store.Rows("sales_daily")
	require.True(t, ok)
	assert.NotEmpty(t, rows)

	schema, ok := store.Schema("sales_daily")
	require.True(t, ok)
	assert.Equal(t, ColumnTypeTimestamp, schema["date"])
	assert.Contains(t, schema, "sales")
	assert.Contains(t, schema, "region")

	_, ok = store.Rows("no_such_dataset")
	assert.False(t, ok)
}

func TestFixtureStoreNestedSchema(t *testing.T) {
	store := NewFixtureStore()

	schema, ok := store.Schema("sensor_readings")
	require.True(t, ok)
	assert.Contains(t, schema, "sensor.id")
	assert.Contains(t, schema, "sensor.location")
	assert.Contains(t, schema, "temperature")
}
