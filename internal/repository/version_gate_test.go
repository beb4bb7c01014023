package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildGatedUpdate_SingleAssignment(t *testing.T) {
	query, args := buildGatedUpdate(
		VersionedTable{Name: "orders", Returning: "id, version"},
		7,
		3,
		[]Assignment{{Column: "status", Value: "PAID"}},
	)

	require.Equal(
		t,
		"UPDATE orders SET status = $1, version = version + 1, updated_at = NOW() WHERE id = $2 AND version = $3 RETURNING id, version",
		query,
	)
	require.Equal(t, []any{"PAID", int64(7), int64(3)}, args)
}

func TestBuildGatedUpdate_NoAssignments(t *testing.T) {
	query, args := buildGatedUpdate(
		VersionedTable{Name: "products", Returning: "version"},
		1,
		0,
		nil,
	)

	require.Equal(
		t,
		"UPDATE products SET version = version + 1, updated_at = NOW() WHERE id = $1 AND version = $2 RETURNING version",
		query,
	)
	require.Equal(t, []any{int64(1), int64(0)}, args)
}

func TestBuildGatedUpdate_ProductsTable(t *testing.T) {
	query, _ := buildGatedUpdate(productsTable, 1, 0, []Assignment{{Column: "price", Value: 1}})

	require.Contains(t, query, "UPDATE products SET price = $1")
	require.Contains(t, query, "RETURNING "+productColumns)
}
