package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/dinein/internal/domain/menu"
)

func TestReadSeed_Bundled(t *testing.T) {
	seed, err := readSeed(filepath.Join("..", "..", "db", "seed", "menu.json"))
	require.NoError(t, err)

	assert.NotEmpty(t, seed.Tables)
	require.NotEmpty(t, seed.Menu)

	pho := seed.Menu[0].domain()
	assert.Equal(t, menu.ItemAvailable, pho.Status)
	require.Len(t, pho.Groups, 2)
	assert.True(t, pho.Groups[0].Required)
	assert.False(t, pho.Groups[1].Options[2].Active)
	assert.True(t, pho.Groups[1].Options[0].Active)
}

func TestReadSeed_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := pgzip.NewWriter(f)
	_, err = zw.Write([]byte(`{"tables":[{"id":"t1","number":"1"}],"menu":[{"id":"tea","name":"Tea","price":"10"}]}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	seed, err := readSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Menu, 1)
	assert.Equal(t, "Tea", seed.Menu[0].Name)
	assert.Equal(t, "10", seed.Menu[0].Price.String())
}

func TestDecodeSeed_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{`},
		{name: "missing name", body: `{"menu":[{"id":"tea"}]}`},
		{name: "bad selection type", body: `{"menu":[{"id":"tea","name":"Tea","groups":[{"id":"g","selectionType":"ANY"}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeSeed(strings.NewReader(tt.body))
			require.Error(t, err)
		})
	}
}
