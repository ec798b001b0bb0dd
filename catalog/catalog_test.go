package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_File(t *testing.T) {
	name := filepath.Join(t.TempDir(), "bit_information.json")
	require.NoError(t, os.WriteFile(name, []byte(`{"bitTypes":["No tool","Straight","V-Bit"]}`), 0644))

	bits, err := Load(context.Background(), name)
	require.NoError(t, err)
	assert.Equal(t, []string{"No tool", "Straight", "V-Bit"}, bits)
}

func TestLoad_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"bitTypes":["Ball Nose"]}`))
	}))
	defer srv.Close()

	bits, err := Load(context.Background(), srv.URL+"/bit_information.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ball Nose"}, bits)
}

func TestLoad_Fallback(t *testing.T) {
	bits, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	assert.Equal(t, Fallback(), bits)

	name := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(name, []byte(`{}`), 0644))
	bits, err = Load(context.Background(), name)
	assert.ErrorIs(t, err, ErrEmpty)
	assert.Equal(t, []string{"No tool"}, bits)

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	bits, err = Load(context.Background(), srv.URL)
	assert.Error(t, err)
	assert.Equal(t, Fallback(), bits)
}
