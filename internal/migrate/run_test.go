package migrate

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedSchema(t *testing.T) {
	migrations, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, "0001_init", migrations[0].Version)

	schema := migrations[0].SQL
	for _, table := range []string{"products", "platform_credentials", "discovery_jobs", "leads"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.Contains(t, schema, "discovery_jobs_triple_key")
	assert.Contains(t, schema, "leads_post_key")
	assert.Contains(t, schema, "leased_until")
}

func TestLoadFrom_SortsAndSkipsNonSQL(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_b.sql": {Data: []byte("B")},
		"m/0001_a.sql": {Data: []byte("A")},
		"m/README.md":  {Data: []byte("ignored")},
		"m/0010_c.sql": {Data: []byte("C")},
		"m/sub/x.sql":  {Data: []byte("nested")},
	}
	got, err := loadFrom(fsys, "m")
	require.NoError(t, err)

	versions := make([]string, 0, len(got))
	for _, m := range got {
		versions = append(versions, m.Version)
	}
	assert.Equal(t, "0001_a,0002_b,0010_c", strings.Join(versions, ","))
	assert.Equal(t, "A", got[0].SQL)
}
