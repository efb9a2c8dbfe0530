package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	pferrors "github.com/logflow/poflow/pkg/errors"
	"github.com/logflow/poflow/pkg/interfaces"
)

func TestQuery(t *testing.T) {
	e := New(Config{Threads: 2, MemoryLimit: "512MB"}, zaptest.NewLogger(t))

	res, err := e.Query(context.Background(),
		"SELECT ?::INTEGER AS answer, ? AS label FROM range(3)", 42, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"answer", "label"}, res.Columns)
	require.Len(t, res.Rows, 3)
	assert.EqualValues(t, 42, res.Rows[0]["answer"])
	assert.Equal(t, "x", res.Rows[0]["label"])
}

func TestQueriesShareNoState(t *testing.T) {
	e := New(Config{}, nil)
	ctx := context.Background()

	_, err := e.Query(ctx, "CREATE TABLE t AS SELECT 1 AS a")
	require.NoError(t, err)

	_, err = e.Query(ctx, "SELECT * FROM t")
	require.Error(t, err)
	assert.True(t, pferrors.IsCode(err, pferrors.CodeQueryFailed))
}

type fakeRemote struct{ qc interfaces.QueryCredentials }

func (f fakeRemote) QueryCredentials() interfaces.QueryCredentials { return f.qc }

func TestSetupStatements(t *testing.T) {
	e := New(Config{Threads: 4}, nil)
	assert.Equal(t, []string{"SET threads=4"}, e.setup())

	e = New(Config{
		Threads:     1,
		MemoryLimit: "1GB",
		Remote: fakeRemote{interfaces.QueryCredentials{
			Region:          "us-east-1",
			Endpoint:        "s3.wasabisys.com",
			UseSSL:          true,
			URLStyle:        "path",
			AccessKeyID:     "AKIA",
			SecretAccessKey: "it's-secret",
		}},
	}, nil)
	assert.Equal(t, []string{
		"SET threads=1",
		"SET memory_limit='1GB'",
		"INSTALL httpfs",
		"LOAD httpfs",
		"SET s3_region='us-east-1'",
		"SET s3_endpoint='s3.wasabisys.com'",
		"SET s3_url_style='path'",
		"SET s3_access_key_id='AKIA'",
		"SET s3_secret_access_key='it''s-secret'",
		"SET s3_use_ssl=true",
	}, e.setup())
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "SET s3_secret_access_key='***'", redact("SET s3_secret_access_key='abc'"))
	assert.Equal(t, "SET threads=2", redact("SET threads=2"))
}

func TestReadParquet(t *testing.T) {
	assert.Equal(t, "read_parquet('/tmp/o''brien.parquet')", ReadParquet("/tmp/o'brien.parquet"))
}
