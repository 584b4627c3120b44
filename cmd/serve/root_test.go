package serve

import (
	"testing"

	"github.com/ValentinKolb/xkv/lib/db/util"
	"github.com/ValentinKolb/xkv/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShards(t *testing.T) {
	shards, err := parseShards("100=lstore, 200 = dstore,300=ddbstore,400=ostore")
	require.NoError(t, err)
	assert.Equal(t, []common.ServerShard{
		{ShardID: 100, Type: common.ShardTypeLocalIStore},
		{ShardID: 200, Type: common.ShardTypeRemoteIStore},
		{ShardID: 300, Type: common.ShardTypeDynamoIStore},
		{ShardID: 400, Type: common.ShardTypeObjectIStore},
	}, shards)

	for _, invalid := range []string{"", "100", "x=lstore", "100=lockmgr(lstore)", "100=lstore,100=dstore"} {
		_, err := parseShards(invalid)
		assert.Error(t, err, invalid)
	}
}

func TestParseClusterMembers(t *testing.T) {
	members, err := parseClusterMembers("node-1=localhost:63001,node-2=localhost:63002")
	require.NoError(t, err)
	assert.Equal(t, map[uint64]string{
		util.HashString("node-1", 0): "localhost:63001",
		util.HashString("node-2", 0): "localhost:63002",
	}, members)

	_, err = parseClusterMembers("node-1")
	assert.Error(t, err)
}
