package maple

import (
	"testing"

	"github.com/ValentinKolb/xkv/lib/db"
	dbtesting "github.com/ValentinKolb/xkv/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "MapleDB", func() db.KVDB {
		return NewMapleDB(nil)
	})
}

func TestSingleShard(t *testing.T) {
	dbtesting.RunKVDBTests(t, "MapleDB(1 shard)", func() db.KVDB {
		return NewMapleDB(&DBOptions{NumShards: 1})
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "MapleDB", func() db.KVDB {
		return NewMapleDB(nil)
	})
}
