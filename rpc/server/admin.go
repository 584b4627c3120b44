package server

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/ValentinKolb/xkv/lib/db"
	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
)

// shardStatus is one entry of the /shards listing
type shardStatus struct {
	ShardID uint64           `json:"shard_id"`
	Type    string           `json:"type"`
	Info    *db.DatabaseInfo `json:"info,omitempty"`
	Err     string           `json:"err,omitempty"`
}

// adminRouter serves the http endpoints next to the rpc transport:
//
//	GET /health   liveness probe
//	GET /metrics  prometheus text format of all VictoriaMetrics metrics
//	GET /shards   configured shards and the db info of their stores
func (s *RPCServer) adminRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	r.Get("/shards", func(w http.ResponseWriter, r *http.Request) {
		var out []shardStatus
		s.shards.Range(func(id uint64, shard serverShard) bool {
			st := shardStatus{ShardID: id, Type: string(shard.Type)}
			if info, err := shard.Store.GetDBInfo(); err != nil {
				st.Err = err.Error()
			} else {
				st.Info = &info
			}
			out = append(out, st)
			return true
		})
		sort.Slice(out, func(i, j int) bool { return out[i].ShardID < out[j].ShardID })

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			Logger.Warningf("failed to write shard listing: %v", err)
		}
	})

	return r
}
