package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"questsync.dev/internal/persistence/offsite"
	"questsync.dev/internal/protocol"
	"questsync.dev/internal/quest"
	"questsync.dev/internal/session"
)

func metricsHandler(sess *session.Handler, uploader *offsite.Uploader) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		s := sess.Stats()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP questsync_connected_players Players with a live connection.\n")
		fmt.Fprintf(rw, "# TYPE questsync_connected_players gauge\n")
		fmt.Fprintf(rw, "questsync_connected_players %d\n", s.Connected)

		fmt.Fprintf(rw, "# HELP questsync_messages_total Processed client messages by kind.\n")
		fmt.Fprintf(rw, "# TYPE questsync_messages_total counter\n")
		fmt.Fprintf(rw, "questsync_messages_total{kind=%q} %d\n", "action", s.Actions)
		fmt.Fprintf(rw, "questsync_messages_total{kind=%q} %d\n", "state_request", s.StateRequests)
		fmt.Fprintf(rw, "questsync_messages_total{kind=%q} %d\n", "reset", s.Resets)
		fmt.Fprintf(rw, "questsync_messages_total{kind=%q} %d\n", "dropped", s.Dropped)

		fmt.Fprintf(rw, "# HELP questsync_action_outcomes_total Action outcomes.\n")
		fmt.Fprintf(rw, "# TYPE questsync_action_outcomes_total counter\n")
		fmt.Fprintf(rw, "questsync_action_outcomes_total{outcome=%q} %d\n", "changed", s.Actions-s.NoOps)
		fmt.Fprintf(rw, "questsync_action_outcomes_total{outcome=%q} %d\n", "noop", s.NoOps)
		fmt.Fprintf(rw, "questsync_action_outcomes_total{outcome=%q} %d\n", "unknown", s.UnknownActions)

		fmt.Fprintf(rw, "# HELP questsync_store_ops_total Store operations by result.\n")
		fmt.Fprintf(rw, "# TYPE questsync_store_ops_total counter\n")
		fmt.Fprintf(rw, "questsync_store_ops_total{op=%q,result=%q} %d\n", "save", "ok", s.Saves)
		fmt.Fprintf(rw, "questsync_store_ops_total{op=%q,result=%q} %d\n", "save", "error", s.SaveFailures)
		fmt.Fprintf(rw, "questsync_store_ops_total{op=%q,result=%q} %d\n", "load", "error", s.LoadFailures)

		fmt.Fprintf(rw, "# HELP questsync_publish_failures_total Snapshots not queued on every connection.\n")
		fmt.Fprintf(rw, "# TYPE questsync_publish_failures_total counter\n")
		fmt.Fprintf(rw, "questsync_publish_failures_total %d\n", s.PublishFailures)

		if uploader == nil {
			return
		}
		o := uploader.Stats()
		fmt.Fprintf(rw, "# HELP questsync_offsite_queue_depth Files waiting for offsite upload.\n")
		fmt.Fprintf(rw, "# TYPE questsync_offsite_queue_depth gauge\n")
		fmt.Fprintf(rw, "questsync_offsite_queue_depth %d\n", o.QueueDepth)
		fmt.Fprintf(rw, "# HELP questsync_offsite_files_total Offsite uploads by result.\n")
		fmt.Fprintf(rw, "# TYPE questsync_offsite_files_total counter\n")
		fmt.Fprintf(rw, "questsync_offsite_files_total{result=%q} %d\n", "uploaded", o.Uploaded)
		fmt.Fprintf(rw, "questsync_offsite_files_total{result=%q} %d\n", "failed", o.Failed)
		fmt.Fprintf(rw, "questsync_offsite_files_total{result=%q} %d\n", "dropped", o.Dropped)
	}
}

type playerView struct {
	PlayerID  string                  `json:"player_id"`
	Connected bool                    `json:"connected"`
	Step      string                  `json:"step"`
	NextTask  string                  `json:"next_task"`
	State     protocol.StateUpdateMsg `json:"state"`
	LoadError string                  `json:"load_error,omitempty"`
}

// registerAdmin mounts local-only admin endpoints.
func registerAdmin(mux *http.ServeMux, sess *session.Handler) {
	mux.HandleFunc("/admin/v1/connected", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"players": sess.Connected()})
	})
	mux.HandleFunc("/admin/v1/players/", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/admin/v1/players/")
		if id == "" || strings.Contains(id, "/") {
			http.Error(rw, "missing player id", http.StatusBadRequest)
			return
		}
		st, err := sess.Peek(r.Context(), id)
		v := playerView{
			PlayerID:  id,
			Connected: sess.IsConnected(id),
			Step:      st.CurrentStep.String(),
			NextTask:  quest.NextTask(st, sess.Engine().Rules()),
			State:     protocol.NewStateUpdate(st),
		}
		if err != nil {
			v.LoadError = err.Error()
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(v)
	})
}
