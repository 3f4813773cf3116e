package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"quantdesk/internal/metrics"
	"quantdesk/internal/monitor"
	"quantdesk/internal/report"
)

// newMonitorMux 暴露 /metrics、/events 与 /runs。sink 与 writer 为空时对应接口返回 404。
func newMonitorMux(runID string, sink *monitor.SQLiteSink, writer *report.SQLiteWriter, collector *metrics.Collector, logger *zap.Logger) *http.ServeMux {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		if sink == nil {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		limit := parseLimit(q.Get("limit"), 200)

		eventType := monitor.EventType("")
		if typ := strings.TrimSpace(q.Get("type")); typ != "" {
			eventType = monitor.EventType(strings.ToLower(typ))
		}
		run := q.Get("run_id")
		if run == "" {
			run = runID
		}

		events, err := sink.ListEvents(r.Context(), run, eventType, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, events, logger)
	})

	mux.HandleFunc("/runs", func(w http.ResponseWriter, r *http.Request) {
		if writer == nil {
			http.NotFound(w, r)
			return
		}
		runs, err := writer.ListRuns(r.Context(), parseLimit(r.URL.Query().Get("limit"), 20))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, runs, logger)
	})
	return mux
}

// startMonitorServer 同步监听 addr 后在后台提供服务，监听失败直接返回错误。
func startMonitorServer(addr, runID string, sink *monitor.SQLiteSink, writer *report.SQLiteWriter, collector *metrics.Collector, logger *zap.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("监控接口监听 %s 失败: %w", addr, err)
	}
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           newMonitorMux(runID, sink, writer, collector, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("监控服务异常", zap.Error(err))
		}
	}()

	logger.Info("监控接口已启动", zap.String("addr", srv.Addr), zap.String("run_id", runID))
	return srv, nil
}

// stopMonitorServer 在回测结束时关闭监控接口。
func stopMonitorServer(srv *http.Server, logger *zap.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("关闭监控服务失败", zap.Error(err))
	}
}

func parseLimit(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	if v > 1000 {
		v = 1000
	}
	return v
}

func writeJSON(w http.ResponseWriter, v interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写入监控响应失败", zap.Error(err))
	}
}
