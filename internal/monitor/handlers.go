// handlers.go specifies the http and websocket handlers of the monitor.
package monitor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/SpatiumPortae/logportal/internal/file"
	"github.com/SpatiumPortae/logportal/internal/logfetch"
	"github.com/SpatiumPortae/logportal/internal/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// LogFile describes a committed log in the output directory.
type LogFile struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

//nolint:errcheck
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

//nolint:errcheck
func (s *Server) handlePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	}
}

func (s *Server) handleVersion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.version)
	}
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.source.Snapshot())
	}
}

func (s *Server) handleLogs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, err := logger.FromContext(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		logs, err := s.listLogs()
		if err != nil {
			logger.Error("listing logs", zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, logs)
	}
}

// handleStatusPage renders the landing page, which follows the event stream.
func (s *Server) handleStatusPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, err := logger.FromContext(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		logs, err := s.listLogs()
		if err != nil {
			logger.Error("listing logs", zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		data := struct {
			Version string
			Status  logfetch.Snapshot
			Logs    []LogFile
		}{
			Version: s.version.String(),
			Status:  s.source.Snapshot(),
			Logs:    logs,
		}
		var buf bytes.Buffer
		if err := s.templates.Execute(&buf, statusPage, data); err != nil {
			logger.Error("rendering status page", zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes()) //nolint:errcheck
	}
}

// listLogs returns the committed logs of the log directory, newest first.
func (s *Server) listLogs() ([]LogFile, error) {
	entries, err := os.ReadDir(s.logDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	logs := []LogFile{}
	for _, entry := range entries {
		if entry.IsDir() || !file.IsLog(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		logs = append(logs, LogFile{Name: entry.Name(), Size: info.Size(), Modified: info.ModTime().UTC()})
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].Modified.After(logs[j].Modified) })
	return logs, nil
}

// handleEvents returns a websocket handler streaming session events to the client.
func (s *Server) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, err := logger.FromContext(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			logger.Error("failed to upgrade connection", zap.Error(err))
			return
		}
		defer c.Close(websocket.StatusInternalError, "")

		// Clients only listen, CloseRead cancels ctx once they go away.
		ctx := c.CloseRead(r.Context())
		events, unsubscribe := s.hub.Subscribe()
		defer unsubscribe()
		logger.Info("monitor client connected")

		for {
			select {
			case <-ctx.Done():
				logger.Info("monitor client disconnected")
				return
			case ev, ok := <-events:
				if !ok {
					c.Close(websocket.StatusGoingAway, "monitor shutting down")
					return
				}
				if err := wsjson.Write(ctx, c, ev); err != nil {
					logger.Warn("writing event", zap.Error(err))
					return
				}
			}
		}
	}
}

// handleLogDownload serves a committed log file by name.
func (s *Server) handleLogDownload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Base(mux.Vars(r)["name"])
		if !file.IsLog(name) {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(s.logDir, name))
	}
}
