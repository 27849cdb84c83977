package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"SignalProof-Chain/internal/auth"
	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/internal/job"
)

type listResponse struct {
	Jobs  []*job.Job `json:"jobs"`
	Stats job.Stats  `json:"stats"`
}

func (s *Server) handleProofs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmit(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

// handleSubmit 创建证明任务并返回 202。
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化"))
		return
	}
	var req job.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "请求体解析失败")
		return
	}
	created, err := s.jobs.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	s.logger.Info("证明任务已提交",
		slog.String("job_id", created.ID),
		slog.String("caller", auth.CallerName(r.Context())),
	)
	writeJSON(w, http.StatusAccepted, created)
}

// handleList 支持 ?limit= 与 ?status=pending,failed 过滤。
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化"))
		return
	}
	var opts []job.ListOption
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			badRequest(w, "limit 必须是正整数")
			return
		}
		opts = append(opts, job.WithLimit(limit))
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		var statuses []job.Status
		for _, part := range strings.Split(raw, ",") {
			status := job.Status(strings.TrimSpace(part))
			if !job.IsValidStatus(status) {
				badRequest(w, "未知的任务状态: "+part)
				return
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, job.WithStatuses(statuses...))
	}

	jobs, err := s.jobs.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.jobs.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	writeJSON(w, http.StatusOK, listResponse{Jobs: jobs, Stats: stats})
}

// handleProofDetail 返回单个任务及其证明。
func (s *Server) handleProofDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.jobs == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化"))
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/proofs/"), "/")
	if id == "" || strings.Contains(id, "/") {
		badRequest(w, "缺少任务 ID")
		return
	}
	found, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}
