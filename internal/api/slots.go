package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/internal/job"
	"SignalProof-Chain/internal/slot"
)

type deriveRequest struct {
	Scheme string    `json:"scheme"`
	Keys   []job.Key `json:"keys"`
}

type derivedSlot struct {
	Key  job.Key          `json:"key"`
	Slot slot.StorageSlot `json:"slot"`
}

type deriveResponse struct {
	Scheme string        `json:"scheme"`
	Slots  []derivedSlot `json:"slots"`
}

// handleSlots 推导一组信号键在指定方案下的存储槽位。
func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req deriveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "请求体解析失败")
		return
	}
	version, err := slot.ParseSchemeVersion(req.Scheme)
	if err != nil {
		s.observeDerivation(req.Scheme, err)
		writeError(w, err)
		return
	}
	if len(req.Keys) == 0 {
		writeError(w, xerrors.New(xerrors.CodeInvalidInput, "at least one key is required", xerrors.WithField("keys")))
		return
	}

	resp := deriveResponse{Scheme: version.String(), Slots: make([]derivedSlot, 0, len(req.Keys))}
	for i, k := range req.Keys {
		key, err := k.SignalKey()
		if err == nil {
			var derived slot.StorageSlot
			derived, err = s.memo.Derive(key, version)
			if err == nil {
				resp.Slots = append(resp.Slots, derivedSlot{Key: k, Slot: derived})
			}
		}
		s.observeDerivation(version.String(), err)
		if err != nil {
			writeError(w, fmt.Errorf("key %d: %w", i, err))
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type baseSlotRequest struct {
	Namespace    string `json:"namespace"`
	NamespaceHex string `json:"namespace_hex"`
}

type baseSlotResponse struct {
	Namespace hexutil.Bytes    `json:"namespace"`
	Slot      slot.StorageSlot `json:"slot"`
}

// handleBaseSlot 计算任意命名空间的基础槽位；命名空间可以是 UTF-8 文本或 0x 十六进制。
func (s *Server) handleBaseSlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req baseSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "请求体解析失败")
		return
	}
	namespace := []byte(req.Namespace)
	if raw := strings.TrimSpace(req.NamespaceHex); raw != "" {
		decoded, err := hexutil.Decode(raw)
		if err != nil {
			writeError(w, xerrors.Wrap(xerrors.CodeInvalidInput, err, "invalid namespace hex", xerrors.WithField("namespace_hex")))
			return
		}
		namespace = decoded
	}
	writeJSON(w, http.StatusOK, baseSlotResponse{Namespace: namespace, Slot: slot.BaseSlot(namespace)})
}

func (s *Server) observeDerivation(scheme string, err error) {
	if s.metrics != nil {
		s.metrics.ObserveDerivation(scheme, err)
	}
}
