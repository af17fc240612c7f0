package gateway

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"cashew/internal/access"
	"cashew/internal/crypto"
	"cashew/internal/renderer"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth implements GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "cashew-gateway"})
}

// handleStatus implements GET /api/status, mirroring the original's
// GatewayServer::Statistics (total_requests, {active,anonymous,
// authenticated}_sessions, bytes_sent/received) enriched with the derived
// state's node/network/thing counts.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	active, anon, auth := s.sessions.counts()
	snap := s.state.CurrentSnapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                "ok",
		"started_at":            s.startedAt.Unix(),
		"total_requests":        s.requestCount.Load(),
		"bytes_sent":            s.bytesSent.Load(),
		"bytes_received":        s.bytesReceived.Load(),
		"active_sessions":       active,
		"anonymous_sessions":    anon,
		"authenticated_sessions": auth,
		"node_count":            snap.NodeCount,
		"network_count":         snap.NetworkCount,
		"thing_count":           snap.ThingCount,
		"epoch":                 snap.Epoch,
		"latest_ledger_hash":    snap.LatestLedgerHash.String(),
	})
}

type networkSummary struct {
	ID           string `json:"id"`
	ThingHash    string `json:"thing_hash"`
	MemberCount  int    `json:"member_count"`
	ReplicaCount int    `json:"replica_count"`
	IsHealthy    bool   `json:"is_healthy"`
	Health       string `json:"health"`
}

func (s *Server) summarizeNetwork(id crypto.Hash) networkSummary {
	net, ok := s.state.NetworkState(id)
	if !ok {
		return networkSummary{}
	}
	replicaCount := 0
	if thing, ok := s.state.ThingState(net.ThingHash); ok {
		replicaCount = thing.ReplicationCount()
	}
	health, err := s.network.Health(id, replicaCount)
	if err != nil {
		health = 0
	}
	return networkSummary{
		ID:           net.NetworkID.String(),
		ThingHash:    net.ThingHash.String(),
		MemberCount:  len(net.Members),
		ReplicaCount: replicaCount,
		IsHealthy:    health.String() == "OPTIMAL" || health.String() == "HEALTHY",
		Health:       health.String(),
	}
}

// handleNetworks implements GET /api/networks.
func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	all := s.state.AllNetworks()
	out := make([]networkSummary, 0, len(all))
	for _, net := range all {
		out = append(out, s.summarizeNetwork(net.NetworkID))
	}
	writeJSON(w, http.StatusOK, map[string]any{"networks": out})
}

func parseHexHash(s string) (crypto.Hash, error) {
	if len(s) != crypto.HashSize*2 {
		return crypto.Hash{}, fmt.Errorf("expected %d hex chars, got %d", crypto.HashSize*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return crypto.Hash{}, err
	}
	return crypto.HashFromBytes(b)
}

// handleNetworkDetail implements GET /api/networks/:id.
func (s *Server) handleNetworkDetail(w http.ResponseWriter, r *http.Request) {
	id, err := parseHexHash(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed network id: "+err.Error())
		return
	}
	net, ok := s.state.NetworkState(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown network")
		return
	}

	members := make(map[string]string, len(net.MemberRoles))
	for node, role := range net.MemberRoles {
		members[node.String()] = string(role)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         net.NetworkID.String(),
		"thing_hash": net.ThingHash.String(),
		"created_at": net.CreatedAt,
		"is_active":  net.IsActive,
		"members":    members,
		"quorum":     net.Quorum,
		"summary":    s.summarizeNetwork(id),
	})
}

// handleThing implements GET /api/thing/:hash, including byte-range and
// ETag support per spec §6.4.
func (s *Server) handleThing(w http.ResponseWriter, r *http.Request) {
	hash, err := parseHexHash(chi.URLParam(r, "hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed content hash: "+err.Error())
		return
	}

	var rng *renderer.Range
	if h := r.Header.Get("Range"); h != "" {
		parsed, ok := parseRangeHeader(h)
		if !ok {
			writeError(w, http.StatusRequestedRangeNotSatisfiable, "invalid range")
			return
		}
		rng = parsed
	}

	rendered, err := s.renderer.Render(hash, rng)
	if err != nil {
		if rng != nil {
			writeError(w, http.StatusRequestedRangeNotSatisfiable, err.Error())
			return
		}
		writeError(w, http.StatusNotFound, "thing not found")
		return
	}

	etag := `"` + hash.String() + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", rendered.Metadata.MimeType)
	w.Header().Set("Accept-Ranges", "bytes")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if rendered.IsPartial {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rendered.RangeStart, rendered.RangeEnd, rendered.Metadata.Size))
		w.Header().Set("Content-Length", strconv.Itoa(len(rendered.Data)))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.Itoa(len(rendered.Data)))
		w.WriteHeader(http.StatusOK)
	}
	n, _ := w.Write(rendered.Data)
	s.bytesSent.Add(uint64(n))
}

// parseRangeHeader parses a single-range "bytes=start-end" header, per
// spec §6.4. Multi-range requests are not supported; returns ok=false for
// anything else, mapped to 416 by the caller.
func parseRangeHeader(h string) (*renderer.Range, bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(h, prefix) {
		return nil, false
	}
	spec := strings.TrimPrefix(h, prefix)
	if strings.Contains(spec, ",") {
		return nil, false
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return nil, false
	}
	start, err1 := strconv.ParseInt(parts[0], 10, 64)
	end, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil || start < 0 || end < start {
		return nil, false
	}
	return &renderer.Range{Start: start, End: end}, true
}

type authRequest struct {
	PublicKey string `json:"public_key"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// handleAuth implements POST /api/auth: verifies an Ed25519 signature over
// an arbitrary challenge message, then upgrades the caller's session to
// the capability set its node currently qualifies for.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	pubBytes, err := hex.DecodeString(req.PublicKey)
	if err != nil || len(pubBytes) != ed25519.PublicKeySize {
		writeError(w, http.StatusBadRequest, "malformed public_key")
		return
	}
	msgBytes, err := hex.DecodeString(req.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed message")
		return
	}
	sigBytes, err := hex.DecodeString(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed signature")
		return
	}

	pub := ed25519.PublicKey(pubBytes)
	if !crypto.Verify(pub, msgBytes, sigBytes) {
		writeError(w, http.StatusUnauthorized, "signature verification failed")
		return
	}

	node := crypto.NodeIDFromPublicKey(pub)
	caps := s.grantedCapabilities(node)
	sess := s.sessions.createAuthenticated(node, caps, time.Now())

	names := make([]string, 0, len(caps))
	for c := range caps {
		names = append(names, string(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":   sess.ID,
		"node":         node.String(),
		"expires_at":   sess.ExpiresAt.Unix(),
		"capabilities": names,
	})
}

// grantedCapabilities evaluates every capability in access.PolicyTable
// for node with no network context, per spec §4.3's check_access. Network-
// scoped capabilities (JOIN_NETWORKS, ISSUE_INVITATIONS, etc.) are
// necessarily denied here since auth is not network-specific; callers
// re-check those per network via the node's own access.Controller.
func (s *Server) grantedCapabilities(node crypto.Hash) map[access.Capability]struct{} {
	out := make(map[access.Capability]struct{})
	for capability := range access.PolicyTable {
		decision := s.access.CheckAccess(access.Request{Node: node, Capability: capability})
		if decision.Allowed {
			out[capability] = struct{}{}
		}
	}
	return out
}
