package rpc

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const defaultSettlementLimit = 50

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.node.Admin().Config(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	reg, err := s.node.Admin().Registry(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configFrom(cfg, reg))
}

func (s *Server) handleProtocols(w http.ResponseWriter, r *http.Request) {
	asset := strings.TrimSpace(r.URL.Query().Get("asset"))
	if asset == "" {
		badRequest(w, "asset query parameter required")
		return
	}
	infos, err := s.node.Protocols(r.Context(), asset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]protocolResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, protocolResponse{
			ID:        info.ID,
			Location:  info.Location,
			FeeBps:    info.FeeBps,
			Liquidity: dec(info.Liquidity),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	protocol, err := strconv.ParseUint(strings.TrimSpace(query.Get("protocol")), 10, 64)
	if err != nil {
		badRequest(w, "protocol must be an unsigned integer")
		return
	}
	amount, err := parseAmount(query.Get("amount"))
	if err != nil {
		badRequest(w, "amount must be a decimal integer")
		return
	}
	quote, err := s.node.Router().Quote(r.Context(), protocol, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteFrom(quote))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	raw := strings.TrimSpace(query.Get("address"))
	if !common.IsHexAddress(raw) {
		badRequest(w, "address must be a 20-byte hex address")
		return
	}
	asset := strings.TrimSpace(query.Get("asset"))
	if asset == "" {
		badRequest(w, "asset query parameter required")
		return
	}
	addr := common.HexToAddress(raw)
	balance, err := s.node.Balance(r.Context(), addr, asset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: addr.Hex(), Asset: asset, Balance: dec(balance)})
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "IndexerDisabled", "settlement archive not configured")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	rows, err := s.archive.Recent(r.Context(), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]settlementResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, settlementFrom(row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConfigHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "IndexerDisabled", "settlement archive not configured")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	rows, err := s.archive.ConfigHistory(r.Context(), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]configChangeResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, configChangeFrom(row))
	}
	writeJSON(w, http.StatusOK, out)
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultSettlementLimit, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		badRequest(w, "limit must be a positive integer")
		return 0, false
	}
	return parsed, true
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "IndexerDisabled", "settlement archive not configured")
		return
	}
	totals, err := s.archive.Totals(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]totalResponse, 0, len(totals))
	for _, total := range totals {
		out = append(out, totalResponse{
			Protocol:    total.Protocol,
			Count:       total.Count,
			Volume:      dec(total.Volume),
			ServiceFees: dec(total.ServiceFees),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func parseAmount(raw string) (*uint256.Int, error) {
	return uint256.FromDecimal(strings.TrimSpace(raw))
}
