package rpc

import (
	"time"

	"github.com/holiman/uint256"

	"flashsettle/indexer"
	"flashsettle/native/flashloan"
)

type configResponse struct {
	Treasury      string   `json:"treasury"`
	ServiceFeeBps uint64   `json:"serviceFeeBps"`
	Paused        bool     `json:"paused"`
	AllowedAssets []string `json:"allowedAssets"`
	Adapters      []string `json:"adapters"`
	Registry      []string `json:"registry"`
}

type protocolResponse struct {
	ID        uint64 `json:"id"`
	Location  string `json:"location"`
	FeeBps    uint64 `json:"feeBps"`
	Liquidity string `json:"liquidity"`
}

type quoteResponse struct {
	Protocol       uint64 `json:"protocol"`
	Amount         string `json:"amount"`
	ProtocolFeeBps uint64 `json:"protocolFeeBps"`
	ServiceFeeBps  uint64 `json:"serviceFeeBps"`
	ProtocolFee    string `json:"protocolFee"`
	ServiceFee     string `json:"serviceFee"`
	TotalRepayment string `json:"totalRepayment"`
}

type balanceResponse struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Balance string `json:"balance"`
}

type settlementResponse struct {
	ID             string    `json:"id"`
	Protocol       uint64    `json:"protocol"`
	Amount         string    `json:"amount"`
	ProtocolFee    string    `json:"protocolFee"`
	ServiceFee     string    `json:"serviceFee"`
	TotalRepayment string    `json:"totalRepayment"`
	RecordedAt     time.Time `json:"recordedAt"`
}

type configChangeResponse struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Field      string    `json:"field"`
	Value      string    `json:"value"`
	RecordedAt time.Time `json:"recordedAt"`
}

type totalResponse struct {
	Protocol    uint64 `json:"protocol"`
	Count       int64  `json:"count"`
	Volume      string `json:"volume"`
	ServiceFees string `json:"serviceFees"`
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func configFrom(cfg *flashloan.Config, reg *flashloan.Registry) configResponse {
	resp := configResponse{
		Treasury:      cfg.Treasury.Hex(),
		ServiceFeeBps: cfg.ServiceFeeBps,
		Paused:        cfg.Paused,
		AllowedAssets: append([]string{}, cfg.AllowedAssets...),
		Adapters:      append([]string{}, cfg.Adapters...),
		Registry:      []string{},
	}
	if reg != nil {
		resp.Registry = append(resp.Registry, reg.Locations...)
	}
	return resp
}

func quoteFrom(q *flashloan.Quote) quoteResponse {
	return quoteResponse{
		Protocol:       q.Protocol,
		Amount:         dec(q.Amount),
		ProtocolFeeBps: q.ProtocolFeeBps,
		ServiceFeeBps:  q.ServiceFeeBps,
		ProtocolFee:    dec(q.ProtocolFee),
		ServiceFee:     dec(q.ServiceFee),
		TotalRepayment: dec(q.TotalRepayment),
	}
}

func settlementFrom(s indexer.Settlement) settlementResponse {
	return settlementResponse{
		ID:             s.ID.String(),
		Protocol:       s.Protocol,
		Amount:         s.Amount,
		ProtocolFee:    s.ProtocolFee,
		ServiceFee:     s.ServiceFee,
		TotalRepayment: s.TotalRepayment,
		RecordedAt:     s.RecordedAt,
	}
}

func configChangeFrom(c indexer.ConfigChange) configChangeResponse {
	return configChangeResponse{
		ID:         c.ID.String(),
		Kind:       c.Kind,
		Field:      c.Field,
		Value:      c.Value,
		RecordedAt: c.RecordedAt,
	}
}
