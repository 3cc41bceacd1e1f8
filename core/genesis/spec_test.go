package genesis

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

const sampleSpec = `{
  "treasury": "0x00000000000000000000000000000000000007ea",
  "serviceFeeBps": 40,
  "allowedAssets": ["0x2::sui::SUI", "0xce7f::buck::BUCK"],
  "adapters": {"3": "navi"},
  "vaultFeeBps": 7,
  "liquidity": [
    {"protocol": 0, "asset": "0x2::sui::SUI", "amount": "5000000000"},
    {"protocol": 1, "asset": "0xce7f::buck::BUCK", "amount": "1000000"}
  ],
  "alloc": {
    "0x000000000000000000000000000000000000beef": {"0x2::sui::SUI": "1000"}
  }
}`

func TestLoadGenesisSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, []byte(sampleSpec), 0o600); err != nil {
		t.Fatal(err)
	}
	spec, err := LoadGenesisSpec(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if spec.treasury != common.HexToAddress("0x7ea") {
		t.Fatalf("treasury = %s", spec.treasury.Hex())
	}
	if spec.ServiceFee() != 40 || spec.overrides[3] != "navi" {
		t.Fatalf("unexpected spec %+v", spec)
	}
	if spec.Liquidity[0].amount.Uint64() != 5_000_000_000 {
		t.Fatalf("liquidity amount = %s", spec.Liquidity[0].amount.Dec())
	}
	if got := spec.alloc[common.HexToAddress("0xbeef")]["0x2::sui::SUI"]; got == nil || got.Uint64() != 1000 {
		t.Fatalf("alloc = %v", got)
	}
}

func TestServiceFeeDefaults(t *testing.T) {
	spec, err := ParseGenesisSpec([]byte(`{"treasury":"0x00000000000000000000000000000000000007ea","allowedAssets":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	if spec.ServiceFee() != 40 {
		t.Fatalf("default service fee = %d", spec.ServiceFee())
	}
}

func TestParseGenesisSpecRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"treasury":      `{"treasury":"nope"}`,
		"fee":           `{"treasury":"0x00000000000000000000000000000000000007ea","serviceFeeBps":10001}`,
		"vault fee":     `{"treasury":"0x00000000000000000000000000000000000007ea","vaultFeeBps":10001}`,
		"unknown field": `{"treasury":"0x00000000000000000000000000000000000007ea","extra":1}`,
		"amount":        `{"treasury":"0x00000000000000000000000000000000000007ea","liquidity":[{"protocol":0,"asset":"a","amount":"-1"}]}`,
		"adapter id":    `{"treasury":"0x00000000000000000000000000000000000007ea","adapters":{"x":"navi"}}`,
		"alloc address": `{"treasury":"0x00000000000000000000000000000000000007ea","alloc":{"bob":{"a":"1"}}}`,
	}
	for name, raw := range cases {
		if _, err := ParseGenesisSpec([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		} else if !strings.Contains(err.Error(), "invalid") && !strings.Contains(err.Error(), "decode") {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
	}
}
