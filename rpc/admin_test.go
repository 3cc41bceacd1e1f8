package rpc

import (
	"context"
	"encoding/hex"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdminRequiresToken(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodPost, "/v1/admin/pause", `{"paused":true}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/admin/pause", `{"paused":true}`, "not-hex")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "Forbidden", decode[errorBody](t, rec).Error.Kind)

	foreign := hex.EncodeToString([]byte(strings.Repeat("x", 32)))
	rec = env.do(t, http.MethodPost, "/v1/admin/pause", `{"paused":true}`, foreign)
	require.Equal(t, http.StatusForbidden, rec.Code)

	cfg, err := env.node.Admin().Config(context.Background())
	require.NoError(t, err)
	require.False(t, cfg.Paused, "rejected requests must not mutate the configuration")
}

func TestAdminMutations(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodPost, "/v1/admin/pause", `{"paused":true}`, env.token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode[configResponse](t, rec).Paused)

	rec = env.do(t, http.MethodPost, "/v1/admin/fee", `{"bps":25}`, "0x"+env.token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint64(25), decode[configResponse](t, rec).ServiceFeeBps)

	rec = env.do(t, http.MethodPost, "/v1/admin/fee", `{"bps":10001}`, env.token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "InvalidFeeRate", decode[errorBody](t, rec).Error.Kind)

	rec = env.do(t, http.MethodPost, "/v1/admin/assets", `{"asset":"0x5::usdc::USDC"}`, env.token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, decode[configResponse](t, rec).AllowedAssets, "0x5::usdc::USDC")

	rec = env.do(t, http.MethodPost, "/v1/admin/adapters", `{"protocol":4,"location":"scallop"}`, env.token)
	require.Equal(t, http.StatusOK, rec.Code)
	adapters := decode[configResponse](t, rec).Adapters
	require.Len(t, adapters, 5)
	require.Equal(t, "scallop", adapters[4])

	rec = env.do(t, http.MethodPost, "/v1/admin/adapters", `{"protocol":18446744073709551615,"location":"navi"}`, env.token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "IndexOutOfBounds", decode[errorBody](t, rec).Error.Kind)

	rec = env.do(t, http.MethodPost, "/v1/admin/treasury", `{"address":"0x00000000000000000000000000000000000000aa"}`, env.token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/admin/fee", `{"bps":1,"extra":true}`, env.token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRegistry(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodPost, "/v1/admin/registry", `{"location":"navi"}`, env.token)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.EqualValues(t, 0, decode[map[string]interface{}](t, rec)["protocol"])

	rec = env.do(t, http.MethodPost, "/v1/admin/registry", `{"protocol":5,"location":"bucket"}`, env.token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "IndexOutOfBounds", decode[errorBody](t, rec).Error.Kind)

	rec = env.do(t, http.MethodPost, "/v1/admin/registry", `{"protocol":0,"location":"scallop"}`, env.token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/admin/registry", `{"location":"  "}`, env.token)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/config", "", "")
	require.Equal(t, []string{"scallop"}, decode[configResponse](t, rec).Registry)
}

func TestAdminRotate(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodPost, "/v1/admin/rotate", "", env.token)
	require.Equal(t, http.StatusOK, rec.Code)
	next := decode[map[string]string](t, rec)["token"]
	require.NotEmpty(t, next)
	require.NotEqual(t, env.token, next)

	rec = env.do(t, http.MethodPost, "/v1/admin/pause", `{"paused":true}`, env.token)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/admin/pause", `{"paused":true}`, next)
	require.Equal(t, http.StatusOK, rec.Code)
}
