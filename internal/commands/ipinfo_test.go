package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"miyako-bot/internal/apperr"
	"miyako-bot/internal/gateway"
	"miyako-bot/internal/gateway/gatewaytest"
	"miyako-bot/internal/ipapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestIPInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json/8.8.8.8":
			w.Write([]byte(`{
				"status": "success",
				"country": "US",
				"city": "Mountain View",
				"isp": "Google LLC",
				"as": "AS15169 Google LLC",
				"mobile": false,
				"proxy": false,
				"hosting": true
			}`))
		default:
			w.Write([]byte(`{"status": "fail", "message": "reserved range"}`))
		}
	}))
	defer server.Close()

	d, fake := setupTestDeps(t)
	d.IPs = ipapi.NewClient(server.URL, time.Second, zaptest.NewLogger(t))

	it := gateway.NewInteraction(fake, gatewaytest.NewSlash("ipinfo", stringOpt("address", "8.8.8.8")))
	require.NoError(t, d.handleIPInfo(context.Background(), it))

	embed := lastResponseEmbed(t, fake)
	assert.Equal(t, "🌐 ┃ 網際協定位址資訊 - 8.8.8.8", embed.Title)

	want := []struct{ name, value string }{
		{"是行動網路", "否"},
		{"是託管服務", "是"},
		{"是代理服務", "否"},
		{"地理位置", "US, Mountain View"},
		{"服務供應商", "Google LLC"},
		{"自治系統", "AS15169 Google LLC"},
	}
	require.Len(t, embed.Fields, len(want))
	for i, w := range want {
		assert.Equal(t, w.name, embed.Fields[i].Name)
		assert.Equal(t, w.value, embed.Fields[i].Value, w.name)
	}
	assert.True(t, embed.Fields[0].Inline)
	assert.False(t, embed.Fields[3].Inline)

	t.Run("lookup failure", func(t *testing.T) {
		it := gateway.NewInteraction(fake, gatewaytest.NewSlash("ipinfo", stringOpt("address", "10.0.0.1")))
		err := d.handleIPInfo(context.Background(), it)
		e, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.External, e.Kind)
		assert.Equal(t, "無法查詢位址 10.0.0.1，原因：reserved range", e.Message)
	})

	t.Run("invalid address", func(t *testing.T) {
		it := gateway.NewInteraction(fake, gatewaytest.NewSlash("ipinfo", stringOpt("address", "example")))
		assert.Equal(t, apperr.UserInput, apperr.KindOf(d.handleIPInfo(context.Background(), it)))
	})
}
