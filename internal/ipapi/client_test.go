package ipapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"miyako-bot/internal/apperr"

	"go.uber.org/zap/zaptest"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantErr     bool
		wantMessage string
		wantAS      string
	}{
		{
			name:   "success",
			body:   `{"status":"success","country":"United States","city":"Ashburn","isp":"Google LLC","as":"AS15169 Google LLC","mobile":false,"proxy":false,"hosting":true}`,
			wantAS: "AS15169 Google LLC",
		},
		{
			name:        "upstream fail",
			body:        `{"status":"fail","message":"private range"}`,
			wantErr:     true,
			wantMessage: "無法查詢位址 10.0.0.1，原因：private range",
		},
		{
			name:        "fail without message",
			body:        `{"status":"fail"}`,
			wantErr:     true,
			wantMessage: "無法查詢位址 10.0.0.1，原因：未知錯誤",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("fields") != fields {
					t.Errorf("Unexpected fields %q", r.URL.Query().Get("fields"))
				}
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, 0, zaptest.NewLogger(t))
			info, err := client.Lookup(context.Background(), "10.0.0.1")

			if tt.wantErr {
				e, ok := apperr.As(err)
				if !ok || e.Kind != apperr.External {
					t.Fatalf("Expected external error, got %v", err)
				}
				if e.Message != tt.wantMessage {
					t.Errorf("Expected message '%s', got '%s'", tt.wantMessage, e.Message)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if info.AS != tt.wantAS {
				t.Errorf("Expected AS '%s', got '%s'", tt.wantAS, info.AS)
			}
		})
	}
}

func TestYesNo(t *testing.T) {
	if YesNo(true) != "是" || YesNo(false) != "否" {
		t.Error("Unexpected flag rendering")
	}
}
