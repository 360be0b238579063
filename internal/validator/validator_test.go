package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-cbt/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
	Setup()
}

func TestEventTypeRule(t *testing.T) {
	tests := []struct {
		eventType string
		valid     bool
	}{
		{"tab_switch", true},
		{"devtools_open", true},
		{"custom_sensor2", true},
		{"Tab_Switch", false},
		{"tab-switch", false},
		{"_leading", false},
		{"", false},
		{strings.Repeat("a", 51), false},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			fields := Struct(&model.LogEventRequest{EventType: tt.eventType})
			if (fields == nil) != tt.valid {
				t.Errorf("fields = %v, want valid=%v", fields, tt.valid)
			}
		})
	}
}

func TestEventTypeMessage(t *testing.T) {
	fields := Struct(&model.LogEventRequest{EventType: "Bad Type"})
	if msg := fields["event_type"]; !strings.Contains(msg, "snake_case") {
		t.Errorf("message = %q", msg)
	}
}

func TestBindUsesJSONNames(t *testing.T) {
	r := gin.New()
	var got map[string]string
	r.POST("/", func(c *gin.Context) {
		var req model.TerminateAttemptRequest
		got = Bind(c, &req)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":""}`)))

	if _, ok := got["reason"]; !ok {
		t.Errorf("fields = %v, want a reason entry", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{oops`)))
	if _, ok := got["detail"]; !ok {
		t.Errorf("fields = %v, want detail for malformed JSON", got)
	}
}
