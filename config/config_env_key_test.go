package config

import "testing"

func TestCanonicalizeEnvKey_UsesExistingCamelCaseKeys(t *testing.T) {
	existing := map[string]any{
		"push": map[string]any{
			"connectTimeout":      "15s",
			"registerDestination": "",
		},
		"api": map[string]any{
			"baseUrl": "",
		},
		"notifications": map[string]any{
			"refetchDelay": "3s",
		},
	}

	tests := []struct {
		envKey string
		want   string
	}{
		{envKey: "PUSH_CONNECTTIMEOUT", want: "push.connectTimeout"},
		{envKey: "PUSH_REGISTERDESTINATION", want: "push.registerDestination"},
		{envKey: "API_BASEURL", want: "api.baseUrl"},
		{envKey: "NOTIFICATIONS_REFETCHDELAY", want: "notifications.refetchDelay"},
		{envKey: "NEW_FEATURE_FLAG", want: "new.feature.flag"},
	}

	for _, tt := range tests {
		t.Run(tt.envKey, func(t *testing.T) {
			if got := canonicalizeEnvKey(tt.envKey, existing); got != tt.want {
				t.Fatalf("canonicalizeEnvKey(%q) = %q, want %q", tt.envKey, got, tt.want)
			}
		})
	}
}
