package source

import "testing"

func TestIsSafeURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"パブリックIP直指定", "http://8.8.8.8/image.png", false},
		{"IPv6 パブリック", "https://[2001:4860:4860::8888]/a.png", false},

		{"不正なスキーム", "gopher://8.8.8.8", true},
		{"GCSスキームは対象外", "gs://bucket/a.png", true},
		{"ループバック", "http://127.0.0.1/admin", true},
		{"プライベートIP (クラスA)", "http://10.255.255.254/metadata", true},
		{"リンクローカル (メタデータサーバ)", "http://169.254.169.254/latest", true},
		{"未指定アドレス", "http://0.0.0.0/", true},
		{"パース不能", "::not a url", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			safe, err := IsSafeURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("IsSafeURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !safe {
				t.Errorf("%s: safe URL was flagged as unsafe", tt.url)
			}
			if tt.wantErr && safe {
				t.Errorf("%s: unsafe URL was flagged as safe", tt.url)
			}
		})
	}
}
