package webhook

import "testing"

func TestVerifyHMACSignature(t *testing.T) {
	t.Parallel()

	secret := "test-secret"
	body := []byte(`{"action":"requested"}`)
	hexSig := computeExpectedSignature(body, secret)

	cases := []struct {
		name      string
		body      []byte
		signature string
		secret    string
		wantErr   bool
	}{
		{"github format", body, formatGitHubSignature(hexSig), secret, false},
		{"plain hex", body, hexSig, secret, false},
		{"wrong secret", body, formatGitHubSignature(hexSig), "other-secret", true},
		{"tampered body", []byte(`{"action":"rerequested"}`), formatGitHubSignature(hexSig), secret, true},
		{"empty signature", body, "", secret, true},
		{"empty secret", body, formatGitHubSignature(hexSig), "", true},
		{"not hex", body, "sha256=zzzz", secret, true},
		{"truncated", body, formatGitHubSignature(hexSig[:16]), secret, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := verifyHMACSignature(tc.body, tc.signature, tc.secret)
			if tc.wantErr && err == nil {
				t.Fatal("expected verification to fail")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("verification failed: %v", err)
			}
		})
	}
}
