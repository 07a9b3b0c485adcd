package utils

import "testing"

func TestNormalizePhoneNumber(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"e164 passthrough", "+5511999990000", "+5511999990000", false},
		{"international digits without plus", "5511999990000", "+5511999990000", false},
		{"national mobile", "11999990000", "+5511999990000", false},
		{"surrounding spaces", " +5511999990000 ", "+5511999990000", false},
		{"too short", "12345", "", true},
		{"empty", "", "", true},
		{"letters", "not-a-phone", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhoneNumber(tt.input, CountryCode)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizePhoneNumber(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("NormalizePhoneNumber(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := SplitAndTrim(" a , b ,, c ")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("SplitAndTrim() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SplitAndTrim()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if SplitAndTrim("  ") != nil {
		t.Fatal("blank input should return nil")
	}
}
