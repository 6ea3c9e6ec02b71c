package telephony

import "testing"

func TestParseDialString(t *testing.T) {
	tests := []struct {
		in       string
		clir     CLIRMode
		network  string
		postDial string
		wantCLIR CLIRMode
	}{
		{"+17005554141", CLIRDefault, "+17005554141", "", CLIRDefault},
		{"+1 (700).555-41NN,1234", CLIRDefault, "+170055541NN", ",1234", CLIRDefault},
		{"12345,,;1234", CLIRDefault, "12345", ";1234", CLIRDefault},
		{"12345;,1234", CLIRDefault, "12345", ";1234", CLIRDefault},
		{"12345,,1234", CLIRDefault, "12345", ",,1234", CLIRDefault},
		{"12345,1234,", CLIRDefault, "12345", ",1234", CLIRDefault},
		{"*31#5551234", CLIRInvocation, "5551234", "", CLIRSuppression},
		{"#31#5551234", CLIRDefault, "5551234", "", CLIRInvocation},
		{"*31#", CLIRDefault, "*31#", "", CLIRDefault},
		{"555+1234", CLIRDefault, "5551234", "", CLIRDefault},
	}
	for _, tt := range tests {
		d := ParseDialString(tt.in, tt.clir)
		if d.Network != tt.network {
			t.Errorf("ParseDialString(%q).Network = %q, want %q", tt.in, d.Network, tt.network)
		}
		if d.PostDial != tt.postDial {
			t.Errorf("ParseDialString(%q).PostDial = %q, want %q", tt.in, d.PostDial, tt.postDial)
		}
		if d.CLIR != tt.wantCLIR {
			t.Errorf("ParseDialString(%q).CLIR = %s, want %s", tt.in, d.CLIR, tt.wantCLIR)
		}
	}
}

func TestNormalizePostDial(t *testing.T) {
	tests := map[string]string{
		"":         "",
		",1234":    ",1234",
		",;1234":   ";1234",
		";;;1":     ";1",
		"1,2;3":    "1,2;3",
		"1,,,2":    "1,,,2",
		"1;,;,2":   "1;2",
		"1234;,":   "1234",
		"12,34,,;": "12,34",
		"*#,;AB":   "*#;AB",
	}
	for in, want := range tests {
		if got := NormalizePostDial(in); got != want {
			t.Errorf("NormalizePostDial(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDTMF(t *testing.T) {
	for _, c := range []byte("0123456789*#ABCDabcd") {
		if !IsDTMF(c) {
			t.Errorf("IsDTMF(%q) = false", c)
		}
	}
	for _, c := range []byte("eEN,;+ ") {
		if IsDTMF(c) {
			t.Errorf("IsDTMF(%q) = true", c)
		}
	}
	if got := NormalizeDTMF('a'); got != 'A' {
		t.Errorf("NormalizeDTMF('a') = %q", got)
	}
	if got := NormalizeDTMF('7'); got != '7' {
		t.Errorf("NormalizeDTMF('7') = %q", got)
	}
}

func TestEqualsBaseNumber(t *testing.T) {
	if !EqualsBaseNumber("+1 700-555-4141", "+17005554141,99") {
		t.Error("formatted and post-dial variants should match")
	}
	if EqualsBaseNumber("+17005554141", "+17005554142") {
		t.Error("different numbers should not match")
	}
}
