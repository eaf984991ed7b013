package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Shadow", "5had0w"},
		{"spaces and symbols stripped", " Sh4 d-0w!! ", "5h4d0w"},
		{"pipe collapses with one and ell", "P|ayer", "p1ayer"},
		{"ell collapses", "Playerl", "p1ayer1"},
		{"capital i collapses", "PIayer", "p1ayer"},
		{"oh and zero collapse", "ZerO", "zer0"},
		{"rn reads as m", "Burnie", "8um1e"},
		{"diacritics fold", "Pokéfan", "p0kefan"},
		{"fullwidth folds", "ＡＢＣ", "a8c"},
		{"empty", "  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Shadow", "P|ayer One", "Burnie", "Pokéfan", "xX_Sn1per_Xx"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "normalizing %q twice diverged", in)
	}
}
