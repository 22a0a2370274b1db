package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text          string
		hasSuggestion bool
		want          Intent
	}{
		{"sí", true, IntentAffirmative},
		{"  Sí, claro  ", true, IntentAffirmative},
		{"OK", true, IntentAffirmative},
		{"de acuerdo", true, IntentAffirmative},
		{"sí", false, IntentNarration},
		{"sí, tenemos tres invernaderos", true, IntentNarration},
		{"¿Cómo voy?", false, IntentProgress},
		{"¿Cuánto me falta?", true, IntentProgress},
		{"what's left", false, IntentProgress},
		{"Ayuda", false, IntentHelp},
		{"no sé qué poner aquí", true, IntentHelp},
		{"Tenemos 2 hectáreas de tomate con riego por goteo", false, IntentNarration},
		{
			"El proyecto está en Almería y quiero saber el progreso de la obra del embalse principal",
			false, IntentNarration,
		},
		{"", true, IntentNarration},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.text, tt.hasSuggestion))
		})
	}
}

func TestNormalise(t *testing.T) {
	assert.Equal(t, "como voy", normalise("¿Cómo   VOY?"))
	assert.Equal(t, "multitunel", normalise("Multitúnel"))
	assert.Equal(t, "", normalise(" ¡! "))
}
