package callbacks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	cases := []struct {
		name         string
		cb           *tele.Callback
		key, payload string
	}{
		{"nil", nil, "", ""},
		{"raw with payload", &tele.Callback{Data: "\fplan|basic"}, "plan", "basic"},
		{"raw without payload", &tele.Callback{Data: "\fmain-menu"}, "main-menu", ""},
		{"payload keeps separators", &tele.Callback{Data: "\fadmin-accept|42|x"}, "admin-accept", "42|x"},
		{"already split", &tele.Callback{Unique: "device", Data: "Android"}, "device", "Android"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, payload := ParseCallbackData(tc.cb)
			assert.Equal(t, tc.key, key)
			assert.Equal(t, tc.payload, payload)
		})
	}
}
