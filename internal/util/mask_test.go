package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"Ada@Example.com ":    "a***@e***.com",
		"a@b.co":              "a@b.co",
		"john.doe@mail.co.uk": "j***@m***.co.uk",
		"localhost":           "l***",
		"@example.com":        "@***",
		"":                    "",
	}
	for in, want := range cases {
		assert.Equal(t, want, MaskEmail(in), in)
	}
}
