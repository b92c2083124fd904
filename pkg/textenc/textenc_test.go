package textenc

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"ascii", []byte(`{"a":1}`), UTF8},
		{"utf8", []byte("résumé"), UTF8},
		{"utf8 cut mid-rune", []byte("ab\xc3"), UTF8},
		{"utf8 bom", []byte("\xef\xbb\xbf{}"), UTF8BOM},
		{"utf16 le bom", []byte("\xff\xfe{\x00"), UTF16LE},
		{"utf16 be bom", []byte("\xfe\xff\x00{"), UTF16BE},
		{"latin1", []byte("caf\xe9 cr\xe8me"), Latin1},
		{"cp1252 smart quotes", []byte("\x93quoted\x94"), CP1252},
		{"empty", nil, UTF8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Detect(tt.input))
		})
	}
}

func TestValidUTF8Prefix_RejectsMidStreamGarbage(t *testing.T) {
	assert.False(t, ValidUTF8Prefix([]byte("a\xffb")))
}

func TestDecode(t *testing.T) {
	s, err := Decode([]byte("caf\xe9"), Latin1)
	require.NoError(t, err)
	assert.Equal(t, "café", s)

	s, err = Decode([]byte("\x93hi\x94"), CP1252)
	require.NoError(t, err)
	assert.Equal(t, "“hi”", s)

	s, err = Decode([]byte("\xff\xfeh\x00i\x00"), UTF16LE)
	require.NoError(t, err)
	assert.Equal(t, "hi", s)

	s, err = Decode([]byte("ok\xff"), UTF8)
	require.NoError(t, err)
	assert.Equal(t, "ok�", s)
}

func TestDecodeAuto(t *testing.T) {
	s, enc, err := DecodeAuto([]byte("\xef\xbb\xbfseverity,title"))
	require.NoError(t, err)
	assert.Equal(t, UTF8BOM, enc)
	assert.Equal(t, "severity,title", s)
}

func TestNewReader(t *testing.T) {
	b, err := io.ReadAll(NewReader(strings.NewReader("na\xefve"), ISO88591))
	require.NoError(t, err)
	assert.Equal(t, "naïve", string(b))

	b, err = io.ReadAll(NewReader(strings.NewReader("\xef\xbb\xbfplain"), UTF8))
	require.NoError(t, err)
	assert.Equal(t, "plain", string(b))
}
