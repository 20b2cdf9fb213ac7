package ux

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stringerPayload struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

func (p stringerPayload) String() string {
	return p.Name
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFormatter("json", &FormatterOptions{Writer: &buf})
	require.NoError(t, err)

	require.NoError(t, f.Format(stringerPayload{Name: "sync", Count: 3}))
	assert.Contains(t, buf.String(), `"name": "sync"`)
	assert.Contains(t, buf.String(), `"count": 3`)
}

func TestJSONFormatterCompact(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFormatter("json", &FormatterOptions{Writer: &buf, Compact: true})
	require.NoError(t, err)

	require.NoError(t, f.Format(stringerPayload{Name: "sync"}))
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(buf.String()), "\n")+1)
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFormatter("yaml", &FormatterOptions{Writer: &buf})
	require.NoError(t, err)

	require.NoError(t, f.Format(stringerPayload{Name: "sync", Count: 3}))
	assert.Contains(t, buf.String(), "name: sync")
}

func TestTextFormatterRequiresStringer(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFormatter("text", &FormatterOptions{Writer: &buf})
	require.NoError(t, err)

	require.NoError(t, f.Format("plain string"))
	require.NoError(t, f.Format(stringerPayload{Name: "stringer"}))
	assert.Equal(t, "plain string\nstringer\n", buf.String())

	assert.Error(t, f.Format(42))
}

func TestUnknownFormat(t *testing.T) {
	_, err := NewFormatter("xml", nil)
	assert.ErrorContains(t, err, "unknown format")
}

func TestEmptyFormatDefaultsToText(t *testing.T) {
	f, err := NewFormatter("", nil)
	require.NoError(t, err)
	_, ok := f.(*TextFormatter)
	assert.True(t, ok)
}
