package main

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radio-control/meshchan/internal/channels"
	"github.com/radio-control/meshchan/internal/lora"
)

func TestPrintTable(t *testing.T) {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	table := channels.NewTable(lora.Params{Region: lora.RegionUS, Preset: lora.PresetLongFast, UsePreset: true},
		channels.WithLogger(quiet))
	require.NoError(t, table.InitDefaults(context.Background()))

	var out bytes.Buffer
	printTable(&out, table)

	s := out.String()
	assert.Contains(t, s, "MHZ")
	assert.Contains(t, s, "LongFast")
	assert.Contains(t, s, "default")
	assert.Contains(t, s, "906.875")
	assert.Contains(t, s, "Public default key in use: true")
}
