package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/nvr-ai/go-waste/classifier"
	"github.com/nvr-ai/go-waste/config"
	"github.com/nvr-ai/go-waste/history"
	"github.com/nvr-ai/go-waste/waste"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func classified(c waste.Category, conf float32, recyclable bool) classifier.Result {
	return classifier.Result{Category: &c, Confidence: conf, Recyclable: &recyclable, Success: true}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	writeTable(&buf, []fileResult{
		{Path: "a.jpg", Result: classified(waste.NonOrganic, 0.9, true)},
		{Path: "b.jpg", Result: classifier.Result{}},
		{Path: "c.jpg", Result: failedResult(errors.New("invalid image"))},
	})

	out := buf.String()
	assert.Contains(t, out, "a.jpg  non-organic  0.90  recyclable")
	assert.Contains(t, out, "b.jpg  no detection")
	assert.Contains(t, out, "c.jpg  error: invalid image")
	assert.Contains(t, out, "1 classified, 1 without detection, 1 failed")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, []fileResult{
		{Path: "a.jpg", Result: classified(waste.Compost, 0.5, false)},
	}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "a.jpg", got["path"])
	assert.Equal(t, "compost", got["category"])
	assert.Equal(t, false, got["recyclable"])
}

func TestWriteCategories(t *testing.T) {
	var buf bytes.Buffer
	writeCategories(&buf, waste.Default())

	out := buf.String()
	assert.Contains(t, out, "taxonomy v2")
	lines := strings.Split(out, "\n")
	found := false
	for _, l := range lines {
		if strings.HasPrefix(l, "unknown") {
			assert.Contains(t, l, "fallback")
			found = true
		}
	}
	assert.True(t, found)
}

func TestSetupLogging(t *testing.T) {
	assert.NoError(t, setupLogging(config.LoggingConfig{Level: "debug", Format: "json"}))
	assert.Error(t, setupLogging(config.LoggingConfig{Level: "loud", Format: "json"}))
	assert.Error(t, setupLogging(config.LoggingConfig{Level: "info", Format: "xml"}))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Non Organic", displayName(waste.NonOrganic))
	assert.Equal(t, "Compost", displayName(waste.Compost))
	assert.Equal(t, "Organic Dairy Meat", displayName(waste.OrganicDairyMeat))
	assert.True(t, strings.HasPrefix(displayName(waste.EWasteUseful), "E-"))
}

func TestWriteHistory(t *testing.T) {
	compost := waste.Compost
	no := false
	msg := "invalid image"
	entries := []history.Classification{
		{Time: time.Now(), Source: history.SourceCLI, Subject: "peel.jpg", Category: &compost, Recyclable: &no, Confidence: 0.8},
		{Time: time.Now(), Source: history.SourceAPI, Error: &msg},
	}

	var buf bytes.Buffer
	writeHistory(&buf, entries, map[waste.Category]int{waste.Compost: 3})

	out := buf.String()
	assert.Contains(t, out, "peel.jpg")
	assert.Contains(t, out, "compost")
	assert.Contains(t, out, "error: invalid image")
	assert.Regexp(t, `compost\s+3`, out)
}
