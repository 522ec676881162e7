package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cwship/internal/model"
)

func TestDefaultFormatter(t *testing.T) {
	assert.Equal(t, "info - hello", DefaultFormatter(info("hello")))
	assert.Equal(t, "error - boom", DefaultFormatter(&model.Record{Level: "error", Err: errors.New("boom")}))
	assert.Equal(t, "warn - explicit", DefaultFormatter(&model.Record{Level: "warn", Message: "explicit", Err: errors.New("ignored")}))
}

func TestJSONFormatter(t *testing.T) {
	rec := &model.Record{
		Level:   "error",
		Message: "db timeout",
		Err:     errors.New("dial tcp: i/o timeout"),
		Time:    time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
		Fields: map[string]any{
			"user":    "u-42",
			"attempt": 3,
			"level":   "spoofed",
		},
	}

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(JSONFormatter(rec)), &doc))

	assert.Equal(t, "error", doc["level"], "reserved keys win over fields")
	assert.Equal(t, "db timeout", doc["message"])
	assert.Equal(t, "dial tcp: i/o timeout", doc["error"])
	assert.Equal(t, "2026-10-18T09:30:00Z", doc["time"])
	assert.Equal(t, "u-42", doc["user"])
	assert.EqualValues(t, 3, doc["attempt"])
}

func TestJSONFormatterUnsupportedField(t *testing.T) {
	rec := &model.Record{
		Level:   "info",
		Message: "hi",
		Fields:  map[string]any{"ch": make(chan int)},
	}

	out := JSONFormatter(rec)
	assert.True(t, json.Valid([]byte(out)), out)
	assert.Contains(t, out, `"message":"hi"`)
}

func TestJSONMessageOption(t *testing.T) {
	sink := &fakeSink{}
	tr := newTestTransport(t, sink, func(o *Options) { o.JSONMessage = true })

	tr.Log(context.Background(), info("structured"))
	require.NoError(t, tr.Submit(context.Background()))

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(sink.Calls()[0].Events[0].Message), &doc))
	assert.Equal(t, "structured", doc["message"])
}

func TestCustomFormatter(t *testing.T) {
	sink := &fakeSink{}
	tr := newTestTransport(t, sink, func(o *Options) {
		o.MessageFormatter = func(r *model.Record) string { return "[" + r.Level + "] " + r.Text() }
	})

	tr.Log(context.Background(), info("x"))
	require.NoError(t, tr.Submit(context.Background()))
	assert.Equal(t, []string{"[info] x"}, sink.Calls()[0].messages())
}

func TestWriteDecodesZerologLines(t *testing.T) {
	sink := &fakeSink{}
	tr := newTestTransport(t, sink, func(o *Options) {
		o.LogGroupName = Field("group", "app")
	})

	zl := zerolog.New(tr)
	zl.Info().Str("group", "billing").Str("user", "u-1").Msg("charged")
	zl.Error().Err(errors.New("card declined")).Msg("")
	zl.Debug().Msg("noise")

	require.Equal(t, 2, tr.Len(), "debug is below the default info threshold")
	require.NoError(t, tr.Submit(context.Background()))

	calls := sink.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "billing", calls[0].Group)
	assert.Equal(t, []string{"info - charged"}, calls[0].messages())
	assert.Equal(t, "app", calls[1].Group)
	assert.Equal(t, []string{"error - card declined"}, calls[1].messages())
}

func TestDecodeLine(t *testing.T) {
	rec := decodeLine([]byte(`{"level":"warn","time":"2026-10-18T09:30:00Z","message":"slow","took_ms":420}` + "\n"))
	assert.Equal(t, "warn", rec.Level)
	assert.Equal(t, "slow", rec.Message)
	assert.Equal(t, 2026, rec.Time.Year())
	assert.EqualValues(t, 420, rec.Fields["took_ms"])
	assert.NotContains(t, rec.Fields, "time")

	plain := decodeLine([]byte("not json at all\n"))
	assert.Equal(t, "", plain.Level)
	assert.Equal(t, "not json at all", plain.Message)

	failed := decodeLine([]byte(`{"level":"error","error":"disk full"}`))
	require.True(t, failed.IsError())
	assert.Equal(t, "disk full", failed.Text())

	noErr := decodeLine([]byte(`{"level":"info","error":null,"message":"ok"}`))
	assert.False(t, noErr.IsError())
}

func TestWriteAlwaysSucceeds(t *testing.T) {
	tr := newTestTransport(t, &fakeSink{}, nil)

	p := []byte("plain text line\n")
	n, err := tr.Write(p)
	require.NoError(t, err)
	assert.Equal(t, len(p), n)
	assert.Equal(t, 1, tr.Len())
}
