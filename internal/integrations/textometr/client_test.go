package textometr

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"text-adapter/internal/domain"
)

const sampleResponse = `{
	"text_ok": true,
	"text_error_message": "",
	"level_number": 6.2,
	"level_comment": "B1",
	"words": 120,
	"sentences": 9,
	"reading_for_detail_speed": "2 min",
	"skim_reading_speed": "1 min",
	"key_words": ["сеть", "узел"],
	"inB1": 82,
	"not_inB1": ["протокол"],
	"inB2": 91.5,
	"not_inB2": []
}`

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(srv.URL, WithHTTPClient(&http.Client{Timeout: 2 * time.Second}))
	require.NoError(t, err)
	return c
}

func TestNewClient_EmptyURL(t *testing.T) {
	_, err := NewClient(" ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "url")
}

func TestAnalyze_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var in analyzeRequest
		require.NoError(t, json.Unmarshal(raw, &in))
		require.Equal(t, "Сеть состоит из узлов.", in.Text)
		_, _ = io.WriteString(w, sampleResponse)
	}))
	defer srv.Close()

	m, err := newTestClient(t, srv).Analyze(context.Background(), "Сеть состоит из узлов.")
	require.NoError(t, err)
	require.Equal(t, "6.2", m.LevelNumber.String())
	require.Equal(t, "B1", m.LevelComment)
	require.Equal(t, 120, m.WordCount)
	require.Equal(t, 9, m.SentenceCount)
	require.Equal(t, "2 min", m.ReadingForDetailSpeed)
	require.Equal(t, "1 min", m.SkimReadingSpeed)
	require.JSONEq(t, `["сеть","узел"]`, string(m.KeyWords))

	b1 := m.Coverage[domain.LevelB1]
	require.Equal(t, 82.0, b1.InLevel)
	require.JSONEq(t, `["протокол"]`, string(b1.NotInLevel))
	require.Equal(t, 91.5, m.Coverage[domain.LevelB2].InLevel)
	_, ok := m.Coverage[domain.LevelC1]
	require.False(t, ok)
}

func TestAnalyze_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Analyze(context.Background(), "text")
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadGateway, statusErr.HTTPStatusCode())
	require.Contains(t, err.Error(), "upstream down")
}

func TestAnalyze_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Analyze(context.Background(), "text")
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestAnalyze_TextRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"text_ok": false, "text_error_message": "text too short"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Analyze(context.Background(), "a")
	require.Error(t, err)
	require.Contains(t, err.Error(), "text too short")
}

func TestAnalyze_NetworkError(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1", WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))
	require.NoError(t, err)

	_, err = c.Analyze(context.Background(), "text")
	require.Error(t, err)
	require.Contains(t, err.Error(), "request failed")
}

func TestDecodeMetrics_MissingOptionalFields(t *testing.T) {
	m, err := decodeMetrics([]byte(`{"level_comment":"A2"}`))
	require.NoError(t, err)
	require.Equal(t, "A2", m.LevelComment)
	require.Empty(t, m.LevelNumber.String())
	require.Nil(t, m.KeyWords)
	require.Empty(t, m.Coverage)
}

func TestDecodeMetrics_UnreadableCoverageSkipsOnlyThatLevel(t *testing.T) {
	m, err := decodeMetrics([]byte(`{"inB1":82,"not_inB1":["протокол"],"inC2":"n/a","not_inC2":["x"]}`))
	require.NoError(t, err)
	require.Equal(t, 82.0, m.Coverage[domain.LevelB1].InLevel)
	require.JSONEq(t, `["протокол"]`, string(m.Coverage[domain.LevelB1].NotInLevel))
	_, ok := m.Coverage[domain.LevelC2]
	require.False(t, ok)
}

func TestDecodePercent(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{`82`, 82, true},
		{`91.5`, 91.5, true},
		{`"75"`, 75, true},
		{`" 60.5% "`, 60.5, true},
		{`"n/a"`, 0, false},
		{`null`, 0, true},
		{`[1]`, 0, false},
	}
	for _, tc := range cases {
		got, ok := decodePercent(json.RawMessage(tc.raw))
		require.Equal(t, tc.ok, ok, "raw=%s", tc.raw)
		require.Equal(t, tc.want, got, "raw=%s", tc.raw)
	}
}
