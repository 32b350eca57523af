package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypersales/generator"
	"hypersales/leads"
)

type llmFunc func(ctx context.Context, prompt string, p generator.Params) (string, error)

func (f llmFunc) Complete(ctx context.Context, prompt string, p generator.Params) (string, error) {
	return f(ctx, prompt, p)
}

func newTestServer(t *testing.T, llm generator.LLMClient) *httptest.Server {
	t.Helper()
	agent, err := generator.NewAgent(llm)
	require.NoError(t, err)
	s, err := New(agent, Options{})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func createBody() sessionCreateReq {
	return sessionCreateReq{
		Sender: generator.Sender{
			Name:               "Alex Chen",
			Company:            "Hyper Sales",
			ProductDescription: "Outbound email automation",
		},
		EmailSettings: generator.EmailSettings{Tone: generator.ToneFriendly, Size: generator.SizeShort},
		Leads: []generator.Lead{
			{Name: "Jane Smith", CompanyName: "XYZ Corp"},
			{Name: "", CompanyName: "Nobody Ltd"},
			{Name: "John Doe", CompanyName: "ABC Inc"},
		},
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, generator.MockLLM{})
	var out map[string]string
	resp := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, generator.MockLLM{})

	var created sessionResp
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", createBody(), &created)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, generator.StatusFullSuccess, created.Status)
	assert.Equal(t, "2 of 2 emails generated", created.Summary)
	require.Len(t, created.Emails, 2)
	assert.Equal(t, "A quick idea for XYZ Corp", created.Emails[0].Subject)
	assert.Equal(t, "John Doe", created.Emails[1].Lead.Name)
	require.NotNil(t, created.Leads)
	assert.Equal(t, "2 of 3 valid", created.Leads.String())

	base := ts.URL + "/api/sessions/" + created.SessionID

	var regen emailResp
	resp = doJSON(t, http.MethodPost, base+"/emails/1/regenerate", nil, &regen)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, regen.Index)
	assert.Equal(t, "A quick idea for ABC Inc", regen.Email.Subject)

	subject := "Edited subject"
	var edited emailResp
	resp = doJSON(t, http.MethodPatch, base+"/emails/0", generator.Patch{Subject: &subject}, &edited)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Edited subject", edited.Email.Subject)
	assert.Equal(t, created.Emails[0].Body, edited.Email.Body)

	var got sessionResp
	resp = doJSON(t, http.MethodGet, base, nil, &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Edited subject", got.Emails[0].Subject)
	require.Len(t, got.History, 3)
	assert.Equal(t, "generate", got.History[0].Action)
	assert.Equal(t, "regenerate", got.History[1].Action)
	assert.Equal(t, "edit", got.History[2].Action)

	preview, err := http.Get(base + "/emails/0/preview")
	require.NoError(t, err)
	page, _ := io.ReadAll(preview.Body)
	preview.Body.Close()
	assert.Equal(t, http.StatusOK, preview.StatusCode)
	assert.Contains(t, preview.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(page), "<title>Edited subject</title>")
	assert.Contains(t, string(page), "Hi Jane Smith,")

	export, err := http.Get(base + "/export")
	require.NoError(t, err)
	defer export.Body.Close()
	assert.Equal(t, http.StatusOK, export.StatusCode)
	assert.Contains(t, export.Header.Get("Content-Disposition"), leads.ExportFilename)
	recs, err := leads.ReadExport(export.Body)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Edited subject", recs[0].Subject)
	assert.Equal(t, "ABC Inc", recs[1].RecipientCompany)
	assert.NotContains(t, recs[0].Body, "\n")
}

func TestSessionCreateValidation(t *testing.T) {
	ts := newTestServer(t, generator.MockLLM{})

	noSender := createBody()
	noSender.Sender.Name = ""

	badTone := createBody()
	badTone.EmailSettings.Tone = "Sarcastic"

	noLeads := createBody()
	noLeads.Leads = []generator.Lead{{Name: "Only Name"}}

	cases := map[string]any{
		"sender":   noSender,
		"settings": badTone,
		"leads":    noLeads,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var out errorResp
			resp := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", body, &out)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, out.Message)
		})
	}

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/sessions", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionCreateConfigError(t *testing.T) {
	// 没有 API key 的客户端不会发出请求，直接报告配置错误。
	llm, err := generator.NewOpenAILLMFromConfig(&generator.LLMSettings{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	ts := newTestServer(t, llm)

	var out errorResp
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", createBody(), &out)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, generator.ConfigErrorMessage, out.Message)
	assert.Equal(t, "config", out.Kind)
}

func TestSessionCreatePartialFailure(t *testing.T) {
	ts := newTestServer(t, llmFunc(func(ctx context.Context, prompt string, p generator.Params) (string, error) {
		if strings.Contains(prompt, `exact name "Jane Smith"`) {
			return "", errors.New("upstream timeout")
		}
		return generator.MockLLM{}.Complete(ctx, prompt, p)
	}))

	var out sessionResp
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", createBody(), &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, generator.StatusPartialSuccess, out.Status)
	require.Len(t, out.Emails, 2)
	assert.True(t, out.Emails[0].Empty())
	assert.Equal(t, "Jane Smith", out.Emails[0].Lead.Name)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, 0, out.Failures[0].Index)
	assert.Equal(t, generator.KindBackend, out.Failures[0].Kind)
}

func TestRegenerateBackendErrorKeepsEmail(t *testing.T) {
	var fail atomic.Bool
	ts := newTestServer(t, llmFunc(func(ctx context.Context, prompt string, p generator.Params) (string, error) {
		if fail.Load() {
			return "", errors.New("boom")
		}
		return generator.MockLLM{}.Complete(ctx, prompt, p)
	}))

	var created sessionResp
	doJSON(t, http.MethodPost, ts.URL+"/api/sessions", createBody(), &created)
	base := ts.URL + "/api/sessions/" + created.SessionID

	fail.Store(true)
	var out errorResp
	resp := doJSON(t, http.MethodPost, base+"/emails/0/regenerate", nil, &out)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "backend", out.Kind)

	var got sessionResp
	doJSON(t, http.MethodGet, base, nil, &got)
	assert.Equal(t, created.Emails[0], got.Emails[0])
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t, generator.MockLLM{})

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/sessions/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var created sessionResp
	doJSON(t, http.MethodPost, ts.URL+"/api/sessions", createBody(), &created)
	base := ts.URL + "/api/sessions/" + created.SessionID

	resp = doJSON(t, http.MethodPost, base+"/emails/7/regenerate", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := "x"
	resp = doJSON(t, http.MethodPatch, base+"/emails/-1", generator.Patch{Body: &body}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, base+"/emails/2/preview", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, base+"/emails/abc/preview", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPatch, base+"/emails/0", generator.Patch{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadCSV(t *testing.T) {
	ts := newTestServer(t, generator.MockLLM{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "leads.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("NAME,COMPANY NAME\nJane,XYZ\nJohn,\n"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/upload-csv", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out uploadResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "CSV processed: 1 of 2 valid", out.Message)
	assert.Equal(t, []generator.Lead{{Name: "Jane", CompanyName: "XYZ"}}, out.Leads)
	require.Len(t, out.Report.Rejected, 1)
	assert.Equal(t, 3, out.Report.Rejected[0].Line)
}

func TestUploadCSVErrors(t *testing.T) {
	ts := newTestServer(t, generator.MockLLM{})

	resp, err := http.Post(ts.URL+"/api/upload-csv", "text/plain", strings.NewReader("nope"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "leads.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("EMAIL\na@b.test\n"))
	require.NoError(t, mw.Close())

	resp, err = http.Post(ts.URL+"/api/upload-csv", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out errorResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, leads.ErrMissingColumns.Error(), out.Error)
}

func TestSampleCSV(t *testing.T) {
	ts := newTestServer(t, generator.MockLLM{})
	resp, err := http.Get(ts.URL + "/api/sample-csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, leads.SampleCSV(), body)
}

func TestNewRequiresAgent(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)
}

func TestRegenerateClearsFailedSlot(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	ts := newTestServer(t, llmFunc(func(ctx context.Context, prompt string, p generator.Params) (string, error) {
		if fail.Load() && strings.Contains(prompt, `exact name "John Doe"`) {
			return "", errors.New("upstream timeout")
		}
		return generator.MockLLM{}.Complete(ctx, prompt, p)
	}))

	var created sessionResp
	doJSON(t, http.MethodPost, ts.URL+"/api/sessions", createBody(), &created)
	require.Equal(t, generator.StatusPartialSuccess, created.Status)
	base := ts.URL + "/api/sessions/" + created.SessionID

	fail.Store(false)
	resp := doJSON(t, http.MethodPost, base+"/emails/1/regenerate", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got sessionResp
	doJSON(t, http.MethodGet, base, nil, &got)
	assert.Equal(t, generator.StatusFullSuccess, got.Status)
	assert.Empty(t, got.Failures)
	assert.Equal(t, "2 of 2 emails generated", got.Summary)
}
